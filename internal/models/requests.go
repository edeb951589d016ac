// Package models defines request and response payloads for the CarePulse API.
package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// BulkSendRequest is the payload for POST /communications/send. Exactly one
// of PatientIDs/GroupID selects the recipients, and exactly one of
// TemplateID/CustomMessage supplies the body. A ScheduleFor in the future
// defers the send instead of dispatching immediately.
type BulkSendRequest struct {
	PatientIDs      []string          `json:"patient_ids,omitempty"`
	GroupID         string            `json:"group_id,omitempty"`
	TemplateID      string            `json:"template_id,omitempty"`
	CustomMessage   string            `json:"custom_message,omitempty"`
	Type            ChannelType       `json:"type"`
	ScheduleFor     *time.Time        `json:"schedule_for,omitempty"`
	Recurrence      *RecurrenceRule   `json:"recurrence,omitempty"`
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
}

// Validate checks the request at the API boundary. All failures are wrapped
// in ErrInvalidRequest so handlers can map them to a 400 uniformly.
func (r BulkSendRequest) Validate() error {
	if len(r.PatientIDs) == 0 && r.GroupID == "" {
		return fmt.Errorf("%w: either patient_ids or group_id is required", ErrInvalidRequest)
	}
	if len(r.PatientIDs) > 0 && r.GroupID != "" {
		return fmt.Errorf("%w: patient_ids and group_id are mutually exclusive", ErrInvalidRequest)
	}
	if r.TemplateID == "" && r.CustomMessage == "" {
		return fmt.Errorf("%w: either template_id or custom_message is required", ErrInvalidRequest)
	}
	if r.TemplateID != "" && r.CustomMessage != "" {
		return fmt.Errorf("%w: template_id and custom_message are mutually exclusive", ErrInvalidRequest)
	}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.In(ChannelSMS, ChannelVoice)),
		validation.Field(&r.CustomMessage, validation.Length(0, MaxMessageBodyLength)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a recurrence rule.
func (rr RecurrenceRule) Validate() error {
	err := validation.ValidateStruct(&rr,
		validation.Field(&rr.Unit, validation.Required, validation.In("day", "week", "month")),
		validation.Field(&rr.Interval, validation.Required, validation.Min(1)),
		validation.Field(&rr.DaysOfWeek, validation.Each(validation.In(
			"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// RecipientResult is the per-recipient outcome of a bulk send. Every resolved
// recipient appears exactly once, including eligibility rejects (success
// false, no communication id).
type RecipientResult struct {
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	Success         bool   `json:"success"`
	CommunicationID string `json:"communication_id,omitempty"`
	ProviderSID     string `json:"provider_sid,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BulkSendResult aggregates per-recipient outcomes of an immediate send.
// SuccessCount + FailureCount always equals TotalPatients.
type BulkSendResult struct {
	Message       string            `json:"message"`
	TotalPatients int               `json:"total_patients"`
	SuccessCount  int               `json:"success_count"`
	FailureCount  int               `json:"failure_count"`
	Results       []RecipientResult `json:"results"`
}

// ScheduleResult reports the rows created for a deferred send.
type ScheduleResult struct {
	Message                 string                   `json:"message"`
	ScheduledCount          int                      `json:"scheduled_count"`
	ScheduledCommunications []ScheduledCommunication `json:"scheduled_communications"`
}
