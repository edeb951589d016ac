// Package models defines the core data structures for CarePulse.
//
// It includes patient, group, template, and communication types shared across
// modules, plus the sentinel errors used for API error mapping.
package models

import (
	"errors"
	"time"
)

// ChannelType identifies the communication medium.
type ChannelType string

const (
	// ChannelSMS delivers a text message.
	ChannelSMS ChannelType = "SMS"
	// ChannelVoice places an automated voice call.
	ChannelVoice ChannelType = "VOICE"
)

// IsValidChannelType checks if the given channel type is supported.
func IsValidChannelType(ct ChannelType) bool {
	switch ct {
	case ChannelSMS, ChannelVoice:
		return true
	default:
		return false
	}
}

// CommunicationStatus represents the lifecycle state of a communication.
// Transitions: PENDING -> SENT | DELIVERED, PENDING/SENT -> FAILED.
type CommunicationStatus string

const (
	// StatusPending indicates the record was created but not yet handed to the transport.
	StatusPending CommunicationStatus = "PENDING"
	// StatusSent indicates the transport accepted the message without confirmed delivery.
	StatusSent CommunicationStatus = "SENT"
	// StatusDelivered indicates the transport confirmed delivery.
	StatusDelivered CommunicationStatus = "DELIVERED"
	// StatusFailed indicates the dispatch attempt failed.
	StatusFailed CommunicationStatus = "FAILED"
)

// Validation constants for input validation
const (
	// MaxMessageBodyLength defines the maximum allowed length for message content
	MaxMessageBodyLength = 4096
	// MaxAnalyticsWindowDays bounds the analytics date window
	MaxAnalyticsWindowDays = 365
)

// Sentinel errors for the request-fatal error taxonomy. Per-recipient
// transport failures are values on the Communication row, never errors.
var (
	// ErrInvalidRequest indicates a malformed request the caller must fix.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound indicates a referenced group/template/patient id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrNoRecipients indicates resolution succeeded but yielded an empty set.
	ErrNoRecipients = errors.New("no recipients resolved")
	// ErrInvalidSchedule indicates a scheduled send time that is not in the future.
	ErrInvalidSchedule = errors.New("schedule time must be in the future")
)

// Patient holds identity, contact details, and per-channel consent flags.
// PhoneNumber is unique across patients.
type Patient struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number"`
	Email        string    `json:"email,omitempty"`
	SMSEnabled   bool      `json:"sms_enabled"`
	VoiceEnabled bool      `json:"voice_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName returns the patient's display name.
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// ChannelEnabled reports whether the patient consented to the given channel.
func (p Patient) ChannelEnabled(ct ChannelType) bool {
	switch ct {
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelVoice:
		return p.VoiceEnabled
	default:
		return false
	}
}

// PatientGroup is a named, colored label over a set of patients.
type PatientGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientGroupMember links a patient to a group. Unique on (patient, group).
type PatientGroupMember struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	GroupID   string    `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Template is a reusable, typed message body with {placeholder} tokens.
// Identity is immutable; name, type, and body are editable.
type Template struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	Body      string      `json:"body"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Appointment is a scheduled visit used as a template data source.
type Appointment struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Communication is one row per attempted send. It always belongs to exactly
// one patient, even when it originated from a bulk or group send. Only the
// dispatch engine's status-transition step mutates it after creation.
type Communication struct {
	ID           string              `json:"id"`
	PatientID    string              `json:"patient_id"`
	TemplateID   string              `json:"template_id,omitempty"`
	Type         ChannelType         `json:"type"`
	Content      string              `json:"content"`
	PhoneNumber  string              `json:"phone_number"`
	Status       CommunicationStatus `json:"status"`
	ProviderSID  string              `json:"provider_sid,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	SentAt       *time.Time          `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
	FailedAt     *time.Time          `json:"failed_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// RecurrenceRule is an opaque pattern descriptor interpreted by the
// materializer: interval unit, interval count, optional day-of-week list.
// DaysOfWeek applies to weekly rules only: when set, the rule fires on each
// listed weekday (lowercase names) and Interval is ignored.
type RecurrenceRule struct {
	Unit       string   `json:"unit"` // "day", "week", or "month"
	Interval   int      `json:"interval"`
	DaysOfWeek []string `json:"days_of_week,omitempty"`
}

// ScheduledCommunication is a deferred send intent for either a single
// patient or a whole group (mutually exclusive targets). One-shot rows are
// deleted after materialization; recurring rows have ScheduledFor advanced.
// CustomVarsJSON carries the request's custom variables so the materializer
// can render them with the same precedence as an immediate send.
type ScheduledCommunication struct {
	ID             string      `json:"id"`
	PatientID      string      `json:"patient_id,omitempty"`
	GroupID        string      `json:"group_id,omitempty"`
	TemplateID     string      `json:"template_id,omitempty"`
	Type           ChannelType `json:"type"`
	Content        string      `json:"content"`
	ScheduledFor   time.Time   `json:"scheduled_for"`
	IsRecurring    bool        `json:"is_recurring"`
	RecurrenceJSON string      `json:"recurrence,omitempty"`
	CustomVarsJSON string      `json:"custom_variables,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SendResult is the transport boundary contract for a single send attempt.
type SendResult struct {
	Success   bool   `json:"success"`
	SID       string `json:"sid,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
	Error     string `json:"error,omitempty"`
}
