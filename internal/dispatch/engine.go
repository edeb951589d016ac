package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carepulse/carepulse/internal/messaging"
	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
	"github.com/carepulse/carepulse/internal/template"
)

// Engine dispatches a rendered message to each eligible recipient, recording
// an auditable Communication row per attempt. Recipients are processed
// independently and sequentially: one recipient's failure never aborts or
// rolls back another's.
type Engine struct {
	st       store.Store
	msg      messaging.Service
	renderer *template.Renderer
}

// NewEngine creates a dispatch engine.
func NewEngine(st store.Store, msg messaging.Service, renderer *template.Renderer) *Engine {
	return &Engine{st: st, msg: msg, renderer: renderer}
}

// Job is one bulk dispatch unit: the recipients a resolver produced plus the
// message to deliver.
type Job struct {
	Recipients []models.Patient
	Channel    models.ChannelType
	Body       string // template body or literal message, pre-substitution
	TemplateID string
	Custom     map[string]string
}

// Dispatch runs the per-recipient unit of work for every recipient: consent
// check, render, create PENDING row, invoke transport, transition the row.
// Every recipient appears exactly once in the result, including consent
// rejects (success false, no communication id). The aggregate counts are
// derived from the immutable result list, never from shared counters.
func (e *Engine) Dispatch(ctx context.Context, job Job) models.BulkSendResult {
	results := make([]models.RecipientResult, 0, len(job.Recipients))
	for _, patient := range job.Recipients {
		results = append(results, e.dispatchOne(ctx, patient, job))
	}

	result := models.BulkSendResult{
		TotalPatients: len(results),
		Results:       results,
	}
	for _, r := range results {
		if r.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}
	result.Message = fmt.Sprintf("Processed %d recipients: %d succeeded, %d failed",
		result.TotalPatients, result.SuccessCount, result.FailureCount)
	slog.Info("Engine.Dispatch: bulk send completed", "channel", job.Channel,
		"total", result.TotalPatients, "success", result.SuccessCount, "failure", result.FailureCount)
	return result
}

// dispatchOne processes a single recipient. Consent is checked before
// rendering so ineligible recipients never consume a render.
func (e *Engine) dispatchOne(ctx context.Context, patient models.Patient, job Job) models.RecipientResult {
	result := models.RecipientResult{
		PatientID:   patient.ID,
		PatientName: patient.FullName(),
	}

	if !patient.ChannelEnabled(job.Channel) {
		result.Error = rejectionReason(job.Channel)
		slog.Debug("Engine.dispatchOne: recipient ineligible", "patientID", patient.ID, "channel", job.Channel)
		return result
	}

	content := e.renderFor(patient, job)

	comm := &models.Communication{
		PatientID:   patient.ID,
		TemplateID:  job.TemplateID,
		Type:        job.Channel,
		Content:     content,
		PhoneNumber: patient.PhoneNumber,
		Status:      models.StatusPending,
	}
	if err := e.st.CreateCommunication(comm); err != nil {
		slog.Error("Engine.dispatchOne: failed to create communication record", "error", err, "patientID", patient.ID)
		result.Error = "failed to record communication: " + err.Error()
		return result
	}
	result.CommunicationID = comm.ID

	sendRes := e.invokeTransport(ctx, job.Channel, patient.PhoneNumber, content)
	now := time.Now()
	if !sendRes.Success {
		if err := e.st.MarkCommunicationFailed(comm.ID, sendRes.Error, now); err != nil {
			slog.Error("Engine.dispatchOne: failed to mark communication failed", "error", err, "communicationID", comm.ID)
		}
		result.Error = sendRes.Error
		return result
	}

	result.Success = true
	result.ProviderSID = sendRes.SID
	if sendRes.Delivered {
		if err := e.st.MarkCommunicationDelivered(comm.ID, sendRes.SID, now); err != nil {
			slog.Error("Engine.dispatchOne: failed to mark communication delivered", "error", err, "communicationID", comm.ID)
		}
	} else {
		if err := e.st.MarkCommunicationSent(comm.ID, sendRes.SID, now); err != nil {
			slog.Error("Engine.dispatchOne: failed to mark communication sent", "error", err, "communicationID", comm.ID)
		}
	}
	return result
}

// rejectionReason builds the consent rejection message for a channel.
func rejectionReason(channel models.ChannelType) string {
	return fmt.Sprintf("%s disabled for this patient", channel)
}

// renderFor renders the body for one recipient using their record, their
// next upcoming appointment if any, and the caller's custom variables.
func (e *Engine) renderFor(patient models.Patient, job Job) string {
	appt, err := e.st.NextAppointmentForPatient(patient.ID, time.Now())
	if err != nil {
		slog.Warn("Engine.renderFor: appointment lookup failed, rendering without", "error", err, "patientID", patient.ID)
		appt = nil
	}
	return e.renderer.Render(job.Body, template.Data{
		Patient:     &patient,
		Appointment: appt,
		Custom:      job.Custom,
	})
}

// invokeTransport calls the channel-appropriate transport operation and
// folds any Go error into the SendResult so a failure stays per-recipient.
func (e *Engine) invokeTransport(ctx context.Context, channel models.ChannelType, to, content string) models.SendResult {
	var res models.SendResult
	var err error
	switch channel {
	case models.ChannelVoice:
		res, err = e.msg.MakeVoiceCall(ctx, to, content)
	default:
		res, err = e.msg.SendSMS(ctx, to, content)
	}
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	if err != nil {
		res.Success = false
	}
	return res
}
