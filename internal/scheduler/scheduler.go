// Package scheduler persists deferred send intents and materializes them
// into real communications when they come due.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
)

// Scheduler creates ScheduledCommunication rows for future sends. It does
// not expand recurrences; the recurrence rule is stored as an opaque
// descriptor for the materializer to interpret.
type Scheduler struct {
	st store.Store
}

// NewScheduler creates a Scheduler over the given store.
func NewScheduler(st store.Store) *Scheduler {
	return &Scheduler{st: st}
}

// Schedule validates the target time and persists one row per resolved
// recipient, or a single row referencing the group for group sends.
// Recipients are stored unfiltered; consent is re-checked when the dispatch
// engine materializes the send. A target time not strictly after now is
// ErrInvalidSchedule and creates no records.
func (s *Scheduler) Schedule(req models.BulkSendRequest, body string, recipients []models.Patient, now time.Time) (*models.ScheduleResult, error) {
	if req.ScheduleFor == nil {
		return nil, fmt.Errorf("%w: schedule_for is required", models.ErrInvalidRequest)
	}
	scheduleFor := *req.ScheduleFor
	if !scheduleFor.After(now) {
		return nil, models.ErrInvalidSchedule
	}

	var recurrenceJSON string
	isRecurring := false
	if req.Recurrence != nil {
		raw, err := json.Marshal(req.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("failed to encode recurrence rule: %w", err)
		}
		recurrenceJSON = string(raw)
		isRecurring = true
	}

	// Custom variables are request-scoped, so they ride along on the row and
	// are rendered at materialization with the same precedence as an
	// immediate send.
	var customVarsJSON string
	if len(req.CustomVariables) > 0 {
		raw, err := json.Marshal(req.CustomVariables)
		if err != nil {
			return nil, fmt.Errorf("failed to encode custom variables: %w", err)
		}
		customVarsJSON = string(raw)
	}

	base := models.ScheduledCommunication{
		TemplateID:     req.TemplateID,
		Type:           req.Type,
		Content:        body,
		ScheduledFor:   scheduleFor,
		IsRecurring:    isRecurring,
		RecurrenceJSON: recurrenceJSON,
		CustomVarsJSON: customVarsJSON,
	}

	var created []models.ScheduledCommunication
	if req.GroupID != "" {
		sc := base
		sc.GroupID = req.GroupID
		if err := s.st.CreateScheduledCommunication(&sc); err != nil {
			return nil, fmt.Errorf("failed to create scheduled communication: %w", err)
		}
		created = append(created, sc)
	} else {
		for _, p := range recipients {
			sc := base
			sc.PatientID = p.ID
			if err := s.st.CreateScheduledCommunication(&sc); err != nil {
				return nil, fmt.Errorf("failed to create scheduled communication: %w", err)
			}
			created = append(created, sc)
		}
	}

	slog.Info("Scheduler.Schedule: communications scheduled", "count", len(created),
		"scheduled_for", scheduleFor, "recurring", isRecurring)
	return &models.ScheduleResult{
		Message:                 fmt.Sprintf("Scheduled %d communication(s) for %s", len(created), scheduleFor.Format(time.RFC3339)),
		ScheduledCount:          len(created),
		ScheduledCommunications: created,
	}, nil
}
