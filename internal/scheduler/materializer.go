package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
)

// Materializer turns due ScheduledCommunication rows into real Communication
// rows through the dispatch engine. Consent is re-validated here because the
// engine always applies the eligibility check, even though scheduled rows
// store unfiltered targets.
type Materializer struct {
	st     store.Store
	engine *dispatch.Engine
}

// NewMaterializer creates a Materializer.
func NewMaterializer(st store.Store, engine *dispatch.Engine) *Materializer {
	return &Materializer{st: st, engine: engine}
}

// MaterializeDue dispatches every scheduled communication whose target time
// is at or before now. One-shot rows are deleted afterwards; recurring rows
// have scheduled_for advanced past now per their recurrence rule. Returns
// the number of rows materialized.
func (m *Materializer) MaterializeDue(ctx context.Context, now time.Time) (int, error) {
	due, err := m.st.ListDueScheduledCommunications(now)
	if err != nil {
		return 0, err
	}
	for _, sc := range due {
		m.materialize(ctx, sc, now)
	}
	if len(due) > 0 {
		slog.Info("Materializer.MaterializeDue: scheduled communications materialized", "count", len(due))
	}
	return len(due), nil
}

func (m *Materializer) materialize(ctx context.Context, sc models.ScheduledCommunication, now time.Time) {
	recipients, ok := m.resolveTarget(sc)
	if ok && len(recipients) > 0 {
		result := m.engine.Dispatch(ctx, dispatch.Job{
			Recipients: recipients,
			Channel:    sc.Type,
			Body:       sc.Content,
			TemplateID: sc.TemplateID,
			Custom:     parseCustomVars(sc.CustomVarsJSON),
		})
		slog.Debug("Materializer.materialize: dispatched", "scheduledID", sc.ID,
			"success", result.SuccessCount, "failure", result.FailureCount)
	} else {
		slog.Warn("Materializer.materialize: target no longer resolvable, dropping", "scheduledID", sc.ID)
	}

	if !sc.IsRecurring {
		if err := m.st.DeleteScheduledCommunication(sc.ID); err != nil {
			slog.Error("Materializer.materialize: failed to delete one-shot row", "error", err, "scheduledID", sc.ID)
		}
		return
	}

	rule, err := parseRecurrence(sc.RecurrenceJSON)
	if err != nil {
		slog.Error("Materializer.materialize: invalid recurrence, treating as one-shot", "error", err, "scheduledID", sc.ID)
		if err := m.st.DeleteScheduledCommunication(sc.ID); err != nil {
			slog.Error("Materializer.materialize: failed to delete row", "error", err, "scheduledID", sc.ID)
		}
		return
	}
	next := nextOccurrence(sc.ScheduledFor, rule, now)
	if err := m.st.AdvanceScheduledCommunication(sc.ID, next); err != nil {
		slog.Error("Materializer.materialize: failed to advance recurring row", "error", err, "scheduledID", sc.ID)
	}
}

// resolveTarget loads the patient or group members a row targets. A deleted
// patient or group yields (nil, false) so the row is dropped without dispatch.
func (m *Materializer) resolveTarget(sc models.ScheduledCommunication) ([]models.Patient, bool) {
	if sc.GroupID != "" {
		group, err := m.st.GetGroup(sc.GroupID)
		if err != nil || group == nil {
			return nil, false
		}
		patients, err := m.st.ListGroupPatients(sc.GroupID)
		if err != nil {
			return nil, false
		}
		return patients, true
	}
	patient, err := m.st.GetPatient(sc.PatientID)
	if err != nil || patient == nil {
		return nil, false
	}
	return []models.Patient{*patient}, true
}

// parseCustomVars decodes the stored custom-variable map. A row written
// without custom variables, or with a corrupt value, renders without them.
func parseCustomVars(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var vars map[string]string
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		slog.Warn("Materializer.parseCustomVars: invalid custom variables, ignoring", "error", err)
		return nil
	}
	return vars
}

func parseRecurrence(raw string) (models.RecurrenceRule, error) {
	var rule models.RecurrenceRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return rule, err
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	return rule, nil
}

// nextOccurrence advances from the row's target time by whole recurrence
// steps until strictly after now, so a delayed materializer run never
// schedules into the past. A weekly rule with a day-of-week list fires on
// each listed weekday instead of stepping by whole weeks.
func nextOccurrence(from time.Time, rule models.RecurrenceRule, now time.Time) time.Time {
	if rule.Unit == "week" && len(rule.DaysOfWeek) > 0 {
		return nextListedWeekday(from, rule.DaysOfWeek, now)
	}
	next := from
	for !next.After(now) {
		switch rule.Unit {
		case "week":
			next = next.AddDate(0, 0, 7*rule.Interval)
		case "month":
			next = next.AddDate(0, rule.Interval, 0)
		default:
			next = next.AddDate(0, 0, rule.Interval)
		}
	}
	return next
}

// nextListedWeekday steps one day at a time to the first listed weekday
// strictly after now, keeping the rule's original clock time.
func nextListedWeekday(from time.Time, days []string, now time.Time) time.Time {
	listed := make(map[string]bool, len(days))
	for _, d := range days {
		listed[strings.ToLower(d)] = true
	}
	next := from
	for {
		next = next.AddDate(0, 0, 1)
		if next.After(now) && listed[strings.ToLower(next.Weekday().String())] {
			return next
		}
	}
}
