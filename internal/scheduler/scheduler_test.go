package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/messaging"
	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
	"github.com/carepulse/carepulse/internal/template"
	"github.com/carepulse/carepulse/internal/twilioclient"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewScheduler(st), st
}

func newTestMaterializer(t *testing.T, st *store.InMemoryStore) (*Materializer, *twilioclient.MockClient) {
	t.Helper()
	mock := twilioclient.NewMockClient()
	engine := dispatch.NewEngine(st, messaging.NewTwilioService(mock), template.NewRenderer(template.ClinicInfo{}))
	return NewMaterializer(st, engine), mock
}

func schedPatient(t *testing.T, st *store.InMemoryStore, phone string, sms bool) models.Patient {
	t.Helper()
	p := models.Patient{FirstName: "Pat", LastName: "Test", PhoneNumber: phone, SMSEnabled: sms, VoiceEnabled: true}
	if err := st.CreatePatient(&p); err != nil {
		t.Fatalf("failed to create patient: %v", err)
	}
	return p
}

func TestSchedulePastTimeRejectedWithoutRecords(t *testing.T) {
	sched, st := newTestScheduler(t)
	now := time.Now()
	past := now.Add(-time.Hour)

	_, err := sched.Schedule(models.BulkSendRequest{
		PatientIDs:  []string{"p1"},
		Type:        models.ChannelSMS,
		ScheduleFor: &past,
	}, "body", []models.Patient{{ID: "p1"}}, now)
	if !errors.Is(err, models.ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}

	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 0 {
		t.Errorf("rejected schedule created %d rows", len(scheduled))
	}
}

func TestScheduleExactlyNowRejected(t *testing.T) {
	sched, _ := newTestScheduler(t)
	now := time.Now()

	_, err := sched.Schedule(models.BulkSendRequest{
		PatientIDs:  []string{"p1"},
		Type:        models.ChannelSMS,
		ScheduleFor: &now,
	}, "body", []models.Patient{{ID: "p1"}}, now)
	if !errors.Is(err, models.ErrInvalidSchedule) {
		t.Errorf("schedule_for equal to now must be rejected, got %v", err)
	}
}

func TestScheduleGroupCreatesSingleRow(t *testing.T) {
	sched, st := newTestScheduler(t)
	now := time.Now()
	future := now.Add(time.Hour)

	result, err := sched.Schedule(models.BulkSendRequest{
		GroupID:     "g1",
		Type:        models.ChannelSMS,
		ScheduleFor: &future,
	}, "body", []models.Patient{{ID: "p1"}, {ID: "p2"}}, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if result.ScheduledCount != 1 {
		t.Errorf("ScheduledCount = %d, want 1 row for a group send", result.ScheduledCount)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 1 || scheduled[0].GroupID != "g1" || scheduled[0].PatientID != "" {
		t.Errorf("unexpected scheduled rows: %+v", scheduled)
	}
}

func TestSchedulePatientListCreatesRowPerPatient(t *testing.T) {
	sched, st := newTestScheduler(t)
	now := time.Now()
	future := now.Add(time.Hour)

	result, err := sched.Schedule(models.BulkSendRequest{
		PatientIDs:  []string{"p1", "p2"},
		Type:        models.ChannelVoice,
		ScheduleFor: &future,
	}, "body", []models.Patient{{ID: "p1"}, {ID: "p2"}}, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if result.ScheduledCount != 2 {
		t.Errorf("ScheduledCount = %d, want 2", result.ScheduledCount)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(scheduled))
	}
	for _, sc := range scheduled {
		if sc.GroupID != "" || sc.PatientID == "" {
			t.Errorf("patient-list rows must target a single patient: %+v", sc)
		}
	}
}

func TestScheduleStoresRecurrence(t *testing.T) {
	sched, st := newTestScheduler(t)
	now := time.Now()
	future := now.Add(time.Hour)

	_, err := sched.Schedule(models.BulkSendRequest{
		PatientIDs:  []string{"p1"},
		Type:        models.ChannelSMS,
		ScheduleFor: &future,
		Recurrence:  &models.RecurrenceRule{Unit: "week", Interval: 2},
	}, "body", []models.Patient{{ID: "p1"}}, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if !scheduled[0].IsRecurring || scheduled[0].RecurrenceJSON == "" {
		t.Errorf("recurrence not persisted: %+v", scheduled[0])
	}
}

func TestScheduleStoresCustomVariables(t *testing.T) {
	sched, st := newTestScheduler(t)
	now := time.Now()
	future := now.Add(time.Hour)

	_, err := sched.Schedule(models.BulkSendRequest{
		PatientIDs:      []string{"p1"},
		Type:            models.ChannelSMS,
		ScheduleFor:     &future,
		CustomVariables: map[string]string{"copayAmount": "$25"},
	}, "Your copay is {copayAmount}.", []models.Patient{{ID: "p1"}}, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if scheduled[0].CustomVarsJSON != `{"copayAmount":"$25"}` {
		t.Errorf("custom variables not persisted: %q", scheduled[0].CustomVarsJSON)
	}
}

func TestMaterializeDueDispatchesAndDeletesOneShot(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, mock := newTestMaterializer(t, st)
	p := schedPatient(t, st, "+15551230001", true)

	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:    p.ID,
		Type:         models.ChannelSMS,
		Content:      "Hello {firstName}",
		ScheduledFor: time.Now().Add(-time.Minute),
	})

	count, err := mat.MaterializeDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if count != 1 {
		t.Errorf("materialized %d rows, want 1", count)
	}
	if len(mock.SentSMS) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(mock.SentSMS))
	}
	if mock.SentSMS[0].Body != "Hello Pat" {
		t.Errorf("materialized body = %q", mock.SentSMS[0].Body)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 0 {
		t.Errorf("one-shot row not deleted: %+v", scheduled)
	}
}

func TestMaterializeRendersStoredCustomVariables(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, mock := newTestMaterializer(t, st)
	p := schedPatient(t, st, "+15551230001", true)

	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:      p.ID,
		Type:           models.ChannelSMS,
		Content:        "Your copay is {copayAmount}.",
		ScheduledFor:   time.Now().Add(-time.Minute),
		CustomVarsJSON: `{"copayAmount":"$25"}`,
	})

	if _, err := mat.MaterializeDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if len(mock.SentSMS) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(mock.SentSMS))
	}
	if mock.SentSMS[0].Body != "Your copay is $25." {
		t.Errorf("materialized body = %q, custom variables not rendered", mock.SentSMS[0].Body)
	}
}

func TestMaterializeDueSkipsFutureRows(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, mock := newTestMaterializer(t, st)
	p := schedPatient(t, st, "+15551230001", true)

	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:    p.ID,
		Type:         models.ChannelSMS,
		Content:      "later",
		ScheduledFor: time.Now().Add(time.Hour),
	})

	count, err := mat.MaterializeDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if count != 0 || len(mock.SentSMS) != 0 {
		t.Errorf("future row materialized early: count=%d sent=%d", count, len(mock.SentSMS))
	}
}

func TestMaterializeReappliesConsent(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, mock := newTestMaterializer(t, st)
	p := schedPatient(t, st, "+15551230001", false)

	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:    p.ID,
		Type:         models.ChannelSMS,
		Content:      "Hello",
		ScheduledFor: time.Now().Add(-time.Minute),
	})

	if _, err := mat.MaterializeDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if len(mock.SentSMS) != 0 {
		t.Errorf("consent must be re-checked at materialization, SMS sent to opted-out patient")
	}
}

func TestMaterializeAdvancesRecurringRow(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, _ := newTestMaterializer(t, st)
	p := schedPatient(t, st, "+15551230001", true)

	origin := time.Now().Add(-time.Minute)
	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:      p.ID,
		Type:           models.ChannelSMS,
		Content:        "Hello",
		ScheduledFor:   origin,
		IsRecurring:    true,
		RecurrenceJSON: `{"unit":"day","interval":1}`,
	})

	if _, err := mat.MaterializeDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 1 {
		t.Fatalf("recurring row deleted, want advanced")
	}
	want := origin.AddDate(0, 0, 1)
	if !scheduled[0].ScheduledFor.Equal(want) {
		t.Errorf("ScheduledFor = %v, want %v", scheduled[0].ScheduledFor, want)
	}
}

func TestMaterializeDropsRowForDeletedPatient(t *testing.T) {
	_, st := newTestScheduler(t)
	mat, mock := newTestMaterializer(t, st)

	st.CreateScheduledCommunication(&models.ScheduledCommunication{
		PatientID:    "gone",
		Type:         models.ChannelSMS,
		Content:      "Hello",
		ScheduledFor: time.Now().Add(-time.Minute),
	})

	if _, err := mat.MaterializeDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if len(mock.SentSMS) != 0 {
		t.Error("dispatched to a deleted patient")
	}
	scheduled, _ := st.ListScheduledCommunications()
	if len(scheduled) != 0 {
		t.Errorf("unresolvable row not removed: %+v", scheduled)
	}
}

func TestNextOccurrenceSkipsMissedSteps(t *testing.T) {
	from := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	next := nextOccurrence(from, models.RecurrenceRule{Unit: "week", Interval: 1}, now)
	want := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextOccurrence = %v, want %v", next, want)
	}
}

func TestNextOccurrenceMonthly(t *testing.T) {
	from := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	next := nextOccurrence(from, models.RecurrenceRule{Unit: "month", Interval: 1}, now)
	want := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextOccurrence = %v, want %v", next, want)
	}
}

func TestNextOccurrenceHonorsDaysOfWeek(t *testing.T) {
	rule := models.RecurrenceRule{Unit: "week", Interval: 1, DaysOfWeek: []string{"monday", "thursday"}}

	// 2026-08-03 is a Monday. After the Monday run the next listed day is
	// Thursday, not Monday plus a week.
	from := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	next := nextOccurrence(from, rule, from)
	want := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextOccurrence = %v, want Thursday %v", next, want)
	}
}

func TestNextOccurrenceDaysOfWeekSkipsMissed(t *testing.T) {
	rule := models.RecurrenceRule{Unit: "week", Interval: 1, DaysOfWeek: []string{"monday"}}

	// Row targeted Monday 2026-08-03 but the materializer first ran on
	// Friday. The next Monday keeps the original clock time.
	from := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 7, 12, 0, 0, 0, time.UTC)
	next := nextOccurrence(from, rule, now)
	want := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextOccurrence = %v, want next Monday %v", next, want)
	}
}
