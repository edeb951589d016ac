// Package analytics computes delivery statistics over a trailing window of
// communication history.
package analytics

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
)

// MaxRecentFailures bounds the failure list in a snapshot.
const MaxRecentFailures = 10

// MaxTopPatients bounds the most-contacted patient list in a snapshot.
const MaxTopPatients = 5

// Aggregator computes analytics snapshots from stored communications.
type Aggregator struct {
	st store.Store
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{st: st}
}

// Snapshot aggregates all communications created in the last `days` days,
// ending at now. Days must be between 1 and 365. The success rate is the raw
// ratio of delivered to total, with no smoothing; an empty window reports a
// rate of exactly zero.
func (a *Aggregator) Snapshot(days int, now time.Time) (*models.AnalyticsSnapshot, error) {
	if days < 1 || days > models.MaxAnalyticsWindowDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", models.ErrInvalidRequest, models.MaxAnalyticsWindowDays)
	}

	since := now.AddDate(0, 0, -days)
	comms, err := a.st.ListCommunicationsSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load communications: %w", err)
	}

	snap := &models.AnalyticsSnapshot{
		WindowDays: days,
		TotalCount: len(comms),
		ByChannel:  make(map[models.ChannelType]models.ChannelStats),
	}

	perPatient := make(map[string]int)
	var failures []models.FailureRecord
	buckets := make(map[string]*models.DayBucket)

	for _, c := range comms {
		stats := snap.ByChannel[c.Type]
		stats.Total++

		switch c.Status {
		case models.StatusDelivered:
			snap.DeliveredCount++
			stats.Delivered++
		case models.StatusFailed:
			snap.FailedCount++
			stats.Failed++
			failures = append(failures, a.failureRecord(c))
		case models.StatusPending:
			snap.PendingCount++
			stats.Pending++
		}
		snap.ByChannel[c.Type] = stats

		perPatient[c.PatientID]++

		day := c.CreatedAt.Format("2006-01-02")
		bucket, ok := buckets[day]
		if !ok {
			bucket = &models.DayBucket{Date: day}
			buckets[day] = bucket
		}
		switch c.Status {
		case models.StatusSent, models.StatusDelivered:
			bucket.Sent++
			if c.Status == models.StatusDelivered {
				bucket.Delivered++
			}
		case models.StatusFailed:
			bucket.Failed++
		}
	}

	if snap.TotalCount > 0 {
		snap.SuccessRate = float64(snap.DeliveredCount) / float64(snap.TotalCount)
	}
	snap.Daily = sortedBuckets(buckets)
	snap.TopPatients = a.topPatients(perPatient)
	snap.RecentFailures = recentFailures(failures)

	slog.Debug("Aggregator.Snapshot: computed", "days", days, "total", snap.TotalCount,
		"delivered", snap.DeliveredCount, "failed", snap.FailedCount)
	return snap, nil
}

func (a *Aggregator) failureRecord(c models.Communication) models.FailureRecord {
	rec := models.FailureRecord{
		PhoneNumber:  c.PhoneNumber,
		ErrorMessage: c.ErrorMessage,
	}
	if c.FailedAt != nil {
		rec.FailedAt = *c.FailedAt
	} else {
		rec.FailedAt = c.CreatedAt
	}
	if patient, err := a.st.GetPatient(c.PatientID); err == nil && patient != nil {
		rec.PatientName = patient.FullName()
	}
	return rec
}

// topPatients ranks patients by communication count, descending, with
// patient id as the tie-breaker so the ordering is deterministic.
func (a *Aggregator) topPatients(perPatient map[string]int) []models.PatientCount {
	counts := make([]models.PatientCount, 0, len(perPatient))
	for id, n := range perPatient {
		pc := models.PatientCount{PatientID: id, Count: n}
		if patient, err := a.st.GetPatient(id); err == nil && patient != nil {
			pc.PatientName = patient.FullName()
		}
		counts = append(counts, pc)
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].PatientID < counts[j].PatientID
	})
	if len(counts) > MaxTopPatients {
		counts = counts[:MaxTopPatients]
	}
	return counts
}

func sortedBuckets(buckets map[string]*models.DayBucket) []models.DayBucket {
	daily := make([]models.DayBucket, 0, len(buckets))
	for _, b := range buckets {
		daily = append(daily, *b)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })
	return daily
}

func recentFailures(failures []models.FailureRecord) []models.FailureRecord {
	sort.Slice(failures, func(i, j int) bool { return failures[i].FailedAt.After(failures[j].FailedAt) })
	if len(failures) > MaxRecentFailures {
		failures = failures[:MaxRecentFailures]
	}
	return failures
}
