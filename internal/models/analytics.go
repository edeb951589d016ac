package models

import "time"

// ChannelStats holds per-channel delivery counts over the analytics window.
type ChannelStats struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// DayBucket holds per-day counts ordered chronologically. Sent counts
// communications created that day that the provider accepted (SENT or
// DELIVERED); Delivered and Failed count terminal statuses.
type DayBucket struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Sent      int    `json:"sent"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// PatientCount pairs a patient display name with a communication count.
type PatientCount struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Count       int    `json:"count"`
}

// FailureRecord describes one recent failed communication.
type FailureRecord struct {
	PatientName  string    `json:"patient_name"`
	PhoneNumber  string    `json:"phone_number"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FailedAt     time.Time `json:"failed_at"`
}

// AnalyticsSnapshot is computed on read from Communication rows in a date
// window; it is never persisted. SuccessRate is the raw rational value
// (delivered / total, 0 when total is 0); rounding is left to the dashboard.
type AnalyticsSnapshot struct {
	WindowDays     int                          `json:"window_days"`
	TotalCount     int                          `json:"total_count"`
	DeliveredCount int                          `json:"delivered_count"`
	FailedCount    int                          `json:"failed_count"`
	PendingCount   int                          `json:"pending_count"`
	SuccessRate    float64                      `json:"success_rate"`
	ByChannel      map[ChannelType]ChannelStats `json:"by_channel"`
	Daily          []DayBucket                  `json:"daily"`
	TopPatients    []PatientCount               `json:"top_patients"`
	RecentFailures []FailureRecord              `json:"recent_failures"`
}
