package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/carepulse/carepulse/internal/models"
)

// isNoRows reports whether err is (or wraps) sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// rowScanner abstracts *sql.Row and *sql.Rows so scan helpers serve both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanPatient scans a Patient row in the canonical column order.
func scanPatient(row rowScanner) (models.Patient, error) {
	var p models.Patient
	var email sql.NullString
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.PhoneNumber, &email,
		&p.SMSEnabled, &p.VoiceEnabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("scan patient failed: %w", err)
	}
	p.Email = email.String
	return p, nil
}

// scanTemplate scans a Template row in the canonical column order.
func scanTemplate(row rowScanner) (models.Template, error) {
	var t models.Template
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, fmt.Errorf("scan template failed: %w", err)
	}
	return t, nil
}

// scanAppointment scans an Appointment row in the canonical column order.
func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	var description sql.NullString
	err := row.Scan(&a.ID, &a.PatientID, &a.Title, &description, &a.StartTime, &a.CreatedAt)
	if err != nil {
		return a, fmt.Errorf("scan appointment failed: %w", err)
	}
	a.Description = description.String
	return a, nil
}

// scanCommunication scans a Communication row in the canonical column order.
func scanCommunication(row rowScanner) (models.Communication, error) {
	var c models.Communication
	var templateID, providerSID, errorMessage sql.NullString
	var sentAt, deliveredAt, failedAt sql.NullTime
	err := row.Scan(&c.ID, &c.PatientID, &templateID, &c.Type, &c.Content, &c.PhoneNumber,
		&c.Status, &providerSID, &errorMessage, &sentAt, &deliveredAt, &failedAt, &c.CreatedAt)
	if err != nil {
		return c, fmt.Errorf("scan communication failed: %w", err)
	}
	c.TemplateID = templateID.String
	c.ProviderSID = providerSID.String
	c.ErrorMessage = errorMessage.String
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		c.DeliveredAt = &deliveredAt.Time
	}
	if failedAt.Valid {
		c.FailedAt = &failedAt.Time
	}
	return c, nil
}

// scanScheduled scans a ScheduledCommunication row in the canonical column order.
func scanScheduled(row rowScanner) (models.ScheduledCommunication, error) {
	var sc models.ScheduledCommunication
	var patientID, groupID, templateID, recurrence, customVars sql.NullString
	err := row.Scan(&sc.ID, &patientID, &groupID, &templateID, &sc.Type, &sc.Content,
		&sc.ScheduledFor, &sc.IsRecurring, &recurrence, &customVars, &sc.CreatedAt)
	if err != nil {
		return sc, fmt.Errorf("scan scheduled communication failed: %w", err)
	}
	sc.PatientID = patientID.String
	sc.GroupID = groupID.String
	sc.TemplateID = templateID.String
	sc.RecurrenceJSON = recurrence.String
	sc.CustomVarsJSON = customVars.String
	return sc, nil
}
