// Package store provides storage backends for CarePulse.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/carepulse/carepulse/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Cascade deletes rely on foreign key enforcement.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		slog.Error("Failed to enable SQLite foreign keys", "error", err)
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreatePatient(p *models.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO patients (id, first_name, last_name, phone_number, email, sms_enabled, voice_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FirstName, p.LastName, p.PhoneNumber, nilIfEmpty(p.Email), p.SMSEnabled, p.VoiceEnabled, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreatePatient failed", "error", err, "phone", p.PhoneNumber)
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	slog.Debug("SQLiteStore CreatePatient succeeded", "id", p.ID)
	return nil
}

const patientColumns = `id, first_name, last_name, phone_number, email, sms_enabled, voice_enabled, created_at, updated_at`

func (s *SQLiteStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetPatient failed", "error", err, "id", id)
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) GetPatientsByIDs(ids []string) ([]models.Patient, error) {
	var patients []models.Patient
	// Ids not found are silently dropped; a partial match is not failure.
	for _, id := range ids {
		p, err := s.GetPatient(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			patients = append(patients, *p)
		}
	}
	return patients, nil
}

func (s *SQLiteStore) ListPatients() ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY last_name, first_name`)
	if err != nil {
		slog.Error("SQLiteStore ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()
	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *SQLiteStore) UpdatePatient(p *models.Patient) error {
	p.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE patients SET first_name = ?, last_name = ?, phone_number = ?, email = ?, sms_enabled = ?, voice_enabled = ?, updated_at = ? WHERE id = ?`,
		p.FirstName, p.LastName, p.PhoneNumber, nilIfEmpty(p.Email), p.SMSEnabled, p.VoiceEnabled, p.UpdatedAt, p.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdatePatient failed", "error", err, "id", p.ID)
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeletePatient(id string) error {
	_, err := s.db.Exec(`DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeletePatient failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateGroup(g *models.PatientGroup) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO patient_groups (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, nilIfEmpty(g.Color), g.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateGroup failed", "error", err, "name", g.Name)
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetGroup(id string) (*models.PatientGroup, error) {
	var g models.PatientGroup
	var color sql.NullString
	err := s.db.QueryRow(`SELECT id, name, color, created_at FROM patient_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &color, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetGroup failed", "error", err, "id", id)
		return nil, err
	}
	g.Color = color.String
	return &g, nil
}

func (s *SQLiteStore) DeleteGroup(id string) error {
	_, err := s.db.Exec(`DELETE FROM patient_groups WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteGroup failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddGroupMember(groupID, patientID string) error {
	_, err := s.db.Exec(`INSERT INTO patient_group_members (id, patient_id, group_id, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), patientID, groupID, time.Now())
	if err != nil {
		slog.Error("SQLiteStore AddGroupMember failed", "error", err, "groupID", groupID, "patientID", patientID)
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveGroupMember(groupID, patientID string) error {
	_, err := s.db.Exec(`DELETE FROM patient_group_members WHERE group_id = ? AND patient_id = ?`, groupID, patientID)
	if err != nil {
		slog.Error("SQLiteStore RemoveGroupMember failed", "error", err, "groupID", groupID, "patientID", patientID)
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGroupPatients(groupID string) ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT p.id, p.first_name, p.last_name, p.phone_number, p.email, p.sms_enabled, p.voice_enabled, p.created_at, p.updated_at
		FROM patients p
		JOIN patient_group_members m ON m.patient_id = p.id
		WHERE m.group_id = ?`, groupID)
	if err != nil {
		slog.Error("SQLiteStore ListGroupPatients query failed", "error", err, "groupID", groupID)
		return nil, fmt.Errorf("failed to query group patients: %w", err)
	}
	defer rows.Close()
	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *SQLiteStore) CreateTemplate(t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO templates (id, name, type, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Type, t.Body, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTemplate failed", "error", err, "name", t.Name)
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTemplate(id string) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, name, type, body, created_at, updated_at FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetTemplate failed", "error", err, "id", id)
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTemplate(t *models.Template) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE templates SET name = ?, type = ?, body = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Type, t.Body, t.UpdatedAt, t.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateTemplate failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s not found", t.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteTemplate failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAppointment(a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO appointments (id, patient_id, title, description, start_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.Title, nilIfEmpty(a.Description), a.StartTime, a.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment failed", "error", err, "patientID", a.PatientID)
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) NextAppointmentForPatient(patientID string, after time.Time) (*models.Appointment, error) {
	row := s.db.QueryRow(`SELECT id, patient_id, title, description, start_time, created_at
		FROM appointments WHERE patient_id = ? AND start_time > ? ORDER BY start_time ASC LIMIT 1`, patientID, after)
	a, err := scanAppointment(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore NextAppointmentForPatient failed", "error", err, "patientID", patientID)
		return nil, err
	}
	return &a, nil
}

const communicationColumns = `id, patient_id, template_id, type, content, phone_number, status, provider_sid, error_message, sent_at, delivered_at, failed_at, created_at`

func (s *SQLiteStore) CreateCommunication(c *models.Communication) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.StatusPending
	}
	c.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO communications (`+communicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PatientID, nilIfEmpty(c.TemplateID), c.Type, c.Content, c.PhoneNumber, c.Status,
		nilIfEmpty(c.ProviderSID), nilIfEmpty(c.ErrorMessage), c.SentAt, c.DeliveredAt, c.FailedAt, c.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateCommunication failed", "error", err, "patientID", c.PatientID)
		return fmt.Errorf("failed to insert communication: %w", err)
	}
	slog.Debug("SQLiteStore CreateCommunication succeeded", "id", c.ID, "status", c.Status)
	return nil
}

func (s *SQLiteStore) GetCommunication(id string) (*models.Communication, error) {
	row := s.db.QueryRow(`SELECT `+communicationColumns+` FROM communications WHERE id = ?`, id)
	c, err := scanCommunication(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetCommunication failed", "error", err, "id", id)
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) MarkCommunicationSent(id, providerSID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = ?, provider_sid = ?, sent_at = ? WHERE id = ?`,
		models.StatusSent, nilIfEmpty(providerSID), at, id)
	if err != nil {
		slog.Error("SQLiteStore MarkCommunicationSent failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication sent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkCommunicationDelivered(id, providerSID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = ?, provider_sid = ?, sent_at = ?, delivered_at = ? WHERE id = ?`,
		models.StatusDelivered, nilIfEmpty(providerSID), at, at, id)
	if err != nil {
		slog.Error("SQLiteStore MarkCommunicationDelivered failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication delivered: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkCommunicationFailed(id, errorMessage string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = ?, error_message = ?, failed_at = ? WHERE id = ?`,
		models.StatusFailed, nilIfEmpty(errorMessage), at, id)
	if err != nil {
		slog.Error("SQLiteStore MarkCommunicationFailed failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCommunicationsSince(since time.Time) ([]models.Communication, error) {
	rows, err := s.db.Query(`SELECT `+communicationColumns+` FROM communications WHERE created_at >= ? ORDER BY created_at ASC`, since)
	if err != nil {
		slog.Error("SQLiteStore ListCommunicationsSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query communications: %w", err)
	}
	defer rows.Close()
	var comms []models.Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, err
		}
		comms = append(comms, c)
	}
	return comms, rows.Err()
}

const scheduledColumns = `id, patient_id, group_id, template_id, type, content, scheduled_for, is_recurring, recurrence, custom_variables, created_at`

func (s *SQLiteStore) CreateScheduledCommunication(sc *models.ScheduledCommunication) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO scheduled_communications (`+scheduledColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, nilIfEmpty(sc.PatientID), nilIfEmpty(sc.GroupID), nilIfEmpty(sc.TemplateID),
		sc.Type, sc.Content, sc.ScheduledFor, sc.IsRecurring, nilIfEmpty(sc.RecurrenceJSON),
		nilIfEmpty(sc.CustomVarsJSON), sc.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateScheduledCommunication failed", "error", err)
		return fmt.Errorf("failed to insert scheduled communication: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScheduledCommunication(id string) (*models.ScheduledCommunication, error) {
	row := s.db.QueryRow(`SELECT `+scheduledColumns+` FROM scheduled_communications WHERE id = ?`, id)
	sc, err := scanScheduled(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetScheduledCommunication failed", "error", err, "id", id)
		return nil, err
	}
	return &sc, nil
}

func (s *SQLiteStore) ListScheduledCommunications() ([]models.ScheduledCommunication, error) {
	return s.queryScheduled(`SELECT ` + scheduledColumns + ` FROM scheduled_communications ORDER BY scheduled_for ASC`)
}

func (s *SQLiteStore) ListDueScheduledCommunications(now time.Time) ([]models.ScheduledCommunication, error) {
	return s.queryScheduled(`SELECT `+scheduledColumns+` FROM scheduled_communications WHERE scheduled_for <= ? ORDER BY scheduled_for ASC`, now)
}

func (s *SQLiteStore) queryScheduled(query string, args ...interface{}) ([]models.ScheduledCommunication, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore scheduled query failed", "error", err)
		return nil, fmt.Errorf("failed to query scheduled communications: %w", err)
	}
	defer rows.Close()
	var scs []models.ScheduledCommunication
	for rows.Next() {
		sc, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		scs = append(scs, sc)
	}
	return scs, rows.Err()
}

func (s *SQLiteStore) DeleteScheduledCommunication(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_communications WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteScheduledCommunication failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete scheduled communication: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AdvanceScheduledCommunication(id string, next time.Time) error {
	_, err := s.db.Exec(`UPDATE scheduled_communications SET scheduled_for = ? WHERE id = ?`, next, id)
	if err != nil {
		slog.Error("SQLiteStore AdvanceScheduledCommunication failed", "error", err, "id", id)
		return fmt.Errorf("failed to advance scheduled communication: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
