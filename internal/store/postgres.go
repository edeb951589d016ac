// Package store provides storage backends for CarePulse.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/carepulse/carepulse/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreatePatient(p *models.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO patients (id, first_name, last_name, phone_number, email, sms_enabled, voice_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.FirstName, p.LastName, p.PhoneNumber, nilIfEmpty(p.Email), p.SMSEnabled, p.VoiceEnabled, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreatePatient failed", "error", err, "phone", p.PhoneNumber)
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("PostgresStore GetPatient failed", "error", err, "id", id)
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPatientsByIDs(ids []string) ([]models.Patient, error) {
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

func (s *PostgresStore) ListPatients() ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY last_name, first_name`)
	if err != nil {
		slog.Error("PostgresStore ListPatients query failed", "error", err)
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

func (s *PostgresStore) UpdatePatient(p *models.Patient) error {
	p.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE patients SET first_name = $1, last_name = $2, phone_number = $3, email = $4, sms_enabled = $5, voice_enabled = $6, updated_at = $7 WHERE id = $8`,
		p.FirstName, p.LastName, p.PhoneNumber, nilIfEmpty(p.Email), p.SMSEnabled, p.VoiceEnabled, p.UpdatedAt, p.ID)
	if err != nil {
		slog.Error("PostgresStore UpdatePatient failed", "error", err, "id", p.ID)
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	return nil
}

func (s *PostgresStore) DeletePatient(id string) error {
	_, err := s.db.Exec(`DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeletePatient failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateGroup(g *models.PatientGroup) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO patient_groups (id, name, color, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, nilIfEmpty(g.Color), g.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateGroup failed", "error", err, "name", g.Name)
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(id string) (*models.PatientGroup, error) {
	var g models.PatientGroup
	var color sql.NullString
	err := s.db.QueryRow(`SELECT id, name, color, created_at FROM patient_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &color, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetGroup failed", "error", err, "id", id)
		return nil, err
	}
	g.Color = color.String
	return &g, nil
}

func (s *PostgresStore) DeleteGroup(id string) error {
	_, err := s.db.Exec(`DELETE FROM patient_groups WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteGroup failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddGroupMember(groupID, patientID string) error {
	_, err := s.db.Exec(`INSERT INTO patient_group_members (id, patient_id, group_id, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), patientID, groupID, time.Now())
	if err != nil {
		slog.Error("PostgresStore AddGroupMember failed", "error", err, "groupID", groupID, "patientID", patientID)
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveGroupMember(groupID, patientID string) error {
	_, err := s.db.Exec(`DELETE FROM patient_group_members WHERE group_id = $1 AND patient_id = $2`, groupID, patientID)
	if err != nil {
		slog.Error("PostgresStore RemoveGroupMember failed", "error", err, "groupID", groupID, "patientID", patientID)
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroupPatients(groupID string) ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT p.id, p.first_name, p.last_name, p.phone_number, p.email, p.sms_enabled, p.voice_enabled, p.created_at, p.updated_at
		FROM patients p
		JOIN patient_group_members m ON m.patient_id = p.id
		WHERE m.group_id = $1`, groupID)
	if err != nil {
		slog.Error("PostgresStore ListGroupPatients query failed", "error", err, "groupID", groupID)
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

func (s *PostgresStore) CreateTemplate(t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO templates (id, name, type, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Type, t.Body, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateTemplate failed", "error", err, "name", t.Name)
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(id string) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, name, type, body, created_at, updated_at FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("PostgresStore GetTemplate failed", "error", err, "id", id)
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTemplate(t *models.Template) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE templates SET name = $1, type = $2, body = $3, updated_at = $4 WHERE id = $5`,
		t.Name, t.Type, t.Body, t.UpdatedAt, t.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateTemplate failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s not found", t.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTemplate failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAppointment(a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO appointments (id, patient_id, title, description, start_time, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.PatientID, a.Title, nilIfEmpty(a.Description), a.StartTime, a.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateAppointment failed", "error", err, "patientID", a.PatientID)
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextAppointmentForPatient(patientID string, after time.Time) (*models.Appointment, error) {
	row := s.db.QueryRow(`SELECT id, patient_id, title, description, start_time, created_at
		FROM appointments WHERE patient_id = $1 AND start_time > $2 ORDER BY start_time ASC LIMIT 1`, patientID, after)
	a, err := scanAppointment(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("PostgresStore NextAppointmentForPatient failed", "error", err, "patientID", patientID)
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateCommunication(c *models.Communication) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.StatusPending
	}
	c.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO communications (`+communicationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.PatientID, nilIfEmpty(c.TemplateID), c.Type, c.Content, c.PhoneNumber, c.Status,
		nilIfEmpty(c.ProviderSID), nilIfEmpty(c.ErrorMessage), c.SentAt, c.DeliveredAt, c.FailedAt, c.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateCommunication failed", "error", err, "patientID", c.PatientID)
		return fmt.Errorf("failed to insert communication: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCommunication(id string) (*models.Communication, error) {
	row := s.db.QueryRow(`SELECT `+communicationColumns+` FROM communications WHERE id = $1`, id)
	c, err := scanCommunication(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("PostgresStore GetCommunication failed", "error", err, "id", id)
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) MarkCommunicationSent(id, providerSID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = $1, provider_sid = $2, sent_at = $3 WHERE id = $4`,
		models.StatusSent, nilIfEmpty(providerSID), at, id)
	if err != nil {
		slog.Error("PostgresStore MarkCommunicationSent failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkCommunicationDelivered(id, providerSID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = $1, provider_sid = $2, sent_at = $3, delivered_at = $4 WHERE id = $5`,
		models.StatusDelivered, nilIfEmpty(providerSID), at, at, id)
	if err != nil {
		slog.Error("PostgresStore MarkCommunicationDelivered failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication delivered: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkCommunicationFailed(id, errorMessage string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE communications SET status = $1, error_message = $2, failed_at = $3 WHERE id = $4`,
		models.StatusFailed, nilIfEmpty(errorMessage), at, id)
	if err != nil {
		slog.Error("PostgresStore MarkCommunicationFailed failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark communication failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCommunicationsSince(since time.Time) ([]models.Communication, error) {
	rows, err := s.db.Query(`SELECT `+communicationColumns+` FROM communications WHERE created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		slog.Error("PostgresStore ListCommunicationsSince query failed", "error", err)
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

func (s *PostgresStore) CreateScheduledCommunication(sc *models.ScheduledCommunication) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.CreatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO scheduled_communications (`+scheduledColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sc.ID, nilIfEmpty(sc.PatientID), nilIfEmpty(sc.GroupID), nilIfEmpty(sc.TemplateID),
		sc.Type, sc.Content, sc.ScheduledFor, sc.IsRecurring, nilIfEmpty(sc.RecurrenceJSON),
		nilIfEmpty(sc.CustomVarsJSON), sc.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateScheduledCommunication failed", "error", err)
		return fmt.Errorf("failed to insert scheduled communication: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScheduledCommunication(id string) (*models.ScheduledCommunication, error) {
	row := s.db.QueryRow(`SELECT `+scheduledColumns+` FROM scheduled_communications WHERE id = $1`, id)
	sc, err := scanScheduled(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		slog.Error("PostgresStore GetScheduledCommunication failed", "error", err, "id", id)
		return nil, err
	}
	return &sc, nil
}

func (s *PostgresStore) ListScheduledCommunications() ([]models.ScheduledCommunication, error) {
	return s.queryScheduled(`SELECT ` + scheduledColumns + ` FROM scheduled_communications ORDER BY scheduled_for ASC`)
}

func (s *PostgresStore) ListDueScheduledCommunications(now time.Time) ([]models.ScheduledCommunication, error) {
	return s.queryScheduled(`SELECT `+scheduledColumns+` FROM scheduled_communications WHERE scheduled_for <= $1 ORDER BY scheduled_for ASC`, now)
}

func (s *PostgresStore) queryScheduled(query string, args ...interface{}) ([]models.ScheduledCommunication, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore scheduled query failed", "error", err)
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

func (s *PostgresStore) DeleteScheduledCommunication(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_communications WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteScheduledCommunication failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete scheduled communication: %w", err)
	}
	return nil
}

func (s *PostgresStore) AdvanceScheduledCommunication(id string, next time.Time) error {
	_, err := s.db.Exec(`UPDATE scheduled_communications SET scheduled_for = $1 WHERE id = $2`, next, id)
	if err != nil {
		slog.Error("PostgresStore AdvanceScheduledCommunication failed", "error", err, "id", id)
		return fmt.Errorf("failed to advance scheduled communication: %w", err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
