// Package store provides storage backends for CarePulse.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends selected by DSN detection. All backends satisfy the
// same Store interface.
package store

import (
	"strings"
	"time"

	"github.com/carepulse/carepulse/internal/models"
)

// Store is the persistence boundary consumed by the dispatch engine,
// scheduler, and analytics aggregator. Lookups by id return (nil, nil) when
// no row matches; callers decide whether that is a NotFound condition.
type Store interface {
	// Patients. CreatePatient enforces phone number uniqueness.
	CreatePatient(p *models.Patient) error
	GetPatient(id string) (*models.Patient, error)
	GetPatientsByIDs(ids []string) ([]models.Patient, error)
	ListPatients() ([]models.Patient, error)
	UpdatePatient(p *models.Patient) error
	// DeletePatient cascades to memberships, communications, and
	// patient-targeted scheduled communications.
	DeletePatient(id string) error

	// Groups. Membership is unique on (patient, group); deleting a group
	// removes memberships but never patients.
	CreateGroup(g *models.PatientGroup) error
	GetGroup(id string) (*models.PatientGroup, error)
	DeleteGroup(id string) error
	AddGroupMember(groupID, patientID string) error
	RemoveGroupMember(groupID, patientID string) error
	ListGroupPatients(groupID string) ([]models.Patient, error)

	// Templates
	CreateTemplate(t *models.Template) error
	GetTemplate(id string) (*models.Template, error)
	UpdateTemplate(t *models.Template) error
	DeleteTemplate(id string) error

	// Appointments
	CreateAppointment(a *models.Appointment) error
	NextAppointmentForPatient(patientID string, after time.Time) (*models.Appointment, error)

	// Communications. Rows are created PENDING by the dispatch engine and
	// transitioned exactly once by the Mark* methods.
	CreateCommunication(c *models.Communication) error
	GetCommunication(id string) (*models.Communication, error)
	MarkCommunicationSent(id, providerSID string, at time.Time) error
	MarkCommunicationDelivered(id, providerSID string, at time.Time) error
	MarkCommunicationFailed(id, errorMessage string, at time.Time) error
	ListCommunicationsSince(since time.Time) ([]models.Communication, error)

	// Scheduled communications
	CreateScheduledCommunication(sc *models.ScheduledCommunication) error
	GetScheduledCommunication(id string) (*models.ScheduledCommunication, error)
	ListScheduledCommunications() ([]models.ScheduledCommunication, error)
	ListDueScheduledCommunications(now time.Time) ([]models.ScheduledCommunication, error)
	DeleteScheduledCommunication(id string) error
	AdvanceScheduledCommunication(id string, next time.Time) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the database DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the database DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Anything that is
// not recognizably a PostgreSQL connection string is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
