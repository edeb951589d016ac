// Package store provides storage backends for CarePulse.
//
// This file implements the in-memory store used by tests and by deployments
// that run without a database DSN.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/models"
)

// InMemoryStore keeps all records in process memory behind a single lock.
type InMemoryStore struct {
	mu         sync.RWMutex
	patients   map[string]models.Patient
	groups     map[string]models.PatientGroup
	members    []models.PatientGroupMember
	templates  map[string]models.Template
	appts      map[string]models.Appointment
	comms      map[string]models.Communication
	scheduled  map[string]models.ScheduledCommunication
	commsOrder []string // insertion order, for stable listings
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients:  make(map[string]models.Patient),
		groups:    make(map[string]models.PatientGroup),
		templates: make(map[string]models.Template),
		appts:     make(map[string]models.Appointment),
		comms:     make(map[string]models.Communication),
		scheduled: make(map[string]models.ScheduledCommunication),
	}
}

func (s *InMemoryStore) CreatePatient(p *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patients {
		if existing.PhoneNumber == p.PhoneNumber {
			return fmt.Errorf("patient with phone number %s already exists", p.PhoneNumber)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.patients[p.ID] = *p
	return nil
}

func (s *InMemoryStore) GetPatient(id string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) GetPatientsByIDs(ids []string) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var patients []models.Patient
	for _, id := range ids {
		if p, ok := s.patients[id]; ok {
			patients = append(patients, p)
		}
	}
	return patients, nil
}

func (s *InMemoryStore) ListPatients() ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patients := make([]models.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		patients = append(patients, p)
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].ID < patients[j].ID })
	return patients, nil
}

func (s *InMemoryStore) UpdatePatient(p *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.patients[p.ID]
	if !ok {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	s.patients[p.ID] = *p
	return nil
}

func (s *InMemoryStore) DeletePatient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patients, id)
	var kept []models.PatientGroupMember
	for _, m := range s.members {
		if m.PatientID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept
	for cid, c := range s.comms {
		if c.PatientID == id {
			delete(s.comms, cid)
		}
	}
	for sid, sc := range s.scheduled {
		if sc.PatientID == id {
			delete(s.scheduled, sid)
		}
	}
	for aid, a := range s.appts {
		if a.PatientID == id {
			delete(s.appts, aid)
		}
	}
	return nil
}

func (s *InMemoryStore) CreateGroup(g *models.PatientGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now()
	s.groups[g.ID] = *g
	return nil
}

func (s *InMemoryStore) GetGroup(id string) (*models.PatientGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *InMemoryStore) DeleteGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	var kept []models.PatientGroupMember
	for _, m := range s.members {
		if m.GroupID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept
	return nil
}

func (s *InMemoryStore) AddGroupMember(groupID, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("group %s not found", groupID)
	}
	if _, ok := s.patients[patientID]; !ok {
		return fmt.Errorf("patient %s not found", patientID)
	}
	for _, m := range s.members {
		if m.GroupID == groupID && m.PatientID == patientID {
			return fmt.Errorf("patient %s is already a member of group %s", patientID, groupID)
		}
	}
	s.members = append(s.members, models.PatientGroupMember{
		ID:        uuid.NewString(),
		PatientID: patientID,
		GroupID:   groupID,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *InMemoryStore) RemoveGroupMember(groupID, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.GroupID == groupID && m.PatientID == patientID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) ListGroupPatients(groupID string) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var patients []models.Patient
	for _, m := range s.members {
		if m.GroupID != groupID {
			continue
		}
		if p, ok := s.patients[m.PatientID]; ok {
			patients = append(patients, p)
		}
	}
	return patients, nil
}

func (s *InMemoryStore) CreateTemplate(t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.templates[t.ID] = *t
	return nil
}

func (s *InMemoryStore) GetTemplate(id string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) UpdateTemplate(t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[t.ID]
	if !ok {
		return fmt.Errorf("template %s not found", t.ID)
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	s.templates[t.ID] = *t
	return nil
}

func (s *InMemoryStore) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

func (s *InMemoryStore) CreateAppointment(a *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	s.appts[a.ID] = *a
	return nil
}

func (s *InMemoryStore) NextAppointmentForPatient(patientID string, after time.Time) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var next *models.Appointment
	for _, a := range s.appts {
		if a.PatientID != patientID || !a.StartTime.After(after) {
			continue
		}
		if next == nil || a.StartTime.Before(next.StartTime) {
			copied := a
			next = &copied
		}
	}
	return next, nil
}

func (s *InMemoryStore) CreateCommunication(c *models.Communication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.StatusPending
	}
	c.CreatedAt = time.Now()
	s.comms[c.ID] = *c
	s.commsOrder = append(s.commsOrder, c.ID)
	return nil
}

func (s *InMemoryStore) GetCommunication(id string) (*models.Communication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comms[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) MarkCommunicationSent(id, providerSID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comms[id]
	if !ok {
		return fmt.Errorf("communication %s not found", id)
	}
	c.Status = models.StatusSent
	c.ProviderSID = providerSID
	c.SentAt = &at
	s.comms[id] = c
	return nil
}

func (s *InMemoryStore) MarkCommunicationDelivered(id, providerSID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comms[id]
	if !ok {
		return fmt.Errorf("communication %s not found", id)
	}
	c.Status = models.StatusDelivered
	c.ProviderSID = providerSID
	c.SentAt = &at
	c.DeliveredAt = &at
	s.comms[id] = c
	return nil
}

func (s *InMemoryStore) MarkCommunicationFailed(id, errorMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comms[id]
	if !ok {
		return fmt.Errorf("communication %s not found", id)
	}
	c.Status = models.StatusFailed
	c.ErrorMessage = errorMessage
	c.FailedAt = &at
	s.comms[id] = c
	return nil
}

func (s *InMemoryStore) ListCommunicationsSince(since time.Time) ([]models.Communication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var comms []models.Communication
	for _, id := range s.commsOrder {
		c, ok := s.comms[id]
		if !ok {
			continue
		}
		if !c.CreatedAt.Before(since) {
			comms = append(comms, c)
		}
	}
	return comms, nil
}

func (s *InMemoryStore) CreateScheduledCommunication(sc *models.ScheduledCommunication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.CreatedAt = time.Now()
	s.scheduled[sc.ID] = *sc
	return nil
}

func (s *InMemoryStore) GetScheduledCommunication(id string) (*models.ScheduledCommunication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scheduled[id]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s *InMemoryStore) ListScheduledCommunications() ([]models.ScheduledCommunication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scs := make([]models.ScheduledCommunication, 0, len(s.scheduled))
	for _, sc := range s.scheduled {
		scs = append(scs, sc)
	}
	sort.Slice(scs, func(i, j int) bool { return scs[i].ScheduledFor.Before(scs[j].ScheduledFor) })
	return scs, nil
}

func (s *InMemoryStore) ListDueScheduledCommunications(now time.Time) ([]models.ScheduledCommunication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []models.ScheduledCommunication
	for _, sc := range s.scheduled {
		if !sc.ScheduledFor.After(now) {
			due = append(due, sc)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (s *InMemoryStore) DeleteScheduledCommunication(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, id)
	return nil
}

func (s *InMemoryStore) AdvanceScheduledCommunication(id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scheduled[id]
	if !ok {
		return fmt.Errorf("scheduled communication %s not found", id)
	}
	sc.ScheduledFor = next
	s.scheduled[id] = sc
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
