// Package dispatch implements bulk-send recipient resolution, consent
// filtering, and the per-recipient dispatch engine.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/store"
)

// Resolver turns a bulk-send target (explicit patient id list or group id)
// into a deduplicated list of full patient records.
type Resolver struct {
	st store.Store
}

// NewResolver creates a Resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{st: st}
}

// Resolve returns the concrete recipient set for the request, consent flags
// intact. A nonexistent group is ErrNotFound; patient ids that do not match
// are silently dropped (a partial match is not failure); an empty resolved
// set is ErrNoRecipients.
func (r *Resolver) Resolve(req models.BulkSendRequest) ([]models.Patient, error) {
	var patients []models.Patient

	switch {
	case req.GroupID != "":
		group, err := r.st.GetGroup(req.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up group: %w", err)
		}
		if group == nil {
			return nil, fmt.Errorf("%w: group %s", models.ErrNotFound, req.GroupID)
		}
		patients, err = r.st.ListGroupPatients(req.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group members: %w", err)
		}
	case len(req.PatientIDs) > 0:
		var err error
		patients, err = r.st.GetPatientsByIDs(req.PatientIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve patients: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: either patient_ids or group_id is required", models.ErrInvalidRequest)
	}

	patients = dedupe(patients)
	if len(patients) == 0 {
		return nil, models.ErrNoRecipients
	}
	slog.Debug("Resolver.Resolve: recipients resolved", "count", len(patients), "groupID", req.GroupID)
	return patients, nil
}

// dedupe removes duplicate patients by id, preserving first-seen order.
func dedupe(patients []models.Patient) []models.Patient {
	seen := make(map[string]bool, len(patients))
	out := patients[:0]
	for _, p := range patients {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
