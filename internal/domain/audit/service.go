package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/healthcard/healthcard/internal/platform/auth"
)

// ErrForbidden is returned when the actor's role or ownership does not allow
// the requested read.
var ErrForbidden = errors.New("access denied")

// PatientDirectory resolves the patient profile owned by a user account. It
// is implemented by the identity service and wired in at startup.
type PatientDirectory interface {
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// ListFilters narrows an audit listing. ResourceType is an exact match
// applied after role scoping.
type ListFilters struct {
	PatientID    *uuid.UUID
	ResourceType string
}

// Trail is the complete audit history for one patient.
type Trail struct {
	PatientID uuid.UUID `json:"patient_id"`
	Entries   []*Entry  `json:"audit_logs"`
	TotalLogs int       `json:"total_logs"`
}

// Service is the read side of the audit log. Every query is scoped by the
// actor's role:
//
//   - patients see only entries whose subject patient is their own profile;
//   - doctors with a patient filter see that patient's entries (no
//     doctor-patient relationship check at this layer);
//   - doctors without a filter see entries they authored — not entries about
//     their patients made by others. The asymmetry with patient scoping is
//     deliberate;
//   - any other role is denied.
type Service struct {
	entries  EntryRepository
	patients PatientDirectory
}

func NewService(entries EntryRepository, patients PatientDirectory) *Service {
	return &Service{entries: entries, patients: patients}
}

func (s *Service) ListEntries(ctx context.Context, actor Actor, f ListFilters, limit, offset int) ([]*Entry, int, error) {
	switch actor.Role {
	case auth.RolePatient:
		pid, err := s.patients.PatientIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.entries.ListByPatient(ctx, pid, f.ResourceType, limit, offset)
	case auth.RoleDoctor:
		if f.PatientID != nil {
			return s.entries.ListByPatient(ctx, *f.PatientID, f.ResourceType, limit, offset)
		}
		return s.entries.ListByUser(ctx, actor.ID, f.ResourceType, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

// PatientTrail returns the complete audit history for a patient. Doctors
// only; the general listing's actor scoping does not apply here.
func (s *Service) PatientTrail(ctx context.Context, actor Actor, patientID uuid.UUID) (*Trail, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	entries, total, err := s.entries.ListAllByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &Trail{PatientID: patientID, Entries: entries, TotalLogs: total}, nil
}
