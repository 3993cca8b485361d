package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthcard/healthcard/internal/platform/auth"
)

type mockDirectory struct {
	byUser map[uuid.UUID]uuid.UUID
}

func (m *mockDirectory) PatientIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := m.byUser[userID]
	if !ok {
		return uuid.Nil, errors.New("no patient profile")
	}
	return id, nil
}

func entry(userID uuid.UUID, patientID *uuid.UUID, resourceType string) *Entry {
	return &Entry{
		ID:           uuid.New(),
		UserID:       userID,
		Action:       ActionView,
		ResourceType: resourceType,
		ResourceID:   uuid.NewString(),
		PatientID:    patientID,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestListEntries_PatientSeesOwnSubjectEntries(t *testing.T) {
	patientUser := uuid.New()
	patientID := uuid.New()
	otherPatient := uuid.New()
	doctorUser := uuid.New()

	repo := &mockEntryRepo{entries: []*Entry{
		entry(doctorUser, &patientID, ResourceAppointment),
		entry(doctorUser, &patientID, ResourceMedicalRecord),
		entry(doctorUser, &otherPatient, ResourceAppointment),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{patientUser: patientID}})

	actor := Actor{ID: patientUser, Role: auth.RolePatient}
	items, total, err := svc.ListEntries(context.Background(), actor, ListFilters{}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	for _, e := range items {
		if e.PatientID == nil || *e.PatientID != patientID {
			t.Fatalf("entry about another patient leaked: %+v", e)
		}
	}
}

func TestListEntries_PatientFilterIgnoredForPatients(t *testing.T) {
	patientUser := uuid.New()
	patientID := uuid.New()
	otherPatient := uuid.New()

	repo := &mockEntryRepo{entries: []*Entry{
		entry(uuid.New(), &otherPatient, ResourceAppointment),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{patientUser: patientID}})

	// a patient asking for someone else's trail still gets their own scope
	actor := Actor{ID: patientUser, Role: auth.RolePatient}
	_, total, err := svc.ListEntries(context.Background(), actor, ListFilters{PatientID: &otherPatient}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Fatalf("patient saw %d foreign entries", total)
	}
}

func TestListEntries_PatientWithoutProfileDenied(t *testing.T) {
	svc := NewService(&mockEntryRepo{}, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})
	actor := Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, _, err := svc.ListEntries(context.Background(), actor, ListFilters{}, 50, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListEntries_DoctorWithFilterSeesPatientEntries(t *testing.T) {
	doctorUser := uuid.New()
	otherDoctor := uuid.New()
	patientID := uuid.New()

	repo := &mockEntryRepo{entries: []*Entry{
		entry(doctorUser, &patientID, ResourceAppointment),
		entry(otherDoctor, &patientID, ResourceMedicalRecord),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})

	actor := Actor{ID: doctorUser, Role: auth.RoleDoctor}
	_, total, err := svc.ListEntries(context.Background(), actor, ListFilters{PatientID: &patientID}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// includes the other doctor's entry about the same patient
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestListEntries_DoctorWithoutFilterSeesOwnActions(t *testing.T) {
	doctorUser := uuid.New()
	otherDoctor := uuid.New()
	patientID := uuid.New()

	repo := &mockEntryRepo{entries: []*Entry{
		entry(doctorUser, &patientID, ResourceAppointment),
		entry(otherDoctor, &patientID, ResourceMedicalRecord),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})

	actor := Actor{ID: doctorUser, Role: auth.RoleDoctor}
	items, total, err := svc.ListEntries(context.Background(), actor, ListFilters{}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if items[0].UserID != doctorUser {
		t.Fatalf("entry authored by someone else: %+v", items[0])
	}
}

func TestListEntries_ResourceTypeFilter(t *testing.T) {
	doctorUser := uuid.New()
	patientID := uuid.New()

	repo := &mockEntryRepo{entries: []*Entry{
		entry(doctorUser, &patientID, ResourceAppointment),
		entry(doctorUser, &patientID, ResourceMedicalRecord),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})

	actor := Actor{ID: doctorUser, Role: auth.RoleDoctor}
	items, total, err := svc.ListEntries(context.Background(), actor,
		ListFilters{ResourceType: ResourceMedicalRecord}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ResourceType != ResourceMedicalRecord {
		t.Fatalf("filtered list = %+v", items)
	}
}

func TestListEntries_UnknownRoleDenied(t *testing.T) {
	svc := NewService(&mockEntryRepo{}, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})
	actor := Actor{ID: uuid.New(), Role: "auditor"}
	if _, _, err := svc.ListEntries(context.Background(), actor, ListFilters{}, 50, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestPatientTrail_DoctorOnly(t *testing.T) {
	patientID := uuid.New()
	repo := &mockEntryRepo{entries: []*Entry{
		entry(uuid.New(), &patientID, ResourceAppointment),
		entry(uuid.New(), &patientID, ResourceMedicalRecord),
	}}
	svc := NewService(repo, &mockDirectory{byUser: map[uuid.UUID]uuid.UUID{}})

	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	trail, err := svc.PatientTrail(context.Background(), doctor, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trail.PatientID != patientID || trail.TotalLogs != 2 || len(trail.Entries) != 2 {
		t.Fatalf("trail = %+v", trail)
	}

	patient := Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := svc.PatientTrail(context.Background(), patient, patientID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
