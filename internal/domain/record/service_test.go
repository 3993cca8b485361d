package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthcard/healthcard/internal/domain/audit"
	"github.com/healthcard/healthcard/internal/domain/notification"
	"github.com/healthcard/healthcard/internal/platform/auth"
)

type mockRecordRepo struct {
	items map[uuid.UUID]*MedicalRecord
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	m.items[r.ID] = r
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*MedicalRecord, int, error) {
	var out []*MedicalRecord
	for _, r := range m.items {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockRecordRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, _, _ int) ([]*MedicalRecord, int, error) {
	var out []*MedicalRecord
	for _, r := range m.items {
		if r.DoctorID == doctorID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

type mockPrescriptionRepo struct {
	items map[uuid.UUID]*Prescription
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	m.items[p.ID] = p
	return nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.items {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockPrescriptionRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, _, _ int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.items {
		if p.DoctorID == doctorID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type mockDirectory struct {
	patients     map[uuid.UUID]*PatientInfo
	patientUsers map[uuid.UUID]uuid.UUID
	doctorUsers  map[uuid.UUID]uuid.UUID
}

func (m *mockDirectory) PatientInfo(_ context.Context, id uuid.UUID) (*PatientInfo, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (m *mockDirectory) PatientIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := m.patientUsers[userID]
	if !ok {
		return uuid.Nil, errors.New("not found")
	}
	return id, nil
}

func (m *mockDirectory) DoctorIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := m.doctorUsers[userID]
	if !ok {
		return uuid.Nil, errors.New("not found")
	}
	return id, nil
}

type recorderSpy struct {
	changes []audit.Change
}

func (r *recorderSpy) Record(_ context.Context, ch audit.Change) {
	r.changes = append(r.changes, ch)
}

type notifierSpy struct {
	notifications []*notification.Notification
	emails        []*notification.EmailNotification
}

func (n *notifierSpy) Create(_ context.Context, nn *notification.Notification) *notification.Notification {
	nn.ID = uuid.New()
	n.notifications = append(n.notifications, nn)
	return nn
}

func (n *notifierSpy) RecordEmail(_ context.Context, e *notification.EmailNotification) *notification.EmailNotification {
	n.emails = append(n.emails, e)
	return e
}

type fixture struct {
	svc       *Service
	rec       *recorderSpy
	notif     *notifierSpy
	patientID uuid.UUID
	doctorID  uuid.UUID
	doctor    audit.Actor
	patient   audit.Actor
}

func newFixture() *fixture {
	patientID := uuid.New()
	doctorID := uuid.New()
	patientUser := uuid.New()
	doctorUser := uuid.New()

	dir := &mockDirectory{
		patients: map[uuid.UUID]*PatientInfo{
			patientID: {UserID: patientUser, Name: "Pat Example", Email: "pat@example.com"},
		},
		patientUsers: map[uuid.UUID]uuid.UUID{patientUser: patientID},
		doctorUsers:  map[uuid.UUID]uuid.UUID{doctorUser: doctorID},
	}

	rec := &recorderSpy{}
	notif := &notifierSpy{}
	svc := NewService(
		&mockRecordRepo{items: map[uuid.UUID]*MedicalRecord{}},
		&mockPrescriptionRepo{items: map[uuid.UUID]*Prescription{}},
		dir, rec, notif)

	return &fixture{
		svc:       svc,
		rec:       rec,
		notif:     notif,
		patientID: patientID,
		doctorID:  doctorID,
		doctor:    audit.Actor{ID: doctorUser, Name: "Dr. Gray", Role: auth.RoleDoctor},
		patient:   audit.Actor{ID: patientUser, Name: "Pat Example", Role: auth.RolePatient},
	}
}

func TestCreateRecord(t *testing.T) {
	f := newFixture()

	rec, err := f.svc.CreateRecord(context.Background(), f.doctor, nil, CreateRecordInput{
		PatientID:  f.patientID,
		RecordType: "consultation",
		Title:      "Annual checkup",
		VisitDate:  "2026-05-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.DoctorID != f.doctorID {
		t.Fatalf("record = %+v", rec)
	}

	if len(f.rec.changes) != 1 {
		t.Fatalf("expected 1 audit change, got %d", len(f.rec.changes))
	}
	ch := f.rec.changes[0]
	if ch.Action != audit.ActionCreate || ch.ResourceType != audit.ResourceMedicalRecord {
		t.Fatalf("change = %+v", ch)
	}

	if len(f.notif.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notif.notifications))
	}
	n := f.notif.notifications[0]
	if n.Type != notification.TypeMedicalRecordAdded || n.Priority != notification.PriorityMedium {
		t.Fatalf("notification = %+v", n)
	}
	if len(f.notif.emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(f.notif.emails))
	}
}

func TestCreateRecord_PatientForbidden(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateRecord(context.Background(), f.patient, nil, CreateRecordInput{
		PatientID: f.patientID, RecordType: "consultation", Title: "X", VisitDate: "2026-05-01",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGetRecord_AuditsView(t *testing.T) {
	f := newFixture()
	rec, err := f.svc.CreateRecord(context.Background(), f.doctor, nil, CreateRecordInput{
		PatientID: f.patientID, RecordType: "lab", Title: "Blood panel", VisitDate: "2026-05-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.rec.changes = nil

	if _, err := f.svc.GetRecord(context.Background(), f.patient, nil, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.rec.changes) != 1 || f.rec.changes[0].Action != audit.ActionView {
		t.Fatalf("audit changes = %+v", f.rec.changes)
	}
}

func TestGetRecord_StrangerPatientForbidden(t *testing.T) {
	f := newFixture()
	rec, err := f.svc.CreateRecord(context.Background(), f.doctor, nil, CreateRecordInput{
		PatientID: f.patientID, RecordType: "lab", Title: "Blood panel", VisitDate: "2026-05-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stranger := audit.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.GetRecord(context.Background(), stranger, nil, rec.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListRecords_DoctorWithPatientFilterAuditsView(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreateRecord(context.Background(), f.doctor, nil, CreateRecordInput{
		PatientID: f.patientID, RecordType: "lab", Title: "Blood panel", VisitDate: "2026-05-01",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.rec.changes = nil

	items, total, err := f.svc.ListRecords(context.Background(), f.doctor, nil, &f.patientID, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("list = %d/%d", len(items), total)
	}
	if len(f.rec.changes) != 1 || f.rec.changes[0].Action != audit.ActionView {
		t.Fatalf("audit changes = %+v", f.rec.changes)
	}

	// patient listing their own file is not separately audited
	f.rec.changes = nil
	if _, _, err := f.svc.ListRecords(context.Background(), f.patient, nil, nil, 50, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.rec.changes) != 0 {
		t.Fatalf("audit changes = %+v", f.rec.changes)
	}
}

func TestCreatePrescriptions_BatchOneNotification(t *testing.T) {
	f := newFixture()

	created, err := f.svc.CreatePrescriptions(context.Background(), f.doctor, nil, f.patientID, nil, []PrescriptionInput{
		{MedicationName: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily"},
		{MedicationName: "Ibuprofen", Dosage: "200mg", Frequency: "as needed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d", len(created))
	}
	for _, p := range created {
		if p.Status != StatusActive {
			t.Fatalf("status = %s", p.Status)
		}
	}

	if len(f.rec.changes) != 2 {
		t.Fatalf("expected 2 audit changes, got %d", len(f.rec.changes))
	}
	if len(f.notif.notifications) != 1 {
		t.Fatalf("expected 1 notification for the batch, got %d", len(f.notif.notifications))
	}
	n := f.notif.notifications[0]
	if n.Type != notification.TypePrescriptionUpdate || n.Priority != notification.PriorityHigh {
		t.Fatalf("notification = %+v", n)
	}
}

func TestCreatePrescriptions_MissingFields(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreatePrescriptions(context.Background(), f.doctor, nil, f.patientID, nil, []PrescriptionInput{
		{MedicationName: "Amoxicillin"},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(f.rec.changes) != 0 || len(f.notif.notifications) != 0 {
		t.Fatal("side effects produced for rejected input")
	}
}
