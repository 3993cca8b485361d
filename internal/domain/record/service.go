package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthcard/healthcard/internal/domain/audit"
	"github.com/healthcard/healthcard/internal/domain/notification"
	"github.com/healthcard/healthcard/internal/platform/auth"
)

var ErrForbidden = errors.New("access denied")

// ChangeRecorder records audit entries; satisfied by audit.Recorder.
type ChangeRecorder interface {
	Record(ctx context.Context, ch audit.Change)
}

// NotificationSender raises in-app notifications and mock emails; satisfied
// by notification.Notifier.
type NotificationSender interface {
	Create(ctx context.Context, n *notification.Notification) *notification.Notification
	RecordEmail(ctx context.Context, e *notification.EmailNotification) *notification.EmailNotification
}

// PatientInfo is the slice of a patient profile this package needs for
// notifications.
type PatientInfo struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

type Directory interface {
	PatientInfo(ctx context.Context, patientID uuid.UUID) (*PatientInfo, error)
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	records       RecordRepository
	prescriptions PrescriptionRepository
	directory     Directory
	recorder      ChangeRecorder
	notifier      NotificationSender
}

func NewService(records RecordRepository, prescriptions PrescriptionRepository, directory Directory, recorder ChangeRecorder, notifier NotificationSender) *Service {
	return &Service{
		records:       records,
		prescriptions: prescriptions,
		directory:     directory,
		recorder:      recorder,
		notifier:      notifier,
	}
}

type CreateRecordInput struct {
	PatientID   uuid.UUID
	RecordType  string
	Title       string
	Description *string
	Diagnosis   *string
	Treatment   *string
	VisitDate   string
}

// CreateRecord stores a clinical entry authored by the acting doctor,
// records the audit entry, and notifies the patient.
func (s *Service) CreateRecord(ctx context.Context, actor audit.Actor, ip *string, in CreateRecordInput) (*MedicalRecord, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.RecordType == "" {
		return nil, fmt.Errorf("record_type is required")
	}
	if _, err := time.Parse(dateLayout, in.VisitDate); err != nil {
		return nil, fmt.Errorf("invalid visit_date, want YYYY-MM-DD")
	}

	doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
	if err != nil {
		return nil, ErrForbidden
	}
	patient, err := s.directory.PatientInfo(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("patient not found")
	}

	rec := &MedicalRecord{
		PatientID:   in.PatientID,
		DoctorID:    doctorID,
		RecordType:  in.RecordType,
		Title:       in.Title,
		Description: in.Description,
		Diagnosis:   in.Diagnosis,
		Treatment:   in.Treatment,
		VisitDate:   in.VisitDate,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceMedicalRecord,
		ResourceID:   rec.ID.String(),
		PatientID:    &rec.PatientID,
		NewValues: map[string]interface{}{
			"record_type": rec.RecordType,
			"title":       rec.Title,
			"visit_date":  rec.VisitDate,
		},
		Description: fmt.Sprintf("Added %s record: %s", rec.RecordType, rec.Title),
		IPAddress:   ip,
	})

	resourceType := "medical_record"
	resourceID := rec.ID.String()
	metadata := map[string]interface{}{
		"record_type": rec.RecordType,
		"title":       rec.Title,
		"doctor_name": actor.Name,
	}
	n := s.notifier.Create(ctx, &notification.Notification{
		UserID:       patient.UserID,
		Type:         notification.TypeMedicalRecordAdded,
		Priority:     notification.PriorityMedium,
		Title:        "New Medical Record",
		Message:      fmt.Sprintf("%s added a new %s record to your file: %s.", actor.Name, rec.RecordType, rec.Title),
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Metadata:     metadata,
	})
	if n != nil {
		s.notifier.RecordEmail(ctx, &notification.EmailNotification{
			RecipientEmail: patient.Email,
			RecipientName:  patient.Name,
			Subject:        "New Medical Record",
			TemplateType:   notification.TypeMedicalRecordAdded,
			TemplateData:   metadata,
		})
	}

	return rec, nil
}

// GetRecord returns one record to a participant and audits the read.
func (s *Service) GetRecord(ctx context.Context, actor audit.Actor, ip *string, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, rec); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionView,
		ResourceType: audit.ResourceMedicalRecord,
		ResourceID:   rec.ID.String(),
		PatientID:    &rec.PatientID,
		Description:  fmt.Sprintf("Viewed medical record: %s", rec.Title),
		IPAddress:    ip,
	})
	return rec, nil
}

// ListRecords scopes the listing to the actor: patients get their own file,
// doctors get a named patient's file (audited) or their authored entries.
func (s *Service) ListRecords(ctx context.Context, actor audit.Actor, ip *string, patientID *uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	switch actor.Role {
	case auth.RolePatient:
		ownID, err := s.directory.PatientIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.records.ListByPatient(ctx, ownID, limit, offset)
	case auth.RoleDoctor:
		if patientID != nil {
			items, total, err := s.records.ListByPatient(ctx, *patientID, limit, offset)
			if err != nil {
				return nil, 0, err
			}
			s.recorder.Record(ctx, audit.Change{
				Actor:        actor,
				Action:       audit.ActionView,
				ResourceType: audit.ResourceMedicalRecord,
				ResourceID:   patientID.String(),
				PatientID:    patientID,
				Description:  "Viewed patient medical records",
				IPAddress:    ip,
			})
			return items, total, nil
		}
		doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.records.ListByDoctor(ctx, doctorID, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

type PrescriptionInput struct {
	MedicationName string  `json:"medication_name"`
	Dosage         string  `json:"dosage"`
	Frequency      string  `json:"frequency"`
	Duration       *string `json:"duration"`
	Instructions   *string `json:"instructions"`
}

// CreatePrescriptions stores a batch of prescriptions for one patient. Each
// prescription gets its own audit entry; the patient gets a single
// notification covering the batch.
func (s *Service) CreatePrescriptions(ctx context.Context, actor audit.Actor, ip *string, patientID uuid.UUID, recordID *uuid.UUID, inputs []PrescriptionInput) ([]*Prescription, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one prescription is required")
	}
	for _, in := range inputs {
		if in.MedicationName == "" || in.Dosage == "" || in.Frequency == "" {
			return nil, fmt.Errorf("medication_name, dosage and frequency are required")
		}
	}

	doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
	if err != nil {
		return nil, ErrForbidden
	}
	patient, err := s.directory.PatientInfo(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient not found")
	}

	created := make([]*Prescription, 0, len(inputs))
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p := &Prescription{
			PatientID:       patientID,
			DoctorID:        doctorID,
			MedicalRecordID: recordID,
			MedicationName:  in.MedicationName,
			Dosage:          in.Dosage,
			Frequency:       in.Frequency,
			Duration:        in.Duration,
			Instructions:    in.Instructions,
			Status:          StatusActive,
		}
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return nil, err
		}
		created = append(created, p)
		names = append(names, p.MedicationName)

		s.recorder.Record(ctx, audit.Change{
			Actor:        actor,
			Action:       audit.ActionCreate,
			ResourceType: audit.ResourcePrescription,
			ResourceID:   p.ID.String(),
			PatientID:    &patientID,
			NewValues: map[string]interface{}{
				"medication_name": p.MedicationName,
				"dosage":          p.Dosage,
				"frequency":       p.Frequency,
			},
			Description: fmt.Sprintf("Prescribed %s", p.MedicationName),
			IPAddress:   ip,
		})
	}

	resourceType := "prescription"
	metadata := map[string]interface{}{
		"medications": strings.Join(names, ", "),
		"doctor_name": actor.Name,
	}
	n := s.notifier.Create(ctx, &notification.Notification{
		UserID:       patient.UserID,
		Type:         notification.TypePrescriptionUpdate,
		Priority:     notification.PriorityHigh,
		Title:        "New Prescription",
		Message:      fmt.Sprintf("%s prescribed: %s.", actor.Name, strings.Join(names, ", ")),
		ResourceType: &resourceType,
		Metadata:     metadata,
	})
	if n != nil {
		s.notifier.RecordEmail(ctx, &notification.EmailNotification{
			RecipientEmail: patient.Email,
			RecipientName:  patient.Name,
			Subject:        "New Prescription",
			TemplateType:   notification.TypePrescriptionUpdate,
			TemplateData:   metadata,
		})
	}

	return created, nil
}

// ListPrescriptions mirrors ListRecords' scoping.
func (s *Service) ListPrescriptions(ctx context.Context, actor audit.Actor, patientID *uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	switch actor.Role {
	case auth.RolePatient:
		ownID, err := s.directory.PatientIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.prescriptions.ListByPatient(ctx, ownID, limit, offset)
	case auth.RoleDoctor:
		if patientID != nil {
			return s.prescriptions.ListByPatient(ctx, *patientID, limit, offset)
		}
		doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.prescriptions.ListByDoctor(ctx, doctorID, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

func (s *Service) authorize(ctx context.Context, actor audit.Actor, rec *MedicalRecord) error {
	switch actor.Role {
	case auth.RolePatient:
		ownID, err := s.directory.PatientIDForUser(ctx, actor.ID)
		if err != nil || ownID != rec.PatientID {
			return ErrForbidden
		}
	case auth.RoleDoctor:
		// Doctors may read any record; reads are audited.
	default:
		return ErrForbidden
	}
	return nil
}
