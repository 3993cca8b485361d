package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// ReminderScheduler queues the 24h-before reminder; satisfied by
// notification.Scheduler.
type ReminderScheduler interface {
	Schedule(appointmentID uuid.UUID, date, timeOfDay string)
}

// Participant resolves a patient or doctor profile to the user behind it.
type Participant struct {
	ProfileID uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
}

// Directory looks up appointment participants across the identity domain.
type Directory interface {
	Patient(ctx context.Context, patientID uuid.UUID) (*Participant, error)
	Doctor(ctx context.Context, doctorID uuid.UUID) (*Participant, error)
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	appointments Repository
	directory    Directory
	recorder     ChangeRecorder
	notifier     NotificationSender
	scheduler    ReminderScheduler
}

func NewService(appointments Repository, directory Directory, recorder ChangeRecorder, notifier NotificationSender, scheduler ReminderScheduler) *Service {
	return &Service{
		appointments: appointments,
		directory:    directory,
		recorder:     recorder,
		notifier:     notifier,
		scheduler:    scheduler,
	}
}

type CreateInput struct {
	PatientID uuid.UUID
	Date      string
	Time      string
	Type      string
	Notes     *string
}

// Create books an appointment for the acting doctor, records the audit
// entry, notifies the patient, and queues the reminder.
func (s *Service) Create(ctx context.Context, actor audit.Actor, ip *string, in CreateInput) (*Appointment, error) {
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("invalid appointment_date, want YYYY-MM-DD")
	}
	if _, err := time.Parse(TimeLayout, in.Time); err != nil {
		return nil, fmt.Errorf("invalid appointment_time, want HH:MM")
	}
	if in.Type == "" {
		return nil, fmt.Errorf("type is required")
	}

	doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
	if err != nil {
		return nil, ErrForbidden
	}
	patient, err := s.directory.Patient(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("patient not found")
	}

	a := &Appointment{
		PatientID:       in.PatientID,
		DoctorID:        doctorID,
		AppointmentDate: in.Date,
		AppointmentTime: in.Time,
		Type:            in.Type,
		Status:          StatusScheduled,
		Notes:           in.Notes,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceAppointment,
		ResourceID:   a.ID.String(),
		PatientID:    &a.PatientID,
		NewValues: map[string]interface{}{
			"appointment_date": a.AppointmentDate,
			"appointment_time": a.AppointmentTime,
			"type":             a.Type,
			"status":           a.Status,
		},
		Description: fmt.Sprintf("Booked %s appointment for %s %s", a.Type, a.AppointmentDate, a.AppointmentTime),
		IPAddress:   ip,
	})

	s.notifyPatient(ctx, a, patient, notification.TypeAppointmentBooked, notification.PriorityHigh,
		"Appointment Booked",
		fmt.Sprintf("Your %s appointment with %s is booked for %s at %s.",
			a.Type, actor.Name, a.AppointmentDate, a.AppointmentTime), actor.Name)

	s.scheduler.Schedule(a.ID, a.AppointmentDate, a.AppointmentTime)

	return a, nil
}

type UpdateInput struct {
	Date  *string `json:"appointment_date"`
	Time  *string `json:"appointment_time"`
	Type  *string `json:"type"`
	Notes *string `json:"notes"`
}

// Update applies the changed fields and notifies the patient. Only the
// appointment's doctor may update it. An update that changes nothing writes
// nothing: no audit entry, no notification.
func (s *Service) Update(ctx context.Context, actor audit.Actor, ip *string, id uuid.UUID, upd UpdateInput) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
	if err != nil || doctorID != a.DoctorID {
		return nil, ErrForbidden
	}

	if upd.Date != nil {
		if _, err := time.Parse(DateLayout, *upd.Date); err != nil {
			return nil, fmt.Errorf("invalid appointment_date, want YYYY-MM-DD")
		}
	}
	if upd.Time != nil {
		if _, err := time.Parse(TimeLayout, *upd.Time); err != nil {
			return nil, fmt.Errorf("invalid appointment_time, want HH:MM")
		}
	}

	oldValues := map[string]interface{}{}
	newValues := map[string]interface{}{}

	applyStr := func(field string, current *string, incoming *string) {
		if incoming == nil || *current == *incoming {
			return
		}
		oldValues[field] = *current
		newValues[field] = *incoming
		*current = *incoming
	}

	applyStr("appointment_date", &a.AppointmentDate, upd.Date)
	applyStr("appointment_time", &a.AppointmentTime, upd.Time)
	applyStr("type", &a.Type, upd.Type)
	if upd.Notes != nil && (a.Notes == nil || *a.Notes != *upd.Notes) {
		if a.Notes != nil {
			oldValues["notes"] = *a.Notes
		} else {
			oldValues["notes"] = nil
		}
		newValues["notes"] = *upd.Notes
		a.Notes = upd.Notes
	}

	if len(newValues) == 0 {
		return a, nil
	}

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(newValues))
	for f := range newValues {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourceAppointment,
		ResourceID:   a.ID.String(),
		PatientID:    &a.PatientID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Description:  fmt.Sprintf("Updated appointment fields: %s", strings.Join(fields, ", ")),
		IPAddress:    ip,
	})

	if patient, err := s.directory.Patient(ctx, a.PatientID); err == nil {
		s.notifyPatient(ctx, a, patient, notification.TypeAppointmentModified, notification.PriorityMedium,
			"Appointment Updated",
			fmt.Sprintf("Your appointment with %s has been updated: now %s at %s.",
				actor.Name, a.AppointmentDate, a.AppointmentTime), actor.Name)
	}

	// A moved appointment gets a fresh reminder for the new instant.
	if _, dateChanged := newValues["appointment_date"]; dateChanged {
		s.scheduler.Schedule(a.ID, a.AppointmentDate, a.AppointmentTime)
	} else if _, timeChanged := newValues["appointment_time"]; timeChanged {
		s.scheduler.Schedule(a.ID, a.AppointmentDate, a.AppointmentTime)
	}

	return a, nil
}

// Cancel marks the appointment cancelled. Either participant may cancel;
// cancelling an already-cancelled appointment is a no-op.
func (s *Service) Cancel(ctx context.Context, actor audit.Actor, ip *string, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, a); err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return a, nil
	}

	prev := a.Status
	a.Status = StatusCancelled
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourceAppointment,
		ResourceID:   a.ID.String(),
		PatientID:    &a.PatientID,
		OldValues:    map[string]interface{}{"status": prev},
		NewValues:    map[string]interface{}{"status": StatusCancelled},
		Description:  "Cancelled appointment",
		IPAddress:    ip,
	})

	if patient, err := s.directory.Patient(ctx, a.PatientID); err == nil {
		doctorName := actor.Name
		if actor.Role != auth.RoleDoctor {
			if doctor, err := s.directory.Doctor(ctx, a.DoctorID); err == nil {
				doctorName = doctor.Name
			}
		}
		s.notifyPatient(ctx, a, patient, notification.TypeAppointmentCancelled, notification.PriorityHigh,
			"Appointment Cancelled",
			fmt.Sprintf("Your appointment with %s on %s at %s has been cancelled.",
				doctorName, a.AppointmentDate, a.AppointmentTime), doctorName)
	}

	return a, nil
}

// Get returns the appointment if the actor is one of its participants.
func (s *Service) Get(ctx context.Context, actor audit.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListForActor returns the actor's own appointments: a patient's bookings or
// a doctor's schedule.
func (s *Service) ListForActor(ctx context.Context, actor audit.Actor, limit, offset int) ([]*Appointment, int, error) {
	switch actor.Role {
	case auth.RolePatient:
		patientID, err := s.directory.PatientIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.appointments.ListByPatient(ctx, patientID, limit, offset)
	case auth.RoleDoctor:
		doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
		if err != nil {
			return nil, 0, ErrForbidden
		}
		return s.appointments.ListByDoctor(ctx, doctorID, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

func (s *Service) authorize(ctx context.Context, actor audit.Actor, a *Appointment) error {
	switch actor.Role {
	case auth.RolePatient:
		patientID, err := s.directory.PatientIDForUser(ctx, actor.ID)
		if err != nil || patientID != a.PatientID {
			return ErrForbidden
		}
	case auth.RoleDoctor:
		doctorID, err := s.directory.DoctorIDForUser(ctx, actor.ID)
		if err != nil || doctorID != a.DoctorID {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

func (s *Service) notifyPatient(ctx context.Context, a *Appointment, patient *Participant, ntype, priority, title, message, doctorName string) {
	resourceType := "appointment"
	resourceID := a.ID.String()
	metadata := map[string]interface{}{
		"appointment_date": a.AppointmentDate,
		"appointment_time": a.AppointmentTime,
		"doctor_name":      doctorName,
		"appointment_type": a.Type,
	}

	n := s.notifier.Create(ctx, &notification.Notification{
		UserID:       patient.UserID,
		Type:         ntype,
		Priority:     priority,
		Title:        title,
		Message:      message,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Metadata:     metadata,
	})
	if n == nil {
		return
	}

	s.notifier.RecordEmail(ctx, &notification.EmailNotification{
		RecipientEmail: patient.Email,
		RecipientName:  patient.Name,
		Subject:        title,
		TemplateType:   ntype,
		TemplateData:   metadata,
	})
}
