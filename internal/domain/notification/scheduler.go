package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// reminderLead is how far before the appointment the reminder fires.
const reminderLead = 24 * time.Hour

// ReminderInfo carries everything the scheduler needs about an appointment's
// participants, resolved through ReminderSource so this package stays
// decoupled from the appointment and identity domains.
type ReminderInfo struct {
	PatientUserID   uuid.UUID
	PatientName     string
	PatientEmail    string
	DoctorName      string
	AppointmentType string
}

type ReminderSource interface {
	ReminderInfo(ctx context.Context, appointmentID uuid.UUID) (*ReminderInfo, error)
}

// Scheduler creates deferred appointment-reminder notifications. Every entry
// point is fire-and-forget: lookup failures and persistence failures abort
// the attempt silently (logged only), never the caller.
type Scheduler struct {
	notifier *Notifier
	source   ReminderSource
	logger   zerolog.Logger
}

func NewScheduler(notifier *Notifier, source ReminderSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{notifier: notifier, source: source, logger: logger}
}

// Schedule runs the reminder computation in the background, after the
// triggering request has been answered. All inputs are captured by value so
// the work outlives the request scope.
func (s *Scheduler) Schedule(appointmentID uuid.UUID, date, timeOfDay string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("appointment_id", appointmentID.String()).
					Interface("panic", r).
					Msg("reminder scheduling panicked")
			}
		}()
		s.ScheduleAppointmentReminder(context.Background(), appointmentID, date, timeOfDay)
	}()
}

// ScheduleAppointmentReminder creates a reminder notification scheduled 24
// hours before the appointment instant, plus a matching mock email. If the
// reminder point has already passed the appointment is too imminent and the
// reminder is skipped — no backfill.
func (s *Scheduler) ScheduleAppointmentReminder(ctx context.Context, appointmentID uuid.UUID, date, timeOfDay string) {
	instant, err := CombineDateTime(date, timeOfDay)
	if err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appointmentID.String()).
			Msg("reminder skipped: unparseable appointment date/time")
		return
	}

	reminderAt := instant.Add(-reminderLead)
	if !reminderAt.After(time.Now().UTC()) {
		s.logger.Debug().
			Str("appointment_id", appointmentID.String()).
			Time("reminder_at", reminderAt).
			Msg("reminder skipped: reminder point already passed")
		return
	}

	info, err := s.source.ReminderInfo(ctx, appointmentID)
	if err != nil || info == nil {
		return
	}

	resourceType := "appointment"
	resourceID := appointmentID.String()
	metadata := map[string]interface{}{
		"appointment_date": date,
		"appointment_time": timeOfDay,
		"doctor_name":      info.DoctorName,
		"appointment_type": info.AppointmentType,
	}

	n := s.notifier.Create(ctx, &Notification{
		UserID:   info.PatientUserID,
		Type:     TypeAppointmentReminder,
		Priority: PriorityHigh,
		Title:    "Appointment Reminder",
		Message: fmt.Sprintf("Reminder: you have an appointment with %s on %s at %s.",
			info.DoctorName, date, timeOfDay),
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Metadata:     metadata,
		ScheduledFor: &reminderAt,
	})
	if n == nil {
		return
	}

	s.notifier.RecordEmail(ctx, &EmailNotification{
		RecipientEmail: info.PatientEmail,
		RecipientName:  info.PatientName,
		Subject:        "Appointment Reminder",
		TemplateType:   TypeAppointmentReminder,
		TemplateData:   metadata,
		ScheduledFor:   &reminderAt,
	})
}

// CombineDateTime joins a calendar date ("2006-01-02") and a wall-clock time
// ("15:04") into a single UTC instant.
func CombineDateTime(date, timeOfDay string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04", date+" "+timeOfDay)
}
