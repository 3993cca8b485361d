package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a unit of user-facing information with an optional deferred
// visibility time. It is visible to its recipient once SentAt is set or
// ScheduledFor has passed. Only Read and SentAt ever change after creation.
type Notification struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	UserID       uuid.UUID              `db:"user_id" json:"user_id"`
	Type         string                 `db:"type" json:"type"`
	Priority     string                 `db:"priority" json:"priority"`
	Title        string                 `db:"title" json:"title"`
	Message      string                 `db:"message" json:"message"`
	Read         bool                   `db:"read" json:"read"`
	ResourceType *string                `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	Metadata     map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	ScheduledFor *time.Time             `db:"scheduled_for" json:"scheduled_for,omitempty"`
	SentAt       *time.Time             `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

// EmailNotification records the intent to send an email. Nothing delivers
// these; they exist so outbound mail can be inspected and replayed by an
// external worker later.
type EmailNotification struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	RecipientEmail string                 `db:"recipient_email" json:"recipient_email"`
	RecipientName  string                 `db:"recipient_name" json:"recipient_name"`
	Subject        string                 `db:"subject" json:"subject"`
	TemplateType   string                 `db:"template_type" json:"template_type"`
	TemplateData   map[string]interface{} `db:"template_data" json:"template_data,omitempty"`
	ScheduledFor   *time.Time             `db:"scheduled_for" json:"scheduled_for,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
}

const (
	TypeAppointmentReminder  = "appointment_reminder"
	TypeAppointmentBooked    = "appointment_booked"
	TypeAppointmentModified  = "appointment_modified"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypePrescriptionUpdate   = "prescription_update"
	TypeMedicalRecordAdded   = "medical_record_added"
	TypeSystemMessage        = "system_message"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var validTypes = map[string]bool{
	TypeAppointmentReminder:  true,
	TypeAppointmentBooked:    true,
	TypeAppointmentModified:  true,
	TypeAppointmentCancelled: true,
	TypePrescriptionUpdate:   true,
	TypeMedicalRecordAdded:   true,
	TypeSystemMessage:        true,
}

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}
