package record

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const dateLayout = "2006-01-02"

// MedicalRecord is one clinical entry authored by a doctor for a patient.
type MedicalRecord struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	RecordType  string    `db:"record_type" json:"record_type"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Diagnosis   *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment   *string   `db:"treatment" json:"treatment,omitempty"`
	VisitDate   string    `db:"visit_date" json:"visit_date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Prescription struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	MedicalRecordID *uuid.UUID `db:"medical_record_id" json:"medical_record_id,omitempty"`
	MedicationName  string     `db:"medication_name" json:"medication_name"`
	Dosage          string     `db:"dosage" json:"dosage"`
	Frequency       string     `db:"frequency" json:"frequency"`
	Duration        *string    `db:"duration" json:"duration,omitempty"`
	Instructions    *string    `db:"instructions" json:"instructions,omitempty"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
