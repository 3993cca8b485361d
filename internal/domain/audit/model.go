package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable record of one state-changing action taken by one
// actor against one resource. Entries are append-only: there is no update or
// delete path anywhere in the system.
type Entry struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	UserID       uuid.UUID              `db:"user_id" json:"user_id"`
	UserName     string                 `db:"user_name" json:"user_name"`
	UserRole     string                 `db:"user_role" json:"user_role"`
	Action       string                 `db:"action" json:"action"`
	ResourceType string                 `db:"resource_type" json:"resource_type"`
	ResourceID   string                 `db:"resource_id" json:"resource_id"`
	PatientID    *uuid.UUID             `db:"patient_id" json:"patient_id,omitempty"`
	OldValues    map[string]interface{} `db:"old_values" json:"old_values,omitempty"`
	NewValues    map[string]interface{} `db:"new_values" json:"new_values,omitempty"`
	Description  string                 `db:"description" json:"description"`
	IPAddress    *string                `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

// Actor identifies the authenticated user performing an action.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role string
}

// Change describes one auditable action. Action and ResourceType are open
// vocabulary so new resource types don't require a schema change; the
// constants below are the values the rest of the system uses by convention.
type Change struct {
	Actor        Actor
	Action       string
	ResourceType string
	ResourceID   string
	PatientID    *uuid.UUID
	OldValues    map[string]interface{}
	NewValues    map[string]interface{}
	Description  string
	IPAddress    *string
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionView   = "view"
)

const (
	ResourceAppointment   = "appointment"
	ResourcePatient       = "patient"
	ResourceMedicalRecord = "medical_record"
	ResourcePrescription  = "prescription"
	ResourceFile          = "file"
)
