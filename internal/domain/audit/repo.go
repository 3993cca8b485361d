package audit

import (
	"context"

	"github.com/google/uuid"
)

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, resourceType string, limit, offset int) ([]*Entry, int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, resourceType string, limit, offset int) ([]*Entry, int, error)
	ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, int, error)
}
