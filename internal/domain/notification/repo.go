package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a notification does not exist or belongs to a
// different recipient.
var ErrNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	// ListVisibleByUser returns only notifications that have been sent or
	// whose scheduled time has passed, newest first.
	ListVisibleByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	// ListDue returns notifications whose scheduled time has arrived but that
	// have not yet been sent.
	ListDue(ctx context.Context, now time.Time) ([]*Notification, error)
	// MarkSent sets sent_at once; a notification already sent is left alone.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type EmailRepository interface {
	Create(ctx context.Context, e *EmailNotification) error
}
