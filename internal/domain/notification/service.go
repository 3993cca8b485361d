package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier builds and persists notifications. Create is best-effort: any
// validation or persistence failure is logged and reported as nil so a
// failed notification can never abort the business operation that raised it.
type Notifier struct {
	notifications NotificationRepository
	emails        EmailRepository
	logger        zerolog.Logger
}

func NewNotifier(notifications NotificationRepository, emails EmailRepository, logger zerolog.Logger) *Notifier {
	return &Notifier{notifications: notifications, emails: emails, logger: logger}
}

// Create persists the notification. Without a scheduled time the
// notification is sent immediately (sent_at = creation time); with a future
// scheduled time sent_at stays unset until the dispatcher promotes it. A
// past scheduled time is left to the next dispatcher run, which treats it as
// already due.
func (s *Notifier) Create(ctx context.Context, n *Notification) *Notification {
	if !validTypes[n.Type] {
		s.logger.Error().Str("type", n.Type).Msg("notification dropped: unknown type")
		return nil
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if !validPriorities[n.Priority] {
		s.logger.Error().Str("priority", n.Priority).Msg("notification dropped: unknown priority")
		return nil
	}

	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	if n.ScheduledFor == nil {
		sentAt := n.CreatedAt
		n.SentAt = &sentAt
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Error().Err(err).
			Str("type", n.Type).
			Str("user_id", n.UserID.String()).
			Msg("failed to create notification")
		return nil
	}
	return n
}

// RecordEmail stores a mock email record. Best-effort, like Create.
func (s *Notifier) RecordEmail(ctx context.Context, e *EmailNotification) *EmailNotification {
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	if err := s.emails.Create(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("recipient", e.RecipientEmail).
			Str("template_type", e.TemplateType).
			Msg("failed to record email notification")
		return nil
	}
	return e
}

// ListForUser returns the recipient's visible notifications, newest first.
func (s *Notifier) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.notifications.ListVisibleByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Notifier) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *Notifier) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *Notifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

// Delete removes a notification owned by userID; ErrNotFound otherwise.
func (s *Notifier) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.Delete(ctx, id, userID)
}
