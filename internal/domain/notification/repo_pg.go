package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

const notificationCols = `id, user_id, type, priority, title, message, read,
	resource_type, resource_id, metadata, scheduled_for, sent_at, created_at`

// visibleClause restricts a listing to notifications the recipient may see:
// already sent, or scheduled for a time that has passed.
const visibleClause = `(sent_at IS NOT NULL OR scheduled_for <= NOW())`

func (r *notificationRepoPG) scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Priority, &n.Title, &n.Message,
		&n.Read, &n.ResourceType, &n.ResourceID, &n.Metadata, &n.ScheduledFor,
		&n.SentAt, &n.CreatedAt)
	return &n, err
}

func metadataArg(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification (id, user_id, type, priority, title, message, read,
			resource_type, resource_id, metadata, scheduled_for, sent_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		n.ID, n.UserID, n.Type, n.Priority, n.Title, n.Message, n.Read,
		n.ResourceType, n.ResourceID, metadataArg(n.Metadata), n.ScheduledFor,
		n.SentAt, n.CreatedAt)
	return err
}

func (r *notificationRepoPG) ListVisibleByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := `user_id = $1 AND ` + visibleClause
	if unreadOnly {
		where += ` AND read = FALSE`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification WHERE `+where, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE `+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *notificationRepoPG) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE user_id = $1 AND read = FALSE AND `+visibleClause,
		userID).Scan(&count)
	return count, err
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification SET read = TRUE WHERE user_id = $1 AND read = FALSE AND `+visibleClause,
		userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *notificationRepoPG) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepoPG) ListDue(ctx context.Context, now time.Time) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE scheduled_for <= $1 AND sent_at IS NULL`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *notificationRepoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	// sent_at is set at most once; losing the race to an immediate send is fine.
	_, err := r.pool.Exec(ctx,
		`UPDATE notification SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	return err
}

type emailRepoPG struct{ pool *pgxpool.Pool }

func NewEmailRepoPG(pool *pgxpool.Pool) EmailRepository {
	return &emailRepoPG{pool: pool}
}

func (r *emailRepoPG) Create(ctx context.Context, e *EmailNotification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_notification (id, recipient_email, recipient_name, subject,
			template_type, template_data, scheduled_for, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.RecipientEmail, e.RecipientName, e.Subject,
		e.TemplateType, metadataArg(e.TemplateData), e.ScheduledFor, e.CreatedAt)
	return err
}
