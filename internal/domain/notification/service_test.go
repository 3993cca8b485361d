package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockNotificationRepo struct {
	items      map[uuid.UUID]*Notification
	failCreate bool
	failList   bool
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{items: map[uuid.UUID]*Notification{}}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *Notification) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func visible(n *Notification, now time.Time) bool {
	return n.SentAt != nil || (n.ScheduledFor != nil && !n.ScheduledFor.After(now))
}

func (m *mockNotificationRepo) ListVisibleByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, _, _ int) ([]*Notification, int, error) {
	now := time.Now().UTC()
	var out []*Notification
	for _, n := range m.items {
		if n.UserID != userID || !visible(n, now) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	now := time.Now().UTC()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.Read && visible(n, now) {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID uuid.UUID) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockNotificationRepo) ListDue(_ context.Context, now time.Time) ([]*Notification, error) {
	if m.failList {
		return nil, errors.New("scan failed")
	}
	var out []*Notification
	for _, n := range m.items {
		if n.SentAt == nil && n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	n, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if n.SentAt != nil {
		return nil
	}
	sentAt := at
	n.SentAt = &sentAt
	return nil
}

type mockEmailRepo struct {
	items      []*EmailNotification
	failCreate bool
}

func (m *mockEmailRepo) Create(_ context.Context, e *EmailNotification) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	m.items = append(m.items, e)
	return nil
}

func newTestNotifier() (*Notifier, *mockNotificationRepo, *mockEmailRepo) {
	repo := newMockNotificationRepo()
	emails := &mockEmailRepo{}
	return NewNotifier(repo, emails, zerolog.Nop()), repo, emails
}

func TestCreateNotification_ImmediateSend(t *testing.T) {
	svc, repo, _ := newTestNotifier()

	n := svc.Create(context.Background(), &Notification{
		UserID:  uuid.New(),
		Type:    TypeSystemMessage,
		Title:   "Hello",
		Message: "World",
	})
	if n == nil {
		t.Fatal("expected notification")
	}
	if n.SentAt == nil || !n.SentAt.Equal(n.CreatedAt) {
		t.Fatalf("sent_at = %v, created_at = %v", n.SentAt, n.CreatedAt)
	}
	if stored := repo.items[n.ID]; stored == nil || stored.SentAt == nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCreateNotification_ScheduledStaysUnsent(t *testing.T) {
	svc, _, _ := newTestNotifier()

	later := time.Now().UTC().Add(2 * time.Hour)
	n := svc.Create(context.Background(), &Notification{
		UserID:       uuid.New(),
		Type:         TypeAppointmentReminder,
		Priority:     PriorityHigh,
		Title:        "Reminder",
		Message:      "Soon",
		ScheduledFor: &later,
	})
	if n == nil {
		t.Fatal("expected notification")
	}
	if n.SentAt != nil {
		t.Fatalf("scheduled notification marked sent at creation: %v", n.SentAt)
	}
}

func TestCreateNotification_DefaultsPriority(t *testing.T) {
	svc, _, _ := newTestNotifier()
	n := svc.Create(context.Background(), &Notification{
		UserID: uuid.New(), Type: TypeSystemMessage, Title: "T", Message: "M",
	})
	if n == nil || n.Priority != PriorityMedium {
		t.Fatalf("notification = %+v", n)
	}
}

func TestCreateNotification_UnknownTypeDropped(t *testing.T) {
	svc, repo, _ := newTestNotifier()
	n := svc.Create(context.Background(), &Notification{
		UserID: uuid.New(), Type: "carrier_pigeon", Title: "T", Message: "M",
	})
	if n != nil {
		t.Fatalf("expected nil, got %+v", n)
	}
	if len(repo.items) != 0 {
		t.Fatal("dropped notification was persisted")
	}
}

func TestCreateNotification_UnknownPriorityDropped(t *testing.T) {
	svc, _, _ := newTestNotifier()
	n := svc.Create(context.Background(), &Notification{
		UserID: uuid.New(), Type: TypeSystemMessage, Priority: "extreme", Title: "T", Message: "M",
	})
	if n != nil {
		t.Fatalf("expected nil, got %+v", n)
	}
}

func TestCreateNotification_RepoFailureReturnsNil(t *testing.T) {
	svc, repo, _ := newTestNotifier()
	repo.failCreate = true

	n := svc.Create(context.Background(), &Notification{
		UserID: uuid.New(), Type: TypeSystemMessage, Title: "T", Message: "M",
	})
	if n != nil {
		t.Fatalf("expected nil on persistence failure, got %+v", n)
	}
}

func TestListForUser_HidesFutureScheduled(t *testing.T) {
	svc, _, _ := newTestNotifier()
	userID := uuid.New()

	svc.Create(context.Background(), &Notification{
		UserID: userID, Type: TypeSystemMessage, Title: "now", Message: "M",
	})
	future := time.Now().UTC().Add(time.Hour)
	svc.Create(context.Background(), &Notification{
		UserID: userID, Type: TypeAppointmentReminder, Title: "future", Message: "M",
		ScheduledFor: &future,
	})
	past := time.Now().UTC().Add(-time.Hour)
	svc.Create(context.Background(), &Notification{
		UserID: userID, Type: TypeAppointmentReminder, Title: "past", Message: "M",
		ScheduledFor: &past,
	})

	items, total, err := svc.ListForUser(context.Background(), userID, false, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("visible = %d/%d, want 2", len(items), total)
	}
	for _, n := range items {
		if n.Title == "future" {
			t.Fatal("future-scheduled notification is visible")
		}
	}
}

func TestUnreadCount(t *testing.T) {
	svc, repo, _ := newTestNotifier()
	userID := uuid.New()

	a := svc.Create(context.Background(), &Notification{
		UserID: userID, Type: TypeSystemMessage, Title: "a", Message: "M",
	})
	svc.Create(context.Background(), &Notification{
		UserID: userID, Type: TypeSystemMessage, Title: "b", Message: "M",
	})

	count, err := svc.UnreadCount(context.Background(), userID)
	if err != nil || count != 2 {
		t.Fatalf("count = %d, err = %v", count, err)
	}

	if err := svc.MarkRead(context.Background(), a.ID, userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ = svc.UnreadCount(context.Background(), userID)
	if count != 1 {
		t.Fatalf("count after read = %d", count)
	}
	if !repo.items[a.ID].Read {
		t.Fatal("read flag not persisted")
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, _, _ := newTestNotifier()
	userID := uuid.New()
	svc.Create(context.Background(), &Notification{UserID: userID, Type: TypeSystemMessage, Title: "a", Message: "M"})
	svc.Create(context.Background(), &Notification{UserID: userID, Type: TypeSystemMessage, Title: "b", Message: "M"})

	count, err := svc.MarkAllRead(context.Background(), userID)
	if err != nil || count != 2 {
		t.Fatalf("marked = %d, err = %v", count, err)
	}
}

func TestDelete_RecipientScoped(t *testing.T) {
	svc, repo, _ := newTestNotifier()
	owner := uuid.New()
	n := svc.Create(context.Background(), &Notification{
		UserID: owner, Type: TypeSystemMessage, Title: "mine", Message: "M",
	})

	if err := svc.Delete(context.Background(), n.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign recipient, got %v", err)
	}
	if _, ok := repo.items[n.ID]; !ok {
		t.Fatal("notification deleted by foreign recipient")
	}

	if err := svc.Delete(context.Background(), n.ID, owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.items[n.ID]; ok {
		t.Fatal("notification still present after delete")
	}
}

func TestMarkRead_RecipientScoped(t *testing.T) {
	svc, _, _ := newTestNotifier()
	owner := uuid.New()
	n := svc.Create(context.Background(), &Notification{
		UserID: owner, Type: TypeSystemMessage, Title: "mine", Message: "M",
	})
	if err := svc.MarkRead(context.Background(), n.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign recipient, got %v", err)
	}
}

func TestRecordEmail(t *testing.T) {
	svc, _, emails := newTestNotifier()
	e := svc.RecordEmail(context.Background(), &EmailNotification{
		RecipientEmail: "pat@example.com",
		RecipientName:  "Pat",
		Subject:        "Hi",
		TemplateType:   TypeSystemMessage,
	})
	if e == nil || len(emails.items) != 1 {
		t.Fatalf("email = %+v, stored = %d", e, len(emails.items))
	}

	emails.failCreate = true
	if e := svc.RecordEmail(context.Background(), &EmailNotification{RecipientEmail: "x@example.com"}); e != nil {
		t.Fatalf("expected nil on persistence failure, got %+v", e)
	}
}
