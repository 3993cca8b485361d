package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	dispatchInterval      = 5 * time.Minute
	dispatchErrorInterval = time.Minute
)

// Dispatcher periodically promotes scheduled notifications whose time has
// arrived to sent. It is the only path besides the immediate-send logic in
// Notifier.Create that sets sent_at. Start it exactly once at process
// startup; cancelling the context stops the loop.
type Dispatcher struct {
	notifications NotificationRepository
	logger        zerolog.Logger
	interval      time.Duration
	errInterval   time.Duration
}

func NewDispatcher(notifications NotificationRepository, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		logger:        logger,
		interval:      dispatchInterval,
		errInterval:   dispatchErrorInterval,
	}
}

// Start runs the dispatch loop in a goroutine until ctx is cancelled. After
// a failed scan the loop retries sooner.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(d.interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				next := d.interval
				sent, err := d.RunOnce(ctx)
				if err != nil {
					d.logger.Error().Err(err).Msg("notification dispatch scan failed")
					next = d.errInterval
				} else if sent > 0 {
					d.logger.Info().Int("sent", sent).Msg("dispatched scheduled notifications")
				}
				timer.Reset(next)
			}
		}
	}()
}

// RunOnce performs a single scan: every notification with scheduled_for in
// the past and no sent_at is marked sent now. Safe to run concurrently with
// itself or with immediate sends; sent_at is only ever set once.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := d.notifications.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range due {
		if err := d.notifications.MarkSent(ctx, n.ID, now); err != nil {
			d.logger.Error().Err(err).
				Str("notification_id", n.ID.String()).
				Msg("failed to mark notification sent")
			continue
		}
		sent++
	}
	return sent, nil
}
