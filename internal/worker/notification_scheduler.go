package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
)

// DueSource lists pending notifications whose time has come.
type DueSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
}

// Deliverer sends one stored notification and records the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, n *domain.Notification) error
}

// NotificationScheduler delivers notifications that were stored with a
// future ScheduledFor once they become due.
type NotificationScheduler struct {
	source    DueSource
	deliverer Deliverer
	clock     clock.Clock
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewNotificationScheduler builds a scheduler.
func NewNotificationScheduler(source DueSource, deliverer Deliverer, clk clock.Clock, logger *zap.Logger, interval time.Duration, batchSize int) *NotificationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotificationScheduler{
		source:    source,
		deliverer: deliverer,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is cancelled.
func (s *NotificationScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce delivers one batch and returns how many deliveries succeeded.
func (s *NotificationScheduler) RunOnce(ctx context.Context) int {
	due, err := s.source.ListDue(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("list due notifications", zap.Error(err))
		}
		return 0
	}
	sent := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.deliverer.Deliver(ctx, &due[i]); err != nil {
			s.logger.Warn("scheduled notification failed",
				zap.String("notification_id", due[i].ID),
				zap.Error(err))
			continue
		}
		sent++
	}
	if len(due) > 0 {
		s.logger.Info("scheduled notifications processed", zap.Int("due", len(due)), zap.Int("sent", sent))
	}
	return sent
}
