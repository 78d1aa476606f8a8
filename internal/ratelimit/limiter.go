// Package ratelimit implements fixed-window admission control per (user, action).
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/observability"
)

// Store keeps window counters. Increment starts a new window when none is
// active for key and reports the post-increment count and the time left in
// the window.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Peek(ctx context.Context, key string) (count int64, ttl time.Duration, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// Limits holds the per-window ceilings for ordinary and staff users.
type Limits struct {
	PermitLimit      int
	AdminPermitLimit int
}

// For returns the ceiling that applies to role.
func (l Limits) For(role domain.UserRole) int {
	if role.IsStaff() && l.AdminPermitLimit > 0 {
		return l.AdminPermitLimit
	}
	return l.PermitLimit
}

// Limiter admits or rejects attempts. Store failures are logged and admitted.
type Limiter struct {
	store   Store
	window  time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewLimiter builds a Limiter over store.
func NewLimiter(store Store, window time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, window: window, logger: logger, metrics: metrics}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow counts an attempt and reports whether it is within limit. A rejected
// attempt still counts against the window.
func (l *Limiter) Allow(ctx context.Context, userID int64, action string, limit int) bool {
	count, _, err := l.store.Increment(ctx, key(userID, action), l.window)
	if err != nil {
		l.logger.Warn("rate limit check failed, admitting",
			zap.Int64("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
		l.metrics.RateLimitFailOpen()
		return true
	}
	if count > int64(limit) {
		l.metrics.RateLimited(action)
		return false
	}
	return true
}

// Reset drops the window for (userID, action).
func (l *Limiter) Reset(ctx context.Context, userID int64, action string) error {
	return l.store.Delete(ctx, key(userID, action))
}

// RemainingAttempts reports how many attempts are left in the current window.
func (l *Limiter) RemainingAttempts(ctx context.Context, userID int64, action string, limit int) int {
	count, _, found, err := l.store.Peek(ctx, key(userID, action))
	if err != nil {
		l.logger.Warn("rate limit peek failed", zap.Int64("user_id", userID), zap.String("action", action), zap.Error(err))
		return limit
	}
	if !found {
		return limit
	}
	remaining := limit - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilReset reports how long until the current window expires. The
// second result is false when no window is active.
func (l *Limiter) TimeUntilReset(ctx context.Context, userID int64, action string) (time.Duration, bool) {
	_, ttl, found, err := l.store.Peek(ctx, key(userID, action))
	if err != nil {
		l.logger.Warn("rate limit peek failed", zap.Int64("user_id", userID), zap.String("action", action), zap.Error(err))
		return 0, false
	}
	if !found || ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func key(userID int64, action string) string {
	return action + ":" + strconv.FormatInt(userID, 10)
}
