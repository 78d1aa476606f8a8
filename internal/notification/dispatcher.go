package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/observability"
	"github.com/campusdesk/appeal-service/internal/repository"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// UserDirectory resolves recipients.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Request describes one notification. With UseTemplate set, Title and Body
// are only used when no template exists for the event and channel.
type Request struct {
	UserID       int64
	Event        domain.NotificationEvent
	Channel      domain.NotificationChannel
	Title        string
	Body         string
	Priority     domain.NotificationPriority
	AppealID     *int64
	UseTemplate  bool
	Data         map[string]string
	ScheduledFor *time.Time
}

// Dependencies wires the dispatcher.
type Dependencies struct {
	Notifications   repository.NotificationRepository
	Preferences     repository.PreferenceRepository
	Templates       repository.TemplateRepository
	Users           UserDirectory
	Channels        map[domain.NotificationChannel]Channel
	Clock           clock.Clock
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	DeliveryTimeout time.Duration
}

// Dispatcher creates notification records and delivers them. It records the
// outcome of a delivery but never retries.
type Dispatcher struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	templates     repository.TemplateRepository
	users         UserDirectory
	channels      map[domain.NotificationChannel]Channel
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *observability.Metrics
	timeout       time.Duration
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(deps Dependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	timeout := deps.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	channels := deps.Channels
	if channels == nil {
		channels = map[domain.NotificationChannel]Channel{}
	}
	return &Dispatcher{
		notifications: deps.Notifications,
		preferences:   deps.Preferences,
		templates:     deps.Templates,
		users:         deps.Users,
		channels:      channels,
		clock:         clk,
		logger:        logger,
		metrics:       deps.Metrics,
		timeout:       timeout,
	}
}

// CreateAndSend stores a notification and delivers it when due. It returns
// (nil, nil) when the recipient opted out. A delivery failure returns the
// failed record together with a DELIVERY_FAILED error.
func (d *Dispatcher) CreateAndSend(ctx context.Context, req Request) (*domain.Notification, error) {
	enabled, err := d.preferences.IsEnabled(ctx, req.UserID, req.Event, req.Channel)
	if err != nil {
		return nil, fmt.Errorf("load notification preference: %w", err)
	}
	if !enabled {
		d.logger.Debug("notification disabled by preference",
			zap.Int64("user_id", req.UserID),
			zap.String("event", string(req.Event)),
			zap.String("channel", string(req.Channel)))
		return nil, nil
	}

	recipient := d.recipient(ctx, req.UserID)

	title, body := req.Title, req.Body
	if req.UseTemplate {
		title, body, err = d.render(ctx, req, recipient.PreferredLanguage())
		if err != nil {
			return nil, err
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.NotificationPriorityNormal
	}
	now := d.clock.Now()
	n := &domain.Notification{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Event:        req.Event,
		Channel:      req.Channel,
		Title:        title,
		Body:         body,
		Priority:     priority,
		AppealID:     req.AppealID,
		Status:       domain.NotificationPending,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}

	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		return n, nil
	}
	return n, d.deliver(ctx, n, recipient)
}

// Deliver sends an already stored pending notification.
func (d *Dispatcher) Deliver(ctx context.Context, n *domain.Notification) error {
	if n.Status != domain.NotificationPending {
		return apperrors.NewInvalidState("notification is not pending", map[string]any{
			"notification_id": n.ID,
			"status":          n.Status,
		})
	}
	return d.deliver(ctx, n, d.recipient(ctx, n.UserID))
}

func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification, recipient *domain.User) error {
	var (
		delivered bool
		sendErr   error
	)
	channel, ok := d.channels[n.Channel]
	if !ok {
		sendErr = fmt.Errorf("channel %s is not configured", n.Channel)
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		delivered, sendErr = channel.Send(sendCtx, Message{
			NotificationID: n.ID,
			Recipient:      *recipient,
			Title:          n.Title,
			Body:           n.Body,
			Priority:       n.Priority,
			AppealID:       n.AppealID,
		})
		cancel()
	}

	now := d.clock.Now()
	n.UpdatedAt = now
	if sendErr != nil {
		msg := sendErr.Error()
		n.Status = domain.NotificationFailed
		n.ErrorMessage = &msg
		n.RetryCount++
	} else {
		n.Status = domain.NotificationSent
		if delivered {
			n.Status = domain.NotificationDelivered
		}
		n.SentAt = &now
		n.ErrorMessage = nil
	}
	d.metrics.NotificationOutcome(string(n.Channel), string(n.Status))

	if err := d.notifications.UpdateDelivery(ctx, n); err != nil {
		d.logger.Error("record notification outcome",
			zap.String("notification_id", n.ID),
			zap.String("status", string(n.Status)),
			zap.Error(err))
		if sendErr == nil {
			return fmt.Errorf("record notification outcome: %w", err)
		}
	}

	if sendErr != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("notification_id", n.ID),
			zap.Int64("user_id", n.UserID),
			zap.String("channel", string(n.Channel)),
			zap.Int("retry_count", n.RetryCount),
			zap.Error(sendErr))
		return apperrors.NewDeliveryError(string(n.Channel), sendErr)
	}
	return nil
}

func (d *Dispatcher) render(ctx context.Context, req Request, language string) (string, string, error) {
	tpl, err := d.templates.Get(ctx, req.Event, req.Channel, language)
	switch {
	case err == nil:
		return Render(tpl.TitleTemplate, req.Data), Render(tpl.BodyTemplate, req.Data), nil
	case errors.Is(err, pgx.ErrNoRows):
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
			return "", "", apperrors.NewTemplateMissing(map[string]any{
				"event":    req.Event,
				"channel":  req.Channel,
				"language": language,
			})
		}
		return Render(req.Title, req.Data), Render(req.Body, req.Data), nil
	default:
		return "", "", fmt.Errorf("load notification template: %w", err)
	}
}

// recipient falls back to a bare user with the default language when the
// directory lookup fails.
func (d *Dispatcher) recipient(ctx context.Context, userID int64) *domain.User {
	if d.users != nil {
		user, err := d.users.GetByID(ctx, userID)
		if err == nil {
			return user
		}
		d.logger.Warn("notification recipient lookup failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return &domain.User{ID: userID, Language: domain.DefaultLanguage}
}
