package service

import (
	"context"
	"time"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/repository"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// InboxService exposes in-app notifications and preferences to their owner.
type InboxService struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	clock         clock.Clock
}

// NewInboxService constructs the service.
func NewInboxService(notifications repository.NotificationRepository, preferences repository.PreferenceRepository, clk clock.Clock) *InboxService {
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	return &InboxService{notifications: notifications, preferences: preferences, clock: clk}
}

// List returns the actor's in-app notifications, newest first.
func (s *InboxService) List(ctx context.Context, actor domain.Actor, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	items, err := s.notifications.ListByUser(ctx, actor.ID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

// MarkRead stamps ReadAt on one of the actor's notifications. Marking twice keeps the first time.
func (s *InboxService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.notifications.MarkRead(ctx, id, actor.ID, s.clock.Now()); err != nil {
		de := apperrors.ToDomainError(err)
		if de.Code == apperrors.CodeNotFound {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return de
	}
	return nil
}

// SetPreference enables or disables an event on a channel for the actor.
func (s *InboxService) SetPreference(ctx context.Context, actor domain.Actor, event domain.NotificationEvent, channel domain.NotificationChannel, enabled bool) error {
	if !validEvent(event) {
		return apperrors.NewValidationError("unknown event", map[string]any{"event": event})
	}
	switch channel {
	case domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS, domain.ChannelInApp:
	default:
		return apperrors.NewValidationError("unknown channel", map[string]any{"channel": channel})
	}
	if err := s.preferences.Set(ctx, actor.ID, event, channel, enabled); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func validEvent(e domain.NotificationEvent) bool {
	switch e {
	case domain.EventNewAppeal, domain.EventNewStaffReply, domain.EventNewStudentReply, domain.EventAppealAssigned,
		domain.EventAppealResolved, domain.EventAppealClosed, domain.EventRatingRequest, domain.EventPriorityChanged:
		return true
	}
	return false
}
