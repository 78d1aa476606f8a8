package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/events"
	"github.com/campusdesk/appeal-service/internal/notification"
)

// Notifier creates and delivers a single notification.
type Notifier interface {
	CreateAndSend(ctx context.Context, req notification.Request) (*domain.Notification, error)
}

// StaffDirectory lists users by role.
type StaffDirectory interface {
	ListByRoles(ctx context.Context, roles ...domain.UserRole) ([]domain.User, error)
}

// NotificationService turns appeal events into notifications. Handlers run
// in the background so a slow channel never holds up the workflow.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	staff      StaffDirectory
	logger     *zap.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, staff StaffDirectory, logger *zap.Logger, timeout time.Duration) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		staff:      staff,
		logger:     logger,
		timeout:    timeout,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAppealCreated, n.async(n.handleAppealCreated))
	n.dispatcher.Subscribe(events.EventAppealMessageAdded, n.async(n.handleMessageAdded))
	n.dispatcher.Subscribe(events.EventAppealAssigned, n.async(n.handleAppealAssigned))
	n.dispatcher.Subscribe(events.EventAppealPriorityChanged, n.async(n.handlePriorityChanged))
	n.dispatcher.Subscribe(events.EventAppealClosed, n.async(n.handleAppealClosed))
}

// Wait blocks until every in-flight handler finished.
func (n *NotificationService) Wait() {
	n.wg.Wait()
}

func (n *NotificationService) async(handler events.EventHandler) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					n.logger.Error("notification handler panic",
						zap.String("event_type", string(event.Type)),
						zap.Int64("appeal_id", event.AppealID),
						zap.Any("panic", r))
				}
			}()
			if err := handler(ctx, event); err != nil {
				n.logger.Warn("notification handler failed",
					zap.String("event_type", string(event.Type)),
					zap.Int64("appeal_id", event.AppealID),
					zap.Error(err))
			}
		}()
		return nil
	}
}

func (n *NotificationService) handleAppealCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppealCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	data := appealData(event.AppealID, payload.Appeal)

	recipients := []int64{}
	if payload.Appeal.AssignedAdminID != nil {
		recipients = append(recipients, *payload.Appeal.AssignedAdminID)
	} else {
		staff, err := n.staff.ListByRoles(ctx, domain.RoleAdmin, domain.RoleSuperAdmin)
		if err != nil {
			return fmt.Errorf("list staff: %w", err)
		}
		for _, u := range staff {
			recipients = append(recipients, u.ID)
		}
	}
	if len(recipients) == 0 {
		n.logger.Info("no staff to notify about new appeal", zap.Int64("appeal_id", event.AppealID))
		return nil
	}

	for _, userID := range recipients {
		n.send(ctx, notification.Request{
			UserID:   userID,
			Event:    domain.EventNewAppeal,
			Channel:  domain.ChannelPush,
			Priority: domain.NotificationPriorityNormal,
			Title:    "New appeal #{appeal_id}",
			Body:     "{student_name}: {subject}",
		}, event.AppealID, data)
	}
	return nil
}

func (n *NotificationService) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppealMessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	data := appealData(event.AppealID, payload.Appeal)
	data["sender_name"] = payload.SenderName
	data["preview"] = payload.Preview

	if payload.IsFromStaff {
		n.send(ctx, notification.Request{
			UserID:   payload.Appeal.StudentID,
			Event:    domain.EventNewStaffReply,
			Channel:  domain.ChannelPush,
			Priority: domain.NotificationPriorityHigh,
			Title:    "Reply to appeal #{appeal_id}",
			Body:     "{sender_name}: {preview}",
		}, event.AppealID, data)
		return nil
	}

	if payload.Appeal.AssignedAdminID == nil {
		n.logger.Debug("student reply on unassigned appeal", zap.Int64("appeal_id", event.AppealID))
		return nil
	}
	n.send(ctx, notification.Request{
		UserID:   *payload.Appeal.AssignedAdminID,
		Event:    domain.EventNewStudentReply,
		Channel:  domain.ChannelPush,
		Priority: domain.NotificationPriorityNormal,
		Title:    "Student replied on #{appeal_id}",
		Body:     "{sender_name}: {preview}",
	}, event.AppealID, data)
	return nil
}

func (n *NotificationService) handleAppealAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppealAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	assignee := payload.Appeal.AssignedAdminID
	if assignee == nil || *assignee == event.ActorID {
		return nil
	}
	n.send(ctx, notification.Request{
		UserID:   *assignee,
		Event:    domain.EventAppealAssigned,
		Channel:  domain.ChannelPush,
		Priority: domain.NotificationPriorityNormal,
		Title:    "Appeal #{appeal_id} assigned to you",
		Body:     "{subject}",
	}, event.AppealID, appealData(event.AppealID, payload.Appeal))
	return nil
}

func (n *NotificationService) handlePriorityChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppealPriorityChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	assignee := payload.Appeal.AssignedAdminID
	if payload.Appeal.Priority != domain.AppealPriorityUrgent || assignee == nil || *assignee == event.ActorID {
		return nil
	}
	n.send(ctx, notification.Request{
		UserID:   *assignee,
		Event:    domain.EventPriorityChanged,
		Channel:  domain.ChannelPush,
		Priority: domain.NotificationPriorityHigh,
		Title:    "Appeal #{appeal_id} is now {priority}",
		Body:     "{subject}",
	}, event.AppealID, appealData(event.AppealID, payload.Appeal))
	return nil
}

// handleAppealClosed informs the student first and then asks for a rating.
// The two are independent: a failed closure notice still sends the request.
func (n *NotificationService) handleAppealClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppealClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	data := appealData(event.AppealID, payload.Appeal)
	data["reason"] = payload.Reason

	closure := notification.Request{
		UserID:   payload.Appeal.StudentID,
		Event:    domain.EventAppealResolved,
		Channel:  domain.ChannelPush,
		Priority: domain.NotificationPriorityHigh,
		Title:    "Appeal #{appeal_id} resolved",
		Body:     "{reason}",
	}
	if payload.IsRejection {
		closure.Event = domain.EventAppealClosed
		closure.Title = "Appeal #{appeal_id} closed"
	}
	n.send(ctx, closure, event.AppealID, data)

	n.send(ctx, notification.Request{
		UserID:   payload.Appeal.StudentID,
		Event:    domain.EventRatingRequest,
		Channel:  domain.ChannelInApp,
		Priority: domain.NotificationPriorityLow,
		Title:    "How did we do?",
		Body:     "Rate the handling of appeal #{appeal_id} from 1 to 5.",
	}, event.AppealID, data)
	return nil
}

func (n *NotificationService) send(ctx context.Context, req notification.Request, appealID int64, data map[string]string) {
	id := appealID
	req.AppealID = &id
	req.UseTemplate = true
	req.Data = data
	if _, err := n.notifier.CreateAndSend(ctx, req); err != nil {
		n.logger.Warn("notification not delivered",
			zap.Int64("appeal_id", appealID),
			zap.Int64("user_id", req.UserID),
			zap.String("event", string(req.Event)),
			zap.String("channel", string(req.Channel)),
			zap.Error(err))
	}
}

func appealData(appealID int64, ref events.AppealRef) map[string]string {
	return map[string]string{
		"appeal_id":    strconv.FormatInt(appealID, 10),
		"student_name": ref.StudentName,
		"subject":      ref.Subject,
		"priority":     string(ref.Priority),
	}
}
