package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/api/dto"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/domain"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// Inbox is the in-app notification surface.
type Inbox interface {
	List(ctx context.Context, actor domain.Actor, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, actor domain.Actor, id string) error
	SetPreference(ctx context.Context, actor domain.Actor, event domain.NotificationEvent, channel domain.NotificationChannel, enabled bool) error
}

// NotificationsHandler serves the caller's in-app notifications.
type NotificationsHandler struct {
	inbox    Inbox
	pipeline *command.Pipeline
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(inbox Inbox, pipeline *command.Pipeline) *NotificationsHandler {
	return &NotificationsHandler{inbox: inbox, pipeline: pipeline}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	unreadOnly := c.QueryBool("unread", false)
	items, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ListNotifications, func(ctx context.Context) ([]domain.Notification, error) {
		return h.inbox.List(ctx, actor, unreadOnly, limit, offset)
	})
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		n := &items[i]
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			Event:     n.Event,
			Title:     n.Title,
			Body:      n.Body,
			Priority:  n.Priority,
			AppealID:  n.AppealID,
			Status:    n.Status,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	err = h.pipeline.Run(c.UserContext(), actor, command.ReadNotification, func(ctx context.Context) error {
		return h.inbox.MarkRead(ctx, actor, id)
	})
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetPreference PUT /notifications/preferences.
func (h *NotificationsHandler) SetPreference(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.PreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Enabled == nil {
		return apperrors.NewValidationError("enabled required", nil)
	}
	if err := h.inbox.SetPreference(c.UserContext(), actor, req.Event, req.Channel, *req.Enabled); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
