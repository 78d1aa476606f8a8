package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/api/dto"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/service"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// StaffAppealsHandler handles the staff side of the appeal workflow.
type StaffAppealsHandler struct {
	appeals  AppealWorkflow
	pipeline *command.Pipeline
}

// NewStaffAppealsHandler constructs handler.
func NewStaffAppealsHandler(appeals AppealWorkflow, pipeline *command.Pipeline) *StaffAppealsHandler {
	return &StaffAppealsHandler{appeals: appeals, pipeline: pipeline}
}

// ListAppeals GET /staff/appeals.
func (h *StaffAppealsHandler) ListAppeals(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filter, err := parseStaffAppealFilter(c, actor)
	if err != nil {
		return err
	}
	appeals, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ListAppeals, func(ctx context.Context) ([]domain.Appeal, error) {
		return h.appeals.ListAppeals(ctx, filter)
	})
	if err != nil {
		return err
	}
	items := make([]dto.AppealSummary, 0, len(appeals))
	for i := range appeals {
		items = append(items, appealSummary(&appeals[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetAppeal GET /staff/appeals/:id. Includes the audit history.
func (h *StaffAppealsHandler) GetAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var detail dto.AppealDetailResponse
	err = h.pipeline.Run(c.UserContext(), actor, command.ViewAppeal, func(ctx context.Context) error {
		appeal, err := h.appeals.GetAppeal(ctx, actor, appealID)
		if err != nil {
			return err
		}
		history, err := h.appeals.ListHistory(ctx, appealID)
		if err != nil {
			return err
		}
		detail = appealDetail(appeal, history)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detail})
}

// AddMessage POST /staff/appeals/:id/messages.
func (h *StaffAppealsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.MessageInput{Text: req.Text, Attachments: req.Attachments}
	msg, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ReplyAsStaff, func(ctx context.Context) (*domain.AppealMessage, error) {
		_, msg, err := h.appeals.AddStaffMessage(ctx, actor, appealID, input)
		return msg, err
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": appealMessageResponse(msg)})
}

// AssignAppeal PUT /staff/appeals/:id/assignee.
func (h *StaffAppealsHandler) AssignAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AssignAppealRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.AssignAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.AssignTo(ctx, actor, appealID, req.AdminID)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealSummary(appeal)})
}

// ChangePriority PUT /staff/appeals/:id/priority.
func (h *StaffAppealsHandler) ChangePriority(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ChangePriority, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.UpdatePriority(ctx, actor, appealID, req.Priority)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealSummary(appeal)})
}

// CloseAppeal POST /staff/appeals/:id/close.
func (h *StaffAppealsHandler) CloseAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.CloseAppealRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.CloseAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.Close(ctx, actor, appealID, req.Reason, req.IsRejection)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetail(appeal, nil)})
}

// parseStaffAppealFilter reads status, priority, assignee and pagination
// query parameters. assignee accepts "me", "none" or a user id.
func parseStaffAppealFilter(c *fiber.Ctx, actor domain.Actor) (service.AppealListFilter, error) {
	filter := service.AppealListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.AppealStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.AppealPriority(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	switch assignee := c.Query("assignee"); assignee {
	case "":
	case "me":
		id := actor.ID
		filter.AssigneeID = &id
	case "none":
		filter.UnassignedOnly = true
	default:
		id, err := strconv.ParseInt(assignee, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid assignee", map[string]any{"assignee": assignee})
		}
		filter.AssigneeID = &id
	}
	filter.Limit, filter.Offset = pagination(c)
	return filter, nil
}
