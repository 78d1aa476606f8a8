package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/api/dto"
	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/service"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// AppealWorkflow is the appeal service surface used by HTTP handlers.
type AppealWorkflow interface {
	CreateAppeal(ctx context.Context, actor domain.Actor, input service.CreateAppealInput) (*domain.Appeal, error)
	AssignTo(ctx context.Context, actor domain.Actor, appealID int64, adminID *int64) (*domain.Appeal, error)
	AddStaffMessage(ctx context.Context, actor domain.Actor, appealID int64, input service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error)
	AddStudentMessage(ctx context.Context, actor domain.Actor, appealID int64, input service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error)
	UpdatePriority(ctx context.Context, actor domain.Actor, appealID int64, priority domain.AppealPriority) (*domain.Appeal, error)
	Close(ctx context.Context, actor domain.Actor, appealID int64, reason string, isRejection bool) (*domain.Appeal, error)
	SetRating(ctx context.Context, actor domain.Actor, appealID int64, input service.RatingInput) (*domain.Appeal, error)
	GetAppeal(ctx context.Context, actor domain.Actor, appealID int64) (*domain.Appeal, error)
	ListStudentAppeals(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Appeal, error)
	ListAppeals(ctx context.Context, filter service.AppealListFilter) ([]domain.Appeal, error)
	ListHistory(ctx context.Context, appealID int64) ([]domain.AppealHistory, error)
}

// AppealsHandler manages student appeal endpoints.
type AppealsHandler struct {
	appeals  AppealWorkflow
	pipeline *command.Pipeline
}

// NewAppealsHandler constructs handler.
func NewAppealsHandler(appeals AppealWorkflow, pipeline *command.Pipeline) *AppealsHandler {
	return &AppealsHandler{appeals: appeals, pipeline: pipeline}
}

// CreateAppeal POST /appeals.
func (h *AppealsHandler) CreateAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateAppealRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.CreateAppealInput{Category: req.Category, Subject: req.Subject, Message: req.Message}
	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.CreateAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.CreateAppeal(ctx, actor, input)
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": appealSummary(appeal)})
}

// ListAppeals GET /appeals.
func (h *AppealsHandler) ListAppeals(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	appeals, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ListAppeals, func(ctx context.Context) ([]domain.Appeal, error) {
		return h.appeals.ListStudentAppeals(ctx, actor, limit, offset)
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

// GetAppeal GET /appeals/:id.
func (h *AppealsHandler) GetAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ViewAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.GetAppeal(ctx, actor, appealID)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetail(appeal, nil)})
}

// AddMessage POST /appeals/:id/messages.
func (h *AppealsHandler) AddMessage(c *fiber.Ctx) error {
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
	msg, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ReplyAsStudent, func(ctx context.Context) (*domain.AppealMessage, error) {
		_, msg, err := h.appeals.AddStudentMessage(ctx, actor, appealID, input)
		return msg, err
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": appealMessageResponse(msg)})
}

// RateAppeal POST /appeals/:id/rating.
func (h *AppealsHandler) RateAppeal(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	appealID, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.RateAppealRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.RatingInput{Rating: req.Rating, Comment: req.Comment}
	appeal, err := command.Execute(c.UserContext(), h.pipeline, actor, command.RateAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return h.appeals.SetRating(ctx, actor, appealID, input)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetail(appeal, nil)})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return domain.Actor{}, apperrors.NewUnauthorized("user required")
	}
	return principal.Actor(), nil
}

func appealIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid appeal id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func appealSummary(appeal *domain.Appeal) dto.AppealSummary {
	return dto.AppealSummary{
		ID:              appeal.ID,
		StudentID:       appeal.StudentID,
		StudentName:     appeal.StudentName,
		Category:        appeal.Category,
		Subject:         appeal.Subject,
		Status:          appeal.Status,
		Priority:        appeal.Priority,
		AssignedAdminID: appeal.AssignedAdminID,
		CreatedAt:       appeal.CreatedAt,
		UpdatedAt:       appeal.UpdatedAt,
	}
}

func appealDetail(appeal *domain.Appeal, history []domain.AppealHistory) dto.AppealDetailResponse {
	msgs := make([]dto.AppealMessageResponse, 0, len(appeal.Messages))
	for i := range appeal.Messages {
		msgs = append(msgs, appealMessageResponse(&appeal.Messages[i]))
	}
	var entries []dto.AppealHistoryResponse
	for _, h := range history {
		entries = append(entries, dto.AppealHistoryResponse{
			ID:         h.ID,
			ChangedBy:  h.ChangedBy,
			ChangeType: h.ChangeType,
			OldValue:   h.OldValue,
			NewValue:   h.NewValue,
			CreatedAt:  h.CreatedAt,
		})
	}
	return dto.AppealDetailResponse{
		AppealSummary:   appealSummary(appeal),
		Message:         appeal.Message,
		FirstResponseAt: appeal.FirstResponseAt,
		ClosedAt:        appeal.ClosedAt,
		ClosedBy:        appeal.ClosedBy,
		ClosedReason:    appeal.ClosedReason,
		Rating:          appeal.Rating,
		RatingComment:   appeal.RatingComment,
		Messages:        msgs,
		History:         entries,
	}
}

func appealMessageResponse(msg *domain.AppealMessage) dto.AppealMessageResponse {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return dto.AppealMessageResponse{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		IsFromStaff: msg.IsFromStaff,
		Text:        msg.Text,
		Attachments: attachments,
		SentAt:      msg.SentAt,
	}
}
