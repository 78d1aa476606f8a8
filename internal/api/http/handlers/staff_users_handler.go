package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/api/dto"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/service"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// StaffAdministration manages staff roles and credentials.
type StaffAdministration interface {
	ListStaff(ctx context.Context, actor domain.Actor) ([]domain.User, error)
	UpdateAccess(ctx context.Context, actor domain.Actor, userID int64, input service.StaffAccessInput) (*domain.User, error)
}

// StaffUsersHandler exposes staff administration.
type StaffUsersHandler struct {
	staff    StaffAdministration
	pipeline *command.Pipeline
}

// NewStaffUsersHandler constructs handler.
func NewStaffUsersHandler(staff StaffAdministration, pipeline *command.Pipeline) *StaffUsersHandler {
	return &StaffUsersHandler{staff: staff, pipeline: pipeline}
}

// ListStaff GET /staff/users.
func (h *StaffUsersHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	users, err := h.staff.ListStaff(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateAccess PUT /staff/users/:id/access.
func (h *StaffUsersHandler) UpdateAccess(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid user id", map[string]any{"id": c.Params("id")})
	}
	var req dto.StaffAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.StaffAccessInput{Role: domain.UserRole(req.Role), Email: req.Email, Password: req.Password}
	user, err := command.Execute(c.UserContext(), h.pipeline, actor, command.ManageStaff, func(ctx context.Context) (*domain.User, error) {
		return h.staff.UpdateAccess(ctx, actor, userID, input)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

func userResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        string(u.Role),
		Language:    u.PreferredLanguage(),
		CreatedAt:   u.CreatedAt,
	}
}
