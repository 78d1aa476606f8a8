package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/api/dto"
	"github.com/campusdesk/appeal-service/internal/domain"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// Authenticator issues tokens for password logins.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.User, string, domain.Token, error)
}

// AuthHandler handles login.
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler constructs handler.
func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	user, token, meta, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: meta.ExpiresAt,
		UserID:    user.ID,
		Role:      string(user.Role),
	}})
}
