package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/repository"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// StaffService manages who may handle appeals and how staff sign in.
type StaffService struct {
	users      repository.UserRepository
	bcryptCost int
	validator  *validator.Validate
	logger     *zap.Logger
}

// StaffAccessInput sets a user's role and optional web credentials.
type StaffAccessInput struct {
	Role     domain.UserRole `json:"role" validate:"required,oneof=STUDENT ADMIN SUPERADMIN"`
	Email    string          `json:"email" validate:"omitempty,email,max=254"`
	Password string          `json:"password" validate:"omitempty,min=8,max=72"`
}

// NewStaffService constructs the service.
func NewStaffService(users repository.UserRepository, bcryptCost int, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{users: users, bcryptCost: bcryptCost, validator: newValidator(), logger: logger}
}

func requireSuperAdmin(actor domain.Actor) error {
	if actor.Role != domain.RoleSuperAdmin {
		return apperrors.NewForbidden("superadmin role required")
	}
	return nil
}

// ListStaff returns every admin and superadmin.
func (s *StaffService) ListStaff(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	users, err := s.users.ListByRoles(ctx, domain.RoleAdmin, domain.RoleSuperAdmin)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// UpdateAccess changes the role of userID. Demoting to STUDENT drops the
// web credentials; a password is stored only as a bcrypt hash.
func (s *StaffService) UpdateAccess(ctx context.Context, actor domain.Actor, userID int64, input StaffAccessInput) (*domain.User, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	input.Role = domain.UserRole(strings.ToUpper(strings.TrimSpace(string(input.Role))))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if userID == actor.ID {
		return nil, apperrors.NewValidationError("cannot change own access", nil)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	user.Role = input.Role
	if !user.Role.IsStaff() {
		user.Email = nil
		user.PasswordHash = nil
	} else {
		if input.Email != "" {
			existing, err := s.users.GetByEmail(ctx, input.Email)
			switch {
			case err == nil && existing.ID != user.ID:
				return nil, apperrors.NewConflict("email already in use", map[string]any{"email": input.Email})
			case err != nil && !errors.Is(err, pgx.ErrNoRows):
				return nil, apperrors.NewInternalError(err)
			}
			user.Email = &input.Email
		}
		if input.Password != "" {
			hash, err := auth.HashPassword(input.Password, s.bcryptCost)
			if errors.Is(err, auth.ErrPasswordTooLong) {
				return nil, apperrors.NewValidationError("password too long", map[string]any{"password": "max=72"})
			}
			if err != nil {
				return nil, apperrors.NewInternalError(err)
			}
			user.PasswordHash = &hash
		}
	}

	if err := s.users.UpdateAccess(ctx, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user access updated",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Int64("by", actor.ID))
	return user, nil
}
