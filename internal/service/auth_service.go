package service

import (
	"context"
	"strings"

	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/repository"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// AuthService issues API tokens for users with web credentials.
type AuthService struct {
	users    repository.UserRepository
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(users repository.UserRepository, tokenMgr *auth.TokenManager) *AuthService {
	return &AuthService{users: users, tokenMgr: tokenMgr}
}

// Login authenticates by email and password. Unknown email and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, domain.Token, error) {
	invalid := apperrors.NewUnauthorized("invalid credentials")

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperrors.ToDomainError(err).Code == apperrors.CodeNotFound {
			return nil, "", domain.Token{}, invalid
		}
		return nil, "", domain.Token{}, apperrors.NewInternalError(err)
	}
	if user.PasswordHash == nil {
		return nil, "", domain.Token{}, invalid
	}
	if !auth.CheckPassword(*user.PasswordHash, password) {
		return nil, "", domain.Token{}, invalid
	}

	token, meta, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", domain.Token{}, apperrors.NewInternalError(err)
	}
	return user, token, meta, nil
}

// RegisterChatUser records a chat user on first contact and returns the
// stored profile, including the role.
func (s *AuthService) RegisterChatUser(ctx context.Context, userID int64, displayName string) (*domain.User, error) {
	user := &domain.User{ID: userID, DisplayName: strings.TrimSpace(displayName)}
	if user.DisplayName == "" {
		user.DisplayName = "user"
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}
