package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

func newStaffFixture() (*StaffService, *AuthService, *memUsers) {
	users := newMemUsers(
		domain.User{ID: ann.ID, DisplayName: ann.Name, Role: ann.Role},
		domain.User{ID: bob.ID, DisplayName: bob.Name, Role: bob.Role},
		domain.User{ID: cat.ID, DisplayName: cat.Name, Role: cat.Role},
	)
	tokens := auth.NewTokenManager("secret", 30, clock.NewManual(testNow))
	return NewStaffService(users, bcrypt.MinCost, nil), NewAuthService(users, tokens), users
}

func TestPromotedUserCanLogIn(t *testing.T) {
	staff, authSvc, _ := newStaffFixture()
	ctx := context.Background()

	user, err := staff.UpdateAccess(ctx, cat, ann.ID, StaffAccessInput{Role: "admin", Email: " Ann@Uni.edu ", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	require.NotNil(t, user.Email)
	assert.Equal(t, "ann@uni.edu", *user.Email)
	require.NotNil(t, user.PasswordHash)
	assert.NotEqual(t, "s3cret-pass", *user.PasswordHash)

	loggedIn, token, meta, err := authSvc.Login(ctx, "ann@uni.edu", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, loggedIn.ID)
	assert.NotEmpty(t, token)
	assert.Equal(t, ann.ID, meta.UserID)

	_, _, _, err = authSvc.Login(ctx, "ann@uni.edu", "wrong-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, _, _, err = authSvc.Login(ctx, "nobody@uni.edu", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestDemotionDropsCredentials(t *testing.T) {
	staff, authSvc, users := newStaffFixture()
	ctx := context.Background()

	_, err := staff.UpdateAccess(ctx, cat, bob.ID, StaffAccessInput{Role: domain.RoleAdmin, Email: "bob@uni.edu", Password: "password1"})
	require.NoError(t, err)

	user, err := staff.UpdateAccess(ctx, cat, bob.ID, StaffAccessInput{Role: domain.RoleStudent})
	require.NoError(t, err)
	assert.Nil(t, user.Email)
	assert.Nil(t, user.PasswordHash)

	stored, err := users.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, stored.Role)

	_, _, _, err = authSvc.Login(ctx, "bob@uni.edu", "password1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestOnlySuperAdminManagesAccess(t *testing.T) {
	staff, _, _ := newStaffFixture()

	_, err := staff.UpdateAccess(context.Background(), bob, ann.ID, StaffAccessInput{Role: domain.RoleAdmin})

	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestUpdateAccessValidation(t *testing.T) {
	staff, _, _ := newStaffFixture()
	ctx := context.Background()

	_, err := staff.UpdateAccess(ctx, cat, ann.ID, StaffAccessInput{Role: "OWNER"})
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Equal(t, "oneof=STUDENT ADMIN SUPERADMIN", apperrors.ToDomainError(err).Details["role"])

	_, err = staff.UpdateAccess(ctx, cat, ann.ID, StaffAccessInput{Role: domain.RoleAdmin, Password: "short"})
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Equal(t, "min=8", apperrors.ToDomainError(err).Details["password"])

	_, err = staff.UpdateAccess(ctx, cat, cat.ID, StaffAccessInput{Role: domain.RoleStudent})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = staff.UpdateAccess(ctx, cat, 99, StaffAccessInput{Role: domain.RoleAdmin})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestDuplicateStaffEmailRejected(t *testing.T) {
	staff, _, _ := newStaffFixture()
	ctx := context.Background()

	_, err := staff.UpdateAccess(ctx, cat, bob.ID, StaffAccessInput{Role: domain.RoleAdmin, Email: "desk@uni.edu"})
	require.NoError(t, err)

	_, err = staff.UpdateAccess(ctx, cat, ann.ID, StaffAccessInput{Role: domain.RoleAdmin, Email: "desk@uni.edu"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestListStaff(t *testing.T) {
	staff, _, _ := newStaffFixture()

	users, err := staff.ListStaff(context.Background(), bob)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = staff.ListStaff(context.Background(), ann)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}
