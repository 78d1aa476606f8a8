package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
)

func TestTokenRoundTripCarriesRole(t *testing.T) {
	clk := clock.NewManual(time.Now())
	tm := NewTokenManager("secret", 15, clk)

	raw, meta, err := tm.GenerateToken(&domain.User{ID: 7, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(15*time.Minute), meta.ExpiresAt)

	claims, err := tm.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, meta.ID, claims.ID)
}

func TestExpiredTokenRejected(t *testing.T) {
	clk := clock.NewManual(time.Now())
	tm := NewTokenManager("secret", 1, clk)

	raw, _, err := tm.GenerateToken(&domain.User{ID: 7, Role: domain.RoleStudent})
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = tm.ParseToken(raw)
	assert.Error(t, err)
}

func TestForeignSecretRejected(t *testing.T) {
	raw, _, err := NewTokenManager("one", 5, nil).GenerateToken(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = NewTokenManager("two", 5, nil).ParseToken(raw)
	assert.Error(t, err)
}
