package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "erpdir/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	in := &appctx.UserContext{
		UserID:      "u-1",
		CompanyID:   "0190a1b2-0000-7000-8000-000000000001",
		Permissions: []string{"directory:read"},
	}

	token, exp, err := svc.GenerateAccessToken(in)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, in.UserID, got.UserID)
	assert.Equal(t, in.CompanyID, got.CompanyID)
	assert.Equal(t, in.Permissions, got.Permissions)
	assert.False(t, got.IsAdmin)
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTService(DefaultJWTConfig("a")).GenerateAccessToken(&appctx.UserContext{UserID: "u", CompanyID: "c"})
	require.NoError(t, err)

	_, err = NewJWTService(DefaultJWTConfig("b")).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RequiresCompany(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token, _, err := svc.GenerateAccessToken(&appctx.UserContext{UserID: "u"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrMissingCompany)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	cfg := DefaultJWTConfig("secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)
	token, _, err := svc.GenerateAccessToken(&appctx.UserContext{UserID: "u", CompanyID: "c"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
