package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/models"
)

func newTestAuthService(t *testing.T, f *engineFixture) *AuthService {
	t.Helper()
	svc := NewAuthService(f.repos.Users, f.ledger, f.blocks, f.detector, config.SecurityConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
	svc.SetClock(f.clock.Now)
	return svc
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	f := newEngineFixture(t)
	svc := newTestAuthService(t, f)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Test@Example.com", "password123", "Test User", models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", u.Email)
	assert.NotEqual(t, "password123", u.PasswordHash)

	token, got, err := svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "password123", IPAddress: "203.0.113.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, u.UUID, got.UUID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.UUID, claims.Subject)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestAuthService_RegisterRejectsUnknownRole(t *testing.T) {
	f := newEngineFixture(t)
	svc := newTestAuthService(t, f)

	_, err := svc.Register(context.Background(), "x@example.com", "pw", "X", "root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAuthService_InvalidCredentialsAreRecorded(t *testing.T) {
	f := newEngineFixture(t)
	svc := newTestAuthService(t, f)
	ctx := context.Background()

	_, err := svc.Register(ctx, "test@example.com", "password123", "Test", models.RoleEmployee)
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "wrong", IPAddress: "203.0.113.1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, token)

	_, _, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "x", IPAddress: "203.0.113.1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events := f.events(t)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, models.EventFailedAuthentication, e.Type)
	}
}

func TestAuthService_RepeatedFailuresBlockSource(t *testing.T) {
	f := newEngineFixture(t)
	svc := newTestAuthService(t, f)
	ctx := context.Background()

	_, err := svc.Register(ctx, "test@example.com", "password123", "Test", models.RoleEmployee)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "wrong", IPAddress: "198.51.100.9"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Correct password from the blocked address is refused.
	_, _, err = svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "password123", IPAddress: "198.51.100.9"})
	assert.ErrorIs(t, err, ErrIPBlocked)

	// Other addresses are unaffected.
	_, _, err = svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "password123", IPAddress: "198.51.100.10"})
	assert.NoError(t, err)
}

func TestAuthService_ValidateToken(t *testing.T) {
	f := newEngineFixture(t)
	svc := newTestAuthService(t, f)

	u := &models.User{UUID: "abc", Role: models.RoleEmployee}
	token, err := svc.GenerateToken(u)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService(f.repos.Users, f.ledger, f.blocks, nil, config.SecurityConfig{JWTSecret: "other"})
	other.SetClock(f.clock.Now)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.clock.Advance(2 * time.Hour)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
