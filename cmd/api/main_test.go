package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

func TestResetPassword_NormalisesEmail(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()
	users := store.NewGorm(db).Users

	u := &models.User{Email: "alice@example.com", Name: "Alice", Role: models.RoleEmployee, Enabled: true}
	require.NoError(t, u.SetPassword("original-pass"))
	require.NoError(t, users.Create(ctx, u))

	require.NoError(t, resetPassword(ctx, db, "  Alice@Example.COM ", "rotated-pass"))

	got, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, got.CheckPassword("rotated-pass"))
	assert.False(t, got.CheckPassword("original-pass"))
}

func TestResetPassword_UnknownUser(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	err = resetPassword(context.Background(), db, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
