package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/repositories/memory"
)

func TestPromoteToAdmin(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.User{ID: "user_1", Username: "ada", Email: "ada@example.com", Role: domain.UserRoleUser})

	svc, err := NewUserService(UserServiceDeps{Users: store.Users()})
	require.NoError(t, err)

	user, err := svc.PromoteToAdmin(context.Background(), " Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, user.Role)

	stored, err := store.Users().FindByID(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, stored.Role)

	again, err := svc.PromoteToAdmin(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, again.Role)
}

func TestPromoteToAdminUnknownEmail(t *testing.T) {
	svc, err := NewUserService(UserServiceDeps{Users: memory.NewStore().Users()})
	require.NoError(t, err)

	_, err = svc.PromoteToAdmin(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.PromoteToAdmin(context.Background(), "")
	assert.ErrorIs(t, err, ErrUserInvalidInput)
}
