package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

var (
	// ErrUserNotFound indicates no account matches the lookup.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
)

// UserServiceDeps bundles constructor inputs for the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	logger func(context.Context, string, map[string]any)
}

// NewUserService constructs the user service.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{users: deps.Users, logger: logger}, nil
}

// PromoteToAdmin grants the ADMIN role to the account registered under email. Promoting an
// existing administrator is a no-op.
func (s *userService) PromoteToAdmin(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return User{}, mapUserError(err, email)
	}
	if user.Role == domain.UserRoleAdmin {
		return user, nil
	}
	updated, err := s.users.UpdateRole(ctx, user.ID, domain.UserRoleAdmin)
	if err != nil {
		return User{}, mapUserError(err, email)
	}
	s.logger(ctx, "user.promoted", map[string]any{"userId": updated.ID, "role": string(updated.Role)})
	return updated, nil
}

func mapUserError(err error, email string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: user with email %q", ErrUserNotFound, email)
	}
	return err
}
