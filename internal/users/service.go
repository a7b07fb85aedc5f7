package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/authz"
	"github.com/longstone-am/longstone/internal/shared"
)

// Service handles user account business logic. It is also the identity gate
// the permission engine consults on every decision.
type Service struct {
	repo  RepositoryPort
	clock shared.Clock
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, clock: clock}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUserByID returns one full user record.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUser implements authz.IdentityGate: role and active status only.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (authz.Identity, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return authz.Identity{}, err
	}
	return authz.Identity{
		ID:       user.ID,
		Role:     user.Role,
		IsActive: user.IsActive,
	}, nil
}

// CreateUser registers a new account.
func (s *Service) CreateUser(ctx context.Context, username, email, fullName string, role authz.Role, passwordHash string) (User, error) {
	user, err := NewUser(username, email, fullName, role, passwordHash, s.clock)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if active {
		user.Activate(s.clock)
	} else {
		user.Deactivate(s.clock)
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, fmt.Errorf("users: set active: %w", err)
	}
	return user, nil
}

var _ authz.IdentityGate = (*Service)(nil)
