package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/authz"
	"github.com/longstone-am/longstone/internal/shared"
)

// User represents an administrative user account.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	FullName     string
	Role         authz.Role
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser constructs an active user account.
func NewUser(username, email, fullName string, role authz.Role, passwordHash string, clock shared.Clock) (User, error) {
	if strings.TrimSpace(username) == "" {
		return User{}, fmt.Errorf("users: username required")
	}
	if strings.TrimSpace(email) == "" {
		return User{}, fmt.Errorf("users: email required")
	}
	if strings.TrimSpace(fullName) == "" {
		return User{}, fmt.Errorf("users: full name required")
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("users: unknown role %q", role)
	}
	if passwordHash == "" {
		return User{}, fmt.Errorf("users: password hash required")
	}

	now := clock.Now()
	return User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		IsActive:     true,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Deactivate marks the account inactive. Every permission check fails closed
// for an inactive account, whatever overrides exist.
func (u *User) Deactivate(clock shared.Clock) {
	u.IsActive = false
	u.UpdatedAt = clock.Now()
}

// Activate marks the account active again.
func (u *User) Activate(clock shared.Clock) {
	u.IsActive = true
	u.UpdatedAt = clock.Now()
}
