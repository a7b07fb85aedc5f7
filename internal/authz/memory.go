package authz

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/shared"
)

type roleDefaultKey struct {
	role       Role
	permission Permission
}

type overrideKey struct {
	userID     uuid.UUID
	permission Permission
}

// MemoryStore is a mutex-guarded in-memory implementation of both stores and
// the snapshot reader. Used by tests and seed tooling. Map keys give the
// same at-most-one-per-pair guarantee the database enforces with unique
// indexes.
type MemoryStore struct {
	mu        sync.RWMutex
	defaults  map[roleDefaultKey]RoleDefaultGrant
	overrides map[overrideKey]UserOverride
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defaults:  make(map[roleDefaultKey]RoleDefaultGrant),
		overrides: make(map[overrideKey]UserOverride),
	}
}

// Get fetches the role default for one (role, permission) pair.
func (m *MemoryStore) Get(ctx context.Context, role Role, permission Permission) (RoleDefaultGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grant, ok := m.defaults[roleDefaultKey{role, permission}]
	if !ok {
		return RoleDefaultGrant{}, shared.ErrNotFound
	}
	return grant, nil
}

// ListByRole returns every baseline grant for a role, ordered by permission.
func (m *MemoryStore) ListByRole(ctx context.Context, role Role) ([]RoleDefaultGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var grants []RoleDefaultGrant
	for key, grant := range m.defaults {
		if key.role == role {
			grants = append(grants, grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Permission < grants[j].Permission })
	return grants, nil
}

// Put inserts or replaces a baseline grant.
func (m *MemoryStore) Put(ctx context.Context, grant RoleDefaultGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[roleDefaultKey{grant.Role, grant.Permission}] = grant
	return nil
}

// GetOverride fetches the override for one (user, permission) pair.
func (m *MemoryStore) GetOverride(ctx context.Context, userID uuid.UUID, permission Permission) (UserOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	override, ok := m.overrides[overrideKey{userID, permission}]
	if !ok {
		return UserOverride{}, shared.ErrNotFound
	}
	return override, nil
}

// ListByUser returns every live override for a user, ordered by permission.
func (m *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var overrides []UserOverride
	for key, override := range m.overrides {
		if key.userID == userID {
			overrides = append(overrides, override)
		}
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].Permission < overrides[j].Permission })
	return overrides, nil
}

// PutOverride inserts or replaces an override on its key.
func (m *MemoryStore) PutOverride(ctx context.Context, override UserOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey{override.UserID, override.Permission}] = override
	return nil
}

// ResolutionPair reads both records under one lock acquisition.
func (m *MemoryStore) ResolutionPair(ctx context.Context, role Role, userID uuid.UUID, permission Permission) (*RoleDefaultGrant, *UserOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roleDefault *RoleDefaultGrant
	if grant, ok := m.defaults[roleDefaultKey{role, permission}]; ok {
		roleDefault = &grant
	}
	var override *UserOverride
	if ov, ok := m.overrides[overrideKey{userID, permission}]; ok {
		override = &ov
	}
	return roleDefault, override, nil
}

// RoleDefaults adapts the MemoryStore to the RoleDefaultStore port.
func (m *MemoryStore) RoleDefaults() RoleDefaultStore {
	return memRoleDefaults{m}
}

// Overrides adapts the MemoryStore to the OverrideStore port.
func (m *MemoryStore) Overrides() OverrideStore {
	return memOverrides{m}
}

type memRoleDefaults struct{ *MemoryStore }

type memOverrides struct{ *MemoryStore }

func (m memOverrides) Get(ctx context.Context, userID uuid.UUID, permission Permission) (UserOverride, error) {
	return m.GetOverride(ctx, userID, permission)
}

func (m memOverrides) Put(ctx context.Context, override UserOverride) error {
	return m.PutOverride(ctx, override)
}

var (
	_ RoleDefaultStore = memRoleDefaults{}
	_ OverrideStore    = memOverrides{}
	_ SnapshotReader   = (*MemoryStore)(nil)
)
