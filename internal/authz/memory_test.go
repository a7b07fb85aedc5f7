package authz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longstone-am/longstone/internal/shared"
)

func TestMemoryStoreRoleDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, RoleDealer, PermExecuteOrders)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	grant, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeAll)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, grant))

	got, err := store.Get(ctx, RoleDealer, PermExecuteOrders)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, got.ID)

	// Same key, different scope: the later write wins.
	replacement, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeOwn)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, replacement))

	got, err = store.Get(ctx, RoleDealer, PermExecuteOrders)
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, got.Scope)

	listed, err := store.ListByRole(ctx, RoleDealer)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestMemoryStoreListByRoleOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, permission := range []Permission{PermViewRiskDashboards, PermExecuteOrders, PermViewPortfolios} {
		grant, err := NewRoleDefaultGrant(RoleDealer, permission, ScopeAll)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, grant))
	}

	listed, err := store.ListByRole(ctx, RoleDealer)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i := 1; i < len(listed); i++ {
		assert.LessOrEqual(t, listed[i-1].Permission, listed[i].Permission)
	}
}

func TestMemoryStoreOverrides(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()
	clock := shared.FixedClock{At: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)}

	_, err := store.GetOverride(ctx, userID, PermExecuteOrders)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	first, err := NewUserOverride(userID, PermExecuteOrders, ScopeAll, true, uuid.New(), "cover", clock)
	require.NoError(t, err)
	require.NoError(t, store.PutOverride(ctx, first))

	second, err := NewUserOverride(userID, PermExecuteOrders, ScopeAll, false, uuid.New(), "cover withdrawn", clock)
	require.NoError(t, err)
	require.NoError(t, store.PutOverride(ctx, second))

	overrides, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, second.ID, overrides[0].ID)
	assert.False(t, overrides[0].IsGranted)
}

func TestMemoryStoreResolutionPair(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()
	clock := shared.FixedClock{At: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)}

	roleDefault, override, err := store.ResolutionPair(ctx, RoleDealer, userID, PermExecuteOrders)
	require.NoError(t, err)
	assert.Nil(t, roleDefault)
	assert.Nil(t, override)

	grant, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeAll)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, grant))
	ov, err := NewUserOverride(userID, PermExecuteOrders, ScopeAll, false, uuid.New(), "suspended", clock)
	require.NoError(t, err)
	require.NoError(t, store.PutOverride(ctx, ov))

	roleDefault, override, err = store.ResolutionPair(ctx, RoleDealer, userID, PermExecuteOrders)
	require.NoError(t, err)
	require.NotNil(t, roleDefault)
	require.NotNil(t, override)
	assert.Equal(t, grant.ID, roleDefault.ID)
	assert.Equal(t, ov.ID, override.ID)
}

func TestSeedRoleDefaultsBaseline(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, SeedRoleDefaults(ctx, store.RoleDefaults()))

	manager, err := store.Get(ctx, RoleFundManager, PermViewPortfolios)
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, manager.Scope)

	dealer, err := store.Get(ctx, RoleDealer, PermExecuteOrders)
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, dealer.Scope)

	_, err = store.Get(ctx, RoleReadOnly, PermCreateOrders)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	admin, err := store.ListByRole(ctx, RoleSystemAdmin)
	require.NoError(t, err)
	assert.Len(t, admin, 11)

	// Reseeding must not duplicate rows.
	require.NoError(t, SeedRoleDefaults(ctx, store.RoleDefaults()))
	reseeded, err := store.ListByRole(ctx, RoleSystemAdmin)
	require.NoError(t, err)
	assert.Len(t, reseeded, 11)
}
