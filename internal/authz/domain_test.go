package authz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopePtr(s Scope) *Scope { return &s }

func grantOverride(userID uuid.UUID, permission Permission, scope Scope) *UserOverride {
	return &UserOverride{
		ID:           uuid.New(),
		UserID:       userID,
		Permission:   permission,
		Scope:        scopePtr(scope),
		IsGranted:    true,
		OverriddenBy: uuid.New(),
		OverriddenAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Reason:       "covering a colleague",
	}
}

func denyOverride(userID uuid.UUID, permission Permission) *UserOverride {
	return &UserOverride{
		ID:           uuid.New(),
		UserID:       userID,
		Permission:   permission,
		IsGranted:    false,
		OverriddenBy: uuid.New(),
		OverriddenAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Reason:       "under investigation",
	}
}

func TestPermissionCatalog(t *testing.T) {
	catalog := AllPermissions()
	require.Len(t, catalog, 11)

	seen := make(map[Permission]bool, len(catalog))
	for _, p := range catalog {
		assert.True(t, p.Valid(), "catalog entry %q must be valid", p)
		assert.NotEmpty(t, p.Description(), "catalog entry %q must carry a description", p)
		assert.False(t, seen[p], "catalog entry %q duplicated", p)
		seen[p] = true
	}

	// Returned slice is a copy; mutating it must not poison the catalog.
	catalog[0] = Permission("tampered")
	assert.Equal(t, PermViewPortfolios, AllPermissions()[0])
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("orders.execute")
	require.NoError(t, err)
	assert.Equal(t, PermExecuteOrders, p)

	_, err = ParsePermission("orders.cancel")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "permission", verr.Field)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("own")
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, s)

	s, err = ParseScope("all")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, s)

	_, err = ParseScope("team")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scope", verr.Field)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("compliance_officer")
	require.NoError(t, err)
	assert.Equal(t, RoleComplianceOfficer, r)

	_, err = ParseRole("auditor")
	assert.Error(t, err)

	require.Len(t, AllRoles(), 7)
}

func TestResolveDefaultDeny(t *testing.T) {
	grant, err := Resolve(PermExecuteOrders, nil, nil)
	require.NoError(t, err)

	assert.False(t, grant.IsGranted)
	assert.Equal(t, SourceDefault, grant.Source)
	assert.Nil(t, grant.Scope)
	assert.Equal(t, PermExecuteOrders, grant.Permission)
}

func TestResolveRoleDefault(t *testing.T) {
	roleDefault, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeAll)
	require.NoError(t, err)

	grant, err := Resolve(PermExecuteOrders, &roleDefault, nil)
	require.NoError(t, err)

	assert.True(t, grant.IsGranted)
	assert.Equal(t, SourceRoleDefault, grant.Source)
	require.NotNil(t, grant.Scope)
	assert.Equal(t, ScopeAll, *grant.Scope)
}

func TestResolveOverrideGrantBeatsAbsentDefault(t *testing.T) {
	userID := uuid.New()
	grant, err := Resolve(PermRunNavCalculation, nil, grantOverride(userID, PermRunNavCalculation, ScopeOwn))
	require.NoError(t, err)

	assert.True(t, grant.IsGranted)
	assert.Equal(t, SourceUserOverride, grant.Source)
	require.NotNil(t, grant.Scope)
	assert.Equal(t, ScopeOwn, *grant.Scope)
}

func TestResolveOverrideDenyBeatsRoleDefault(t *testing.T) {
	roleDefault, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeAll)
	require.NoError(t, err)

	grant, err := Resolve(PermExecuteOrders, &roleDefault, denyOverride(uuid.New(), PermExecuteOrders))
	require.NoError(t, err)

	assert.False(t, grant.IsGranted)
	assert.Equal(t, SourceUserOverride, grant.Source)
	assert.Nil(t, grant.Scope, "a deny never carries a scope")
}

func TestResolveOverrideNarrowsScope(t *testing.T) {
	roleDefault, err := NewRoleDefaultGrant(RoleDealer, PermViewPortfolios, ScopeAll)
	require.NoError(t, err)

	grant, err := Resolve(PermViewPortfolios, &roleDefault, grantOverride(uuid.New(), PermViewPortfolios, ScopeOwn))
	require.NoError(t, err)

	assert.True(t, grant.IsGranted)
	assert.Equal(t, SourceUserOverride, grant.Source)
	require.NotNil(t, grant.Scope)
	assert.Equal(t, ScopeOwn, *grant.Scope, "override scope replaces the default, never merges")
}

func TestResolveMismatchedRecords(t *testing.T) {
	roleDefault, err := NewRoleDefaultGrant(RoleDealer, PermExecuteOrders, ScopeAll)
	require.NoError(t, err)

	_, err = Resolve(PermViewPortfolios, &roleDefault, nil)
	assert.ErrorIs(t, err, ErrGrantMismatch)

	_, err = Resolve(PermViewPortfolios, nil, denyOverride(uuid.New(), PermExecuteOrders))
	assert.ErrorIs(t, err, ErrGrantMismatch)
}

func TestResolveScopeIsCopied(t *testing.T) {
	userID := uuid.New()
	override := grantOverride(userID, PermViewPortfolios, ScopeOwn)

	grant, err := Resolve(PermViewPortfolios, nil, override)
	require.NoError(t, err)
	require.NotNil(t, grant.Scope)

	*override.Scope = ScopeAll
	assert.Equal(t, ScopeOwn, *grant.Scope, "resolved scope must not alias the override record")
}

func TestNewRoleDefaultGrantValidation(t *testing.T) {
	_, err := NewRoleDefaultGrant(Role("intern"), PermViewPortfolios, ScopeAll)
	assert.Error(t, err)

	_, err = NewRoleDefaultGrant(RoleDealer, Permission("orders.cancel"), ScopeAll)
	assert.Error(t, err)

	_, err = NewRoleDefaultGrant(RoleDealer, PermViewPortfolios, Scope("team"))
	assert.Error(t, err)

	grant, err := NewRoleDefaultGrant(RoleDealer, PermViewPortfolios, ScopeAll)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, grant.ID)
}

func TestEffectiveView(t *testing.T) {
	roleDefault, err := NewRoleDefaultGrant(RoleOperations, PermRunNavCalculation, ScopeAll)
	require.NoError(t, err)

	grant, err := Resolve(PermRunNavCalculation, &roleDefault, nil)
	require.NoError(t, err)

	view := grant.Effective()
	assert.Equal(t, PermRunNavCalculation, view.Permission)
	assert.True(t, view.IsGranted)
	assert.Equal(t, SourceRoleDefault, view.Source)
	require.NotNil(t, view.Scope)
	assert.Equal(t, ScopeAll, *view.Scope)
}
