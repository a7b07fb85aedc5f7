package authz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longstone-am/longstone/internal/shared"
)

var testClock = shared.FixedClock{At: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)}

func TestNewUserOverrideGrant(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()

	override, err := NewUserOverride(userID, PermRunNavCalculation, ScopeOwn, true, adminID, "  covering month-end close  ", testClock)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, override.ID)
	assert.Equal(t, userID, override.UserID)
	assert.Equal(t, PermRunNavCalculation, override.Permission)
	assert.True(t, override.IsGranted)
	require.NotNil(t, override.Scope)
	assert.Equal(t, ScopeOwn, *override.Scope)
	assert.Equal(t, adminID, override.OverriddenBy)
	assert.Equal(t, testClock.At, override.OverriddenAt)
	assert.Equal(t, "covering month-end close", override.Reason)
}

func TestNewUserOverrideDenyDropsScope(t *testing.T) {
	override, err := NewUserOverride(uuid.New(), PermExecuteOrders, ScopeAll, false, uuid.New(), "trading suspension", testClock)
	require.NoError(t, err)

	assert.False(t, override.IsGranted)
	assert.Nil(t, override.Scope)
}

func TestNewUserOverrideDenyIgnoresInvalidScope(t *testing.T) {
	// Scope only qualifies a grant; a deny does not validate it.
	override, err := NewUserOverride(uuid.New(), PermExecuteOrders, Scope("bogus"), false, uuid.New(), "trading suspension", testClock)
	require.NoError(t, err)
	assert.Nil(t, override.Scope)
}

func TestNewUserOverrideValidation(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()

	cases := []struct {
		name         string
		userID       uuid.UUID
		permission   Permission
		scope        Scope
		isGranted    bool
		overriddenBy uuid.UUID
		reason       string
		field        string
	}{
		{"nil user", uuid.Nil, PermViewPortfolios, ScopeOwn, true, adminID, "x", "user_id"},
		{"nil actor", userID, PermViewPortfolios, ScopeOwn, true, uuid.Nil, "x", "overridden_by"},
		{"self override", userID, PermViewPortfolios, ScopeOwn, true, userID, "x", "overridden_by"},
		{"unknown permission", userID, Permission("orders.cancel"), ScopeOwn, true, adminID, "x", "permission"},
		{"blank reason", userID, PermViewPortfolios, ScopeOwn, true, adminID, "   ", "reason"},
		{"invalid scope on grant", userID, PermViewPortfolios, Scope("team"), true, adminID, "x", "scope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewUserOverride(tc.userID, tc.permission, tc.scope, tc.isGranted, tc.overriddenBy, tc.reason, testClock)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
