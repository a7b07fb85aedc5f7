package authz

import (
	"context"
	"fmt"
)

type seedEntry struct {
	role       Role
	permission Permission
	scope      Scope
}

func baselinePolicy() []seedEntry {
	entries := []seedEntry{
		{RoleFundManager, PermViewPortfolios, ScopeOwn},
		{RoleFundManager, PermManageFunds, ScopeOwn},
		{RoleFundManager, PermCreateOrders, ScopeOwn},
		{RoleFundManager, PermViewRiskDashboards, ScopeOwn},

		{RoleDealer, PermViewPortfolios, ScopeAll},
		{RoleDealer, PermExecuteOrders, ScopeAll},
		{RoleDealer, PermViewRiskDashboards, ScopeAll},

		{RoleComplianceOfficer, PermViewPortfolios, ScopeAll},
		{RoleComplianceOfficer, PermConfigureCompliance, ScopeAll},
		{RoleComplianceOfficer, PermOverrideComplianceBreach, ScopeAll},
		{RoleComplianceOfficer, PermViewRiskDashboards, ScopeAll},
		{RoleComplianceOfficer, PermViewAuditLogs, ScopeAll},

		{RoleOperations, PermViewPortfolios, ScopeAll},
		{RoleOperations, PermProcessCorporateActions, ScopeAll},
		{RoleOperations, PermRunNavCalculation, ScopeAll},
		{RoleOperations, PermViewAuditLogs, ScopeAll},

		{RoleRiskManager, PermViewPortfolios, ScopeAll},
		{RoleRiskManager, PermViewRiskDashboards, ScopeAll},
		{RoleRiskManager, PermViewAuditLogs, ScopeAll},

		{RoleReadOnly, PermViewPortfolios, ScopeAll},
	}

	// SystemAdmin bypasses resolution, but the baseline still carries the
	// full grant set so reporting over the raw policy matches reality.
	for _, permission := range AllPermissions() {
		entries = append(entries, seedEntry{RoleSystemAdmin, permission, ScopeAll})
	}
	return entries
}

// SeedRoleDefaults writes the baseline policy into the store. Existing rows
// for the same (role, permission) pair are replaced, so reseeding is safe.
func SeedRoleDefaults(ctx context.Context, store RoleDefaultStore) error {
	for _, entry := range baselinePolicy() {
		grant, err := NewRoleDefaultGrant(entry.role, entry.permission, entry.scope)
		if err != nil {
			return fmt.Errorf("authz: seed role defaults: %w", err)
		}
		if err := store.Put(ctx, grant); err != nil {
			return fmt.Errorf("authz: seed role defaults: %w", err)
		}
	}
	return nil
}
