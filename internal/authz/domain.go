// Package authz implements the permission resolution engine: role-based
// default grants composed with per-user overrides and a superuser bypass.
package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission identifies one capability from the closed catalog.
type Permission string

// The permission catalog. Fixed at compile time; every resolution and every
// effective-permission listing enumerates exactly this set.
const (
	PermViewPortfolios           Permission = "portfolios.view"
	PermCreateOrders             Permission = "orders.create"
	PermExecuteOrders            Permission = "orders.execute"
	PermConfigureCompliance      Permission = "compliance.configure"
	PermOverrideComplianceBreach Permission = "compliance.override_breach"
	PermProcessCorporateActions  Permission = "corporate_actions.process"
	PermRunNavCalculation        Permission = "nav.run"
	PermViewRiskDashboards       Permission = "risk.view"
	PermManageFunds              Permission = "funds.manage"
	PermManageUsers              Permission = "users.manage"
	PermViewAuditLogs            Permission = "audit.view"
)

var permissionCatalog = []Permission{
	PermViewPortfolios,
	PermCreateOrders,
	PermExecuteOrders,
	PermConfigureCompliance,
	PermOverrideComplianceBreach,
	PermProcessCorporateActions,
	PermRunNavCalculation,
	PermViewRiskDashboards,
	PermManageFunds,
	PermManageUsers,
	PermViewAuditLogs,
}

// AllPermissions returns the ordered permission catalog.
func AllPermissions() []Permission {
	catalog := make([]Permission, len(permissionCatalog))
	copy(catalog, permissionCatalog)
	return catalog
}

// Valid reports whether the permission belongs to the catalog.
func (p Permission) Valid() bool {
	for _, known := range permissionCatalog {
		if p == known {
			return true
		}
	}
	return false
}

// Description returns a short human-readable summary for catalog listings.
func (p Permission) Description() string {
	switch p {
	case PermViewPortfolios:
		return "View fund portfolios and holdings"
	case PermCreateOrders:
		return "Create trade orders"
	case PermExecuteOrders:
		return "Execute trade orders"
	case PermConfigureCompliance:
		return "Configure compliance mandate rules"
	case PermOverrideComplianceBreach:
		return "Override a compliance breach"
	case PermProcessCorporateActions:
		return "Process corporate actions"
	case PermRunNavCalculation:
		return "Run NAV calculations"
	case PermViewRiskDashboards:
		return "View risk dashboards"
	case PermManageFunds:
		return "Create and administer funds"
	case PermManageUsers:
		return "Administer user accounts and permissions"
	case PermViewAuditLogs:
		return "View audit logs"
	default:
		return ""
	}
}

// ParsePermission validates a raw permission name.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(raw)
	if !p.Valid() {
		return "", &ValidationError{Field: "permission", Reason: fmt.Sprintf("unknown permission %q", raw)}
	}
	return p, nil
}

// Scope is the breadth of access for a granted permission. All is strictly
// broader than Own; there is no further ordering.
type Scope string

const (
	// ScopeOwn restricts access to resources the actor owns or manages.
	ScopeOwn Scope = "own"
	// ScopeAll grants unrestricted access.
	ScopeAll Scope = "all"
)

// Valid reports whether the scope is one of the two known values.
func (s Scope) Valid() bool {
	return s == ScopeOwn || s == ScopeAll
}

// ParseScope validates a raw scope name.
func ParseScope(raw string) (Scope, error) {
	s := Scope(raw)
	if !s.Valid() {
		return "", &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", raw)}
	}
	return s, nil
}

// Role is a closed set of actor categories. RoleSystemAdmin bypasses
// resolution entirely.
type Role string

const (
	RoleSystemAdmin       Role = "system_admin"
	RoleFundManager       Role = "fund_manager"
	RoleDealer            Role = "dealer"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleOperations        Role = "operations"
	RoleRiskManager       Role = "risk_manager"
	RoleReadOnly          Role = "read_only"
)

var roleCatalog = []Role{
	RoleSystemAdmin,
	RoleFundManager,
	RoleDealer,
	RoleComplianceOfficer,
	RoleOperations,
	RoleRiskManager,
	RoleReadOnly,
}

// AllRoles returns every known role.
func AllRoles() []Role {
	roles := make([]Role, len(roleCatalog))
	copy(roles, roleCatalog)
	return roles
}

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	for _, known := range roleCatalog {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole validates a raw role name.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", raw)}
	}
	return r, nil
}

// GrantSource records which layer produced a resolved grant.
type GrantSource string

const (
	// SourceRoleDefault means the role baseline produced the grant.
	SourceRoleDefault GrantSource = "role_default"
	// SourceUserOverride means an explicit per-user override produced it.
	SourceUserOverride GrantSource = "user_override"
	// SourceDefault means neither layer had an entry; always a deny.
	SourceDefault GrantSource = "default"
)

// RoleDefaultGrant is the baseline policy entry for one (role, permission)
// pair. Absence of an entry is the deny signal; an entry always grants.
type RoleDefaultGrant struct {
	ID         uuid.UUID
	Role       Role
	Permission Permission
	Scope      Scope
}

// NewRoleDefaultGrant constructs a validated role default.
func NewRoleDefaultGrant(role Role, permission Permission, scope Scope) (RoleDefaultGrant, error) {
	if !role.Valid() {
		return RoleDefaultGrant{}, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if !permission.Valid() {
		return RoleDefaultGrant{}, &ValidationError{Field: "permission", Reason: fmt.Sprintf("unknown permission %q", permission)}
	}
	if !scope.Valid() {
		return RoleDefaultGrant{}, &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", scope)}
	}
	return RoleDefaultGrant{
		ID:         uuid.New(),
		Role:       role,
		Permission: permission,
		Scope:      scope,
	}, nil
}

// UserOverride is a per-user exception over the role baseline for one
// permission. A deny carries no scope. At most one override exists per
// (user, permission) pair; replacement supersedes, nothing accumulates.
type UserOverride struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Permission   Permission
	Scope        *Scope
	IsGranted    bool
	OverriddenBy uuid.UUID
	OverriddenAt time.Time
	Reason       string
}

// ResolvedGrant is the outcome of resolving one permission for one user.
// Never persisted.
type ResolvedGrant struct {
	Permission Permission
	Scope      *Scope
	IsGranted  bool
	Source     GrantSource
}

// EffectivePermission is the externally visible form of a resolved grant,
// used when enumerating a user's full access profile.
type EffectivePermission struct {
	Permission Permission  `json:"permission"`
	Scope      *Scope      `json:"scope,omitempty"`
	IsGranted  bool        `json:"is_granted"`
	Source     GrantSource `json:"source"`
}

// ErrGrantMismatch reports a role default or override fed into Resolve for a
// different permission than requested. This is a data-integrity fault in the
// caller, never a business outcome, so resolution fails instead of denying.
var ErrGrantMismatch = errors.New("authz: grant record does not match requested permission")

// Resolve combines an optional role default and an optional user override
// into the final decision for one permission. Precedence: an explicit
// override, grant or deny, always wins; otherwise the role default grants;
// otherwise deny. Pure and safe for concurrent use.
func Resolve(permission Permission, roleDefault *RoleDefaultGrant, override *UserOverride) (ResolvedGrant, error) {
	if roleDefault != nil && roleDefault.Permission != permission {
		return ResolvedGrant{}, fmt.Errorf("%w: role default is for %s, expected %s", ErrGrantMismatch, roleDefault.Permission, permission)
	}
	if override != nil && override.Permission != permission {
		return ResolvedGrant{}, fmt.Errorf("%w: override is for %s, expected %s", ErrGrantMismatch, override.Permission, permission)
	}

	if override != nil {
		var scope *Scope
		if override.IsGranted && override.Scope != nil {
			s := *override.Scope
			scope = &s
		}
		return ResolvedGrant{
			Permission: permission,
			Scope:      scope,
			IsGranted:  override.IsGranted,
			Source:     SourceUserOverride,
		}, nil
	}

	if roleDefault != nil {
		s := roleDefault.Scope
		return ResolvedGrant{
			Permission: permission,
			Scope:      &s,
			IsGranted:  true,
			Source:     SourceRoleDefault,
		}, nil
	}

	return ResolvedGrant{
		Permission: permission,
		IsGranted:  false,
		Source:     SourceDefault,
	}, nil
}

// Effective converts a resolved grant into its external form.
func (g ResolvedGrant) Effective() EffectivePermission {
	return EffectivePermission{
		Permission: g.Permission,
		Scope:      g.Scope,
		IsGranted:  g.IsGranted,
		Source:     g.Source,
	}
}
