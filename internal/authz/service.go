package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/longstone-am/longstone/internal/shared"
)

// Decision results recorded against the permission check counter.
const (
	resultGranted      = "granted"
	resultGrantedAdmin = "granted_admin"
	resultDenied       = "denied"
)

// DecisionMetrics counts permission decisions. Implemented by
// observability.Metrics; nil-safe by omission.
type DecisionMetrics interface {
	PermissionCheck(permission, result string)
}

// Deps collects the collaborators of the permission service.
type Deps struct {
	Gate      IdentityGate
	Defaults  RoleDefaultStore
	Overrides OverrideStore
	// Snapshots is optional; when set, per-call resolution reads the role
	// default and the override as one consistent pair.
	Snapshots SnapshotReader
	Clock     shared.Clock
	// Audit is optional; override creation is recorded, evaluation never is.
	Audit   shared.AuditRecorder
	Metrics DecisionMetrics
	Logger  *slog.Logger
}

// Service is the only entry point other subsystems use for permission
// decisions. All read operations fail closed: unknown user, inactive user
// and absent policy rows are denials, never errors.
type Service struct {
	gate      IdentityGate
	defaults  RoleDefaultStore
	overrides OverrideStore
	snapshots SnapshotReader
	clock     shared.Clock
	audit     shared.AuditRecorder
	metrics   DecisionMetrics
	logger    *slog.Logger
	group     singleflight.Group
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{
		gate:      deps.Gate,
		defaults:  deps.Defaults,
		overrides: deps.Overrides,
		snapshots: deps.Snapshots,
		clock:     clock,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// HasPermission reports whether the user may exercise the permission.
// Unknown or inactive users are denied before any policy is consulted; an
// active SystemAdmin is granted before any policy is consulted and no
// override can change that.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, permission Permission) (bool, error) {
	if !permission.Valid() {
		return false, &ValidationError{Field: "permission", Reason: fmt.Sprintf("unknown permission %q", permission)}
	}

	ident, ok, err := s.activeIdentity(ctx, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.count(permission, resultDenied)
		return false, nil
	}

	if ident.Role == RoleSystemAdmin {
		s.count(permission, resultGrantedAdmin)
		return true, nil
	}

	grant, err := s.resolveOne(ctx, ident.Role, userID, permission)
	if err != nil {
		return false, err
	}

	if grant.IsGranted {
		s.count(permission, resultGranted)
	} else {
		s.count(permission, resultDenied)
	}
	s.logger.Debug("permission resolved",
		slog.String("user_id", userID.String()),
		slog.String("permission", string(permission)),
		slog.String("source", string(grant.Source)),
		slog.Bool("granted", grant.IsGranted))
	return grant.IsGranted, nil
}

// GetScope returns the breadth at which the permission is granted, or nil
// when it is not granted at all. An active SystemAdmin is always ScopeAll.
func (s *Service) GetScope(ctx context.Context, userID uuid.UUID, permission Permission) (*Scope, error) {
	if !permission.Valid() {
		return nil, &ValidationError{Field: "permission", Reason: fmt.Sprintf("unknown permission %q", permission)}
	}

	ident, ok, err := s.activeIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if ident.Role == RoleSystemAdmin {
		all := ScopeAll
		return &all, nil
	}

	grant, err := s.resolveOne(ctx, ident.Role, userID, permission)
	if err != nil {
		return nil, err
	}
	if !grant.IsGranted {
		return nil, nil
	}
	return grant.Scope, nil
}

// GetEffectivePermissions enumerates the user's full access profile: exactly
// one entry per catalog permission, never sparse. A missing user yields an
// empty list, which is distinct from an existing user denied everything.
// Concurrent calls for the same user are collapsed.
func (s *Service) GetEffectivePermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error) {
	result, err, _ := s.group.Do(userID.String(), func() (any, error) {
		return s.effectivePermissions(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]EffectivePermission), nil
}

func (s *Service) effectivePermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error) {
	ident, err := s.gate.GetUser(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return []EffectivePermission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authz: effective permissions: %w", err)
	}

	catalog := AllPermissions()
	profile := make([]EffectivePermission, 0, len(catalog))

	if !ident.IsActive {
		for _, permission := range catalog {
			profile = append(profile, EffectivePermission{
				Permission: permission,
				IsGranted:  false,
				Source:     SourceDefault,
			})
		}
		return profile, nil
	}

	if ident.Role == RoleSystemAdmin {
		all := ScopeAll
		for _, permission := range catalog {
			scope := all
			profile = append(profile, EffectivePermission{
				Permission: permission,
				Scope:      &scope,
				IsGranted:  true,
				Source:     SourceRoleDefault,
			})
		}
		return profile, nil
	}

	roleDefaults, err := s.defaults.ListByRole(ctx, ident.Role)
	if err != nil {
		return nil, fmt.Errorf("authz: list role defaults: %w", err)
	}
	overrides, err := s.overrides.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: list overrides: %w", err)
	}

	defaultsByPermission := make(map[Permission]RoleDefaultGrant, len(roleDefaults))
	for _, grant := range roleDefaults {
		defaultsByPermission[grant.Permission] = grant
	}
	overridesByPermission := make(map[Permission]UserOverride, len(overrides))
	for _, override := range overrides {
		overridesByPermission[override.Permission] = override
	}

	for _, permission := range catalog {
		var roleDefault *RoleDefaultGrant
		if grant, ok := defaultsByPermission[permission]; ok {
			roleDefault = &grant
		}
		var override *UserOverride
		if ov, ok := overridesByPermission[permission]; ok {
			override = &ov
		}

		grant, err := Resolve(permission, roleDefault, override)
		if err != nil {
			return nil, err
		}
		profile = append(profile, grant.Effective())
	}
	return profile, nil
}

// CreateOverrideInput carries the administrative request to grant or deny a
// permission for one user outside their role baseline.
type CreateOverrideInput struct {
	UserID       uuid.UUID
	Permission   Permission
	Scope        Scope
	IsGranted    bool
	OverriddenBy uuid.UUID
	Reason       string
}

// CreateOverride validates and persists an override, replacing any existing
// override for the same (user, permission) pair. The creation, not the later
// evaluation, is what lands in the audit trail.
func (s *Service) CreateOverride(ctx context.Context, input CreateOverrideInput) (UserOverride, error) {
	override, err := NewUserOverride(input.UserID, input.Permission, input.Scope, input.IsGranted, input.OverriddenBy, input.Reason, s.clock)
	if err != nil {
		return UserOverride{}, err
	}

	target, err := s.gate.GetUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return UserOverride{}, shared.ErrNotFound
		}
		return UserOverride{}, fmt.Errorf("authz: create override: %w", err)
	}
	if target.Role == RoleSystemAdmin {
		// Overrides never apply to a SystemAdmin; storing one would only
		// mislead whoever reads it back.
		return UserOverride{}, &ValidationError{Field: "user_id", Reason: "a system administrator's permissions cannot be overridden"}
	}

	if err := s.overrides.Put(ctx, override); err != nil {
		return UserOverride{}, fmt.Errorf("authz: create override: %w", err)
	}

	if s.audit != nil {
		meta := map[string]any{
			"user_id":    override.UserID.String(),
			"permission": string(override.Permission),
			"is_granted": override.IsGranted,
			"reason":     override.Reason,
		}
		if override.Scope != nil {
			meta["scope"] = string(*override.Scope)
		}
		entry := shared.AuditLog{
			ActorID:  override.OverriddenBy,
			Action:   "permission_override.created",
			Entity:   "user_permission_override",
			EntityID: override.ID.String(),
			Meta:     meta,
			At:       override.OverriddenAt,
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return UserOverride{}, fmt.Errorf("authz: record override audit: %w", err)
		}
	}

	s.logger.Info("permission override created",
		slog.String("user_id", override.UserID.String()),
		slog.String("permission", string(override.Permission)),
		slog.Bool("granted", override.IsGranted),
		slog.String("overridden_by", override.OverriddenBy.String()))
	return override, nil
}

// ListOverrides returns the live overrides for a user.
func (s *Service) ListOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	return s.overrides.ListByUser(ctx, userID)
}

// activeIdentity applies the fail-closed user gate. The second return is
// false when the user is missing or inactive.
func (s *Service) activeIdentity(ctx context.Context, userID uuid.UUID) (Identity, bool, error) {
	ident, err := s.gate.GetUser(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Debug("permission denied: user not found", slog.String("user_id", userID.String()))
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("authz: identity lookup: %w", err)
	}
	if !ident.IsActive {
		s.logger.Debug("permission denied: user inactive", slog.String("user_id", userID.String()))
		return Identity{}, false, nil
	}
	return ident, true, nil
}

func (s *Service) resolveOne(ctx context.Context, role Role, userID uuid.UUID, permission Permission) (ResolvedGrant, error) {
	roleDefault, override, err := s.resolutionPair(ctx, role, userID, permission)
	if err != nil {
		return ResolvedGrant{}, err
	}
	return Resolve(permission, roleDefault, override)
}

func (s *Service) resolutionPair(ctx context.Context, role Role, userID uuid.UUID, permission Permission) (*RoleDefaultGrant, *UserOverride, error) {
	if s.snapshots != nil {
		return s.snapshots.ResolutionPair(ctx, role, userID, permission)
	}

	var roleDefault *RoleDefaultGrant
	grant, err := s.defaults.Get(ctx, role, permission)
	switch {
	case err == nil:
		roleDefault = &grant
	case errors.Is(err, shared.ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("authz: get role default: %w", err)
	}

	var override *UserOverride
	ov, err := s.overrides.Get(ctx, userID, permission)
	switch {
	case err == nil:
		override = &ov
	case errors.Is(err, shared.ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("authz: get override: %w", err)
	}
	return roleDefault, override, nil
}

func (s *Service) count(permission Permission, result string) {
	if s.metrics != nil {
		s.metrics.PermissionCheck(string(permission), result)
	}
}
