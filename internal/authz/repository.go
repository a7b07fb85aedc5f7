package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longstone-am/longstone/internal/platform/db"
	"github.com/longstone-am/longstone/internal/shared"
)

// Identity is what the engine needs to know about a user: who they are,
// which role baseline applies, and whether they may act at all.
type Identity struct {
	ID       uuid.UUID
	Role     Role
	IsActive bool
}

// IdentityGate supplies user identity. Owned externally; missing users
// surface as shared.ErrNotFound.
type IdentityGate interface {
	GetUser(ctx context.Context, userID uuid.UUID) (Identity, error)
}

// RoleDefaultStore persists the baseline policy, at most one grant per
// (role, permission) pair.
type RoleDefaultStore interface {
	Get(ctx context.Context, role Role, permission Permission) (RoleDefaultGrant, error)
	ListByRole(ctx context.Context, role Role) ([]RoleDefaultGrant, error)
	Put(ctx context.Context, grant RoleDefaultGrant) error
}

// OverrideStore persists per-user overrides, at most one per
// (user, permission) pair. Put replaces any existing override for the key.
type OverrideStore interface {
	Get(ctx context.Context, userID uuid.UUID, permission Permission) (UserOverride, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]UserOverride, error)
	Put(ctx context.Context, override UserOverride) error
}

// SnapshotReader reads the role default and the user override for one
// permission as a consistent pair. Stores that cannot offer snapshot
// semantics simply do not implement it and the service falls back to two
// sequential reads.
type SnapshotReader interface {
	ResolutionPair(ctx context.Context, role Role, userID uuid.UUID, permission Permission) (*RoleDefaultGrant, *UserOverride, error)
}

// PGStore implements the role default and override stores over PostgreSQL.
// Composite unique keys on (role, permission) and (user_id, permission)
// enforce the uniqueness invariants structurally; replacement is an upsert
// on the key so concurrent administrative writes serialize in the database.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const roleDefaultColumns = `id, role, permission, scope`

func scanRoleDefault(row pgx.Row) (RoleDefaultGrant, error) {
	var grant RoleDefaultGrant
	if err := row.Scan(&grant.ID, &grant.Role, &grant.Permission, &grant.Scope); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleDefaultGrant{}, shared.ErrNotFound
		}
		return RoleDefaultGrant{}, err
	}
	return grant, nil
}

func getRoleDefault(ctx context.Context, q rowQuerier, role Role, permission Permission) (RoleDefaultGrant, error) {
	row := q.QueryRow(ctx,
		`SELECT `+roleDefaultColumns+` FROM role_default_grants WHERE role = $1 AND permission = $2`,
		role, permission)
	return scanRoleDefault(row)
}

// Get fetches the role default for one (role, permission) pair.
func (s *PGStore) Get(ctx context.Context, role Role, permission Permission) (RoleDefaultGrant, error) {
	return getRoleDefault(ctx, s.pool, role, permission)
}

// ListByRole returns every baseline grant for a role.
func (s *PGStore) ListByRole(ctx context.Context, role Role) ([]RoleDefaultGrant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roleDefaultColumns+` FROM role_default_grants WHERE role = $1 ORDER BY permission`,
		role)
	if err != nil {
		return nil, fmt.Errorf("authz: list role defaults: %w", err)
	}
	defer rows.Close()

	var grants []RoleDefaultGrant
	for rows.Next() {
		var grant RoleDefaultGrant
		if err := rows.Scan(&grant.ID, &grant.Role, &grant.Permission, &grant.Scope); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// Put inserts or replaces the scope of a baseline grant.
func (s *PGStore) Put(ctx context.Context, grant RoleDefaultGrant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO role_default_grants (id, role, permission, scope)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (role, permission) DO UPDATE SET scope = EXCLUDED.scope`,
		grant.ID, grant.Role, grant.Permission, grant.Scope)
	if err != nil {
		return fmt.Errorf("authz: put role default: %w", err)
	}
	return nil
}

const overrideColumns = `id, user_id, permission, scope, is_granted, overridden_by, overridden_at, reason`

func scanOverride(row pgx.Row) (UserOverride, error) {
	var override UserOverride
	if err := row.Scan(&override.ID, &override.UserID, &override.Permission, &override.Scope,
		&override.IsGranted, &override.OverriddenBy, &override.OverriddenAt, &override.Reason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserOverride{}, shared.ErrNotFound
		}
		return UserOverride{}, err
	}
	return override, nil
}

func getOverride(ctx context.Context, q rowQuerier, userID uuid.UUID, permission Permission) (UserOverride, error) {
	row := q.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM user_permission_overrides WHERE user_id = $1 AND permission = $2`,
		userID, permission)
	return scanOverride(row)
}

// GetOverride fetches the override for one (user, permission) pair.
func (s *PGStore) GetOverride(ctx context.Context, userID uuid.UUID, permission Permission) (UserOverride, error) {
	return getOverride(ctx, s.pool, userID, permission)
}

// ListByUser returns every live override for a user.
func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM user_permission_overrides WHERE user_id = $1 ORDER BY permission`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("authz: list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []UserOverride
	for rows.Next() {
		var override UserOverride
		if err := rows.Scan(&override.ID, &override.UserID, &override.Permission, &override.Scope,
			&override.IsGranted, &override.OverriddenBy, &override.OverriddenAt, &override.Reason); err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}
	return overrides, rows.Err()
}

// PutOverride inserts or replaces an override on its (user_id, permission)
// key. Supersession rewrites provenance wholesale; nothing accumulates.
func (s *PGStore) PutOverride(ctx context.Context, override UserOverride) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_permission_overrides (id, user_id, permission, scope, is_granted, overridden_by, overridden_at, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, permission) DO UPDATE SET
			id = EXCLUDED.id,
			scope = EXCLUDED.scope,
			is_granted = EXCLUDED.is_granted,
			overridden_by = EXCLUDED.overridden_by,
			overridden_at = EXCLUDED.overridden_at,
			reason = EXCLUDED.reason`,
		override.ID, override.UserID, override.Permission, override.Scope,
		override.IsGranted, override.OverriddenBy, override.OverriddenAt, override.Reason)
	if err != nil {
		return fmt.Errorf("authz: put override: %w", err)
	}
	return nil
}

// ResolutionPair reads both records for one permission inside a single
// RepeatableRead transaction. A pair assembled from two points in time can
// manufacture a grant that was never simultaneously true.
func (s *PGStore) ResolutionPair(ctx context.Context, role Role, userID uuid.UUID, permission Permission) (*RoleDefaultGrant, *UserOverride, error) {
	var roleDefault *RoleDefaultGrant
	var override *UserOverride

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		grant, err := getRoleDefault(ctx, tx, role, permission)
		switch {
		case err == nil:
			roleDefault = &grant
		case errors.Is(err, shared.ErrNotFound):
		default:
			return err
		}

		ov, err := getOverride(ctx, tx, userID, permission)
		switch {
		case err == nil:
			override = &ov
		case errors.Is(err, shared.ErrNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return roleDefault, override, nil
}

// RoleDefaults adapts the PGStore to the RoleDefaultStore port.
func (s *PGStore) RoleDefaults() RoleDefaultStore {
	return pgRoleDefaults{s}
}

// Overrides adapts the PGStore to the OverrideStore port.
func (s *PGStore) Overrides() OverrideStore {
	return pgOverrides{s}
}

type pgRoleDefaults struct{ *PGStore }

type pgOverrides struct{ *PGStore }

func (p pgOverrides) Get(ctx context.Context, userID uuid.UUID, permission Permission) (UserOverride, error) {
	return p.GetOverride(ctx, userID, permission)
}

func (p pgOverrides) Put(ctx context.Context, override UserOverride) error {
	return p.PutOverride(ctx, override)
}

var (
	_ RoleDefaultStore = pgRoleDefaults{}
	_ OverrideStore    = pgOverrides{}
	_ SnapshotReader   = (*PGStore)(nil)
)
