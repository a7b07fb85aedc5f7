package authz

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/shared"
)

// ValidationError is a caller-correctable input error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("authz: invalid %s: %s", e.Field, e.Reason)
}

// NewUserOverride constructs a validated override. A user can never author
// an override for themselves, the justification is mandatory, and a deny
// drops any supplied scope: scope qualifies what is accessible, not what is
// withheld. The timestamp comes from the injected clock.
func NewUserOverride(userID uuid.UUID, permission Permission, scope Scope, isGranted bool, overriddenBy uuid.UUID, reason string, clock shared.Clock) (UserOverride, error) {
	if userID == uuid.Nil {
		return UserOverride{}, &ValidationError{Field: "user_id", Reason: "required"}
	}
	if overriddenBy == uuid.Nil {
		return UserOverride{}, &ValidationError{Field: "overridden_by", Reason: "required"}
	}
	if userID == overriddenBy {
		return UserOverride{}, &ValidationError{Field: "overridden_by", Reason: "a user cannot override their own permissions"}
	}
	if !permission.Valid() {
		return UserOverride{}, &ValidationError{Field: "permission", Reason: fmt.Sprintf("unknown permission %q", permission)}
	}
	if strings.TrimSpace(reason) == "" {
		return UserOverride{}, &ValidationError{Field: "reason", Reason: "required"}
	}

	var stored *Scope
	if isGranted {
		if !scope.Valid() {
			return UserOverride{}, &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", scope)}
		}
		s := scope
		stored = &s
	}

	return UserOverride{
		ID:           uuid.New(),
		UserID:       userID,
		Permission:   permission,
		Scope:        stored,
		IsGranted:    isGranted,
		OverriddenBy: overriddenBy,
		OverriddenAt: clock.Now(),
		Reason:       strings.TrimSpace(reason),
	}, nil
}
