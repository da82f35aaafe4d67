// ABOUTME: Role checks backed by an explicit superset table
// ABOUTME: No string-comparison fallthrough; admin satisfies manager checks only because the table says so

package auth

import (
	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

// roleSupersets declares which roles a role explicitly covers beyond itself.
// The hierarchy is flat otherwise: nothing is inferred from role names.
var roleSupersets = map[store.Role][]store.Role{
	store.RoleAdmin:   {store.RoleManager, store.RoleUser},
	store.RoleManager: {store.RoleUser},
}

// HasRole reports whether a session holding `have` satisfies a check for
// `want`: exact match, or `want` appears in the declared superset table.
func HasRole(have, want store.Role) bool {
	if have == want {
		return true
	}
	for _, r := range roleSupersets[have] {
		if r == want {
			return true
		}
	}
	return false
}

// RequireRole returns ErrForbidden unless the claims satisfy the role check.
func RequireRole(claims *token.Claims, want store.Role) error {
	if claims == nil {
		return ErrForbidden
	}
	if !HasRole(claims.Role, want) {
		return ErrForbidden
	}
	return nil
}
