// ABOUTME: Unit tests for role checks
// ABOUTME: Verifies exact-match and explicit superset behavior, no name-based fallthrough

package auth

import (
	"errors"
	"testing"

	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

func TestHasRole(t *testing.T) {
	tests := []struct {
		name string
		have store.Role
		want store.Role
		ok   bool
	}{
		{name: "exact user", have: store.RoleUser, want: store.RoleUser, ok: true},
		{name: "exact admin", have: store.RoleAdmin, want: store.RoleAdmin, ok: true},
		{name: "admin covers manager", have: store.RoleAdmin, want: store.RoleManager, ok: true},
		{name: "admin covers user", have: store.RoleAdmin, want: store.RoleUser, ok: true},
		{name: "manager covers user", have: store.RoleManager, want: store.RoleUser, ok: true},
		{name: "user does not cover manager", have: store.RoleUser, want: store.RoleManager, ok: false},
		{name: "user does not cover admin", have: store.RoleUser, want: store.RoleAdmin, ok: false},
		{name: "manager does not cover admin", have: store.RoleManager, want: store.RoleAdmin, ok: false},
		{name: "unknown role covers nothing", have: store.Role("root"), want: store.RoleUser, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasRole(tt.have, tt.want); got != tt.ok {
				t.Errorf("HasRole(%q, %q) = %v, want %v", tt.have, tt.want, got, tt.ok)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	userClaims := &token.Claims{UserID: "u1", Role: store.RoleUser}
	adminClaims := &token.Claims{UserID: "u2", Role: store.RoleAdmin}

	if err := RequireRole(userClaims, store.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireRole(user, admin) = %v, want ErrForbidden", err)
	}
	if err := RequireRole(adminClaims, store.RoleAdmin); err != nil {
		t.Errorf("RequireRole(admin, admin) = %v, want nil", err)
	}
	if err := RequireRole(nil, store.RoleUser); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireRole(nil, user) = %v, want ErrForbidden", err)
	}
}
