// ABOUTME: Unit tests for claims context propagation
// ABOUTME: Covers round-trip, absent claims, and MustFromContext panic behavior

package auth

import (
	"context"
	"testing"

	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

func TestClaimsContextRoundTrip(t *testing.T) {
	claims := &token.Claims{UserID: "u1", Email: "a@b.com", Role: store.RoleManager}
	ctx := WithClaims(context.Background(), claims)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext returned nil after WithClaims")
	}
	if got.UserID != "u1" || got.Role != store.RoleManager {
		t.Errorf("got claims %+v, want original", got)
	}
}

func TestFromContextEmpty(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext on empty context = %+v, want nil", got)
	}
}

func TestMustFromContextPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustFromContext did not panic on empty context")
		}
	}()
	MustFromContext(context.Background())
}
