// ABOUTME: Claims context carriage for tracking identity through request handlers
// ABOUTME: Provides WithClaims/FromContext for propagating validated identity via context

package auth

import (
	"context"

	"github.com/2389/asf-auth/internal/token"
)

// claimsContextKey is the key type for storing Claims in context.Context.
type claimsContextKey struct{}

// WithClaims returns a new context with the validated Claims attached.
// Operations take identity as an explicit value; nothing in the engine reads
// ambient "current user" state.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// FromContext retrieves the Claims from the context, returning nil if not present.
func FromContext(ctx context.Context) *token.Claims {
	val := ctx.Value(claimsContextKey{})
	if val == nil {
		return nil
	}
	claims, ok := val.(*token.Claims)
	if !ok {
		return nil
	}
	return claims
}

// MustFromContext retrieves the Claims from the context, panicking if not present.
func MustFromContext(ctx context.Context) *token.Claims {
	claims := FromContext(ctx)
	if claims == nil {
		panic("auth: Claims not found in context")
	}
	return claims
}
