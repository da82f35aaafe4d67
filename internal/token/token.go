// ABOUTME: Session token issuing/verification and opaque action token generation
// ABOUTME: Session tokens are HS256 JWTs; action tokens are crypto/rand strings persisted server-side

package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/asf-auth/internal/store"
)

// Token errors
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrSecretTooShort = errors.New("signing secret too short")
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// Claims is the decoded identity payload carried by a session token.
type Claims struct {
	UserID    string
	Email     string
	Role      store.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer creates and validates HS256-signed session tokens.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer with the given secret. The secret must be at
// least MinSecretLength bytes.
func NewIssuer(secret []byte) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrSecretTooShort, len(secret), MinSecretLength)
	}
	return &Issuer{secret: secret}, nil
}

// Issue creates a signed session token for the user, valid for ttl.
func (i *Issuer) Issue(user *store.User, ttl time.Duration) (string, error) {
	now := time.Now()
	return i.IssueAt(user, now, ttl)
}

// IssueAt creates a signed session token with an explicit issue time.
// Exposed so callers with an injected clock stay consistent.
func (i *Issuer) IssueAt(user *store.User, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Verify validates the token signature and expiry and returns the decoded
// claims. Expiry and malformation fail distinctly (ErrExpiredToken vs
// ErrInvalidToken) so callers can offer re-login vs corrupt-link UX.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.Parse(tokenString, i.keyFunc)
	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !tok.Valid {
		return nil, ErrInvalidToken
	}

	return decodeClaims(tok)
}

// VerifySignature validates the token signature and decodes the claims
// without enforcing the embedded expiry. Session validation uses this: the
// session row's sliding window is the expiry authority there, and enforcing
// the fixed exp claim would cap the window at the issue-time TTL.
func (i *Issuer) VerifySignature(tokenString string) (*Claims, error) {
	tok, err := jwt.Parse(tokenString, i.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return decodeClaims(tok)
}

func (i *Issuer) keyFunc(tok *jwt.Token) (interface{}, error) {
	// Validate the signing method is HMAC
	if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
	}
	return i.secret, nil
}

func decodeClaims(tok *jwt.Token) (*Claims, error) {
	mapClaims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, ok := mapClaims["role"].(string)
	if !ok || role == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	claims := &Claims{
		UserID: sub,
		Role:   store.Role(role),
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}

// actionTokenBytes is the entropy of an opaque action token.
const actionTokenBytes = 32

// NewActionToken generates a cryptographically random opaque token string.
// Action tokens carry no structure; purpose and expiry live server-side.
func NewActionToken() (string, error) {
	b := make([]byte, actionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating action token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
