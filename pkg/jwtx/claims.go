package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL matches the one day sessions the web frontend issues.
const DefaultTokenTTL = 24 * time.Hour

// Claims identify a parking user. Tokens are minted by the web frontend with
// a key shared with this service.
type Claims struct {
	jwt.RegisteredClaims

	// Badge UID of the user
	UID string `json:"uid"`

	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

// NewClaims builds claims valid from now for ttl.
func NewClaims(uid, username string, isAdmin bool, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		UID:      uid,
		Username: username,
		IsAdmin:  isAdmin,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// Validate is called by the jwt parser after the standard checks.
func (c *Claims) Validate() error {
	if c.UID == "" {
		return ErrInvalidClaim
	}
	return nil
}
