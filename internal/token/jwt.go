// Package token mints and verifies the signed session credentials backing
// authentication. Tokens are HS256 JWTs carrying the user's email as
// subject, a "typ" claim separating access from refresh credentials, and
// a unique jti so every issuance yields a distinct string.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Values of the "typ" discriminator claim.
const (
	TypAccess  = "access_token"
	TypRefresh = "refresh_token"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	TokenUse string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and parses session credentials.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a Manager signing with the given shared secret.
func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessToken mints a short-lived access credential for the subject email.
func (m *Manager) AccessToken(email string, now time.Time) (string, time.Time, error) {
	return m.sign(email, TypAccess, now, m.accessTTL)
}

// RefreshToken mints a long-lived refresh credential for the subject email.
func (m *Manager) RefreshToken(email string, now time.Time) (string, time.Time, error) {
	return m.sign(email, TypRefresh, now, m.refreshTTL)
}

func (m *Manager) sign(email, typ string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	// iat/exp have second resolution, so the jti is what keeps two
	// issuances within the same second from colliding in the ledger.
	claims := Claims{
		TokenUse: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry of a raw token and returns its
// claims. Any verification failure surfaces as an authentication error.
func (m *Manager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid token").
			WithCode(goerrors.CodeUnauthorized)
	}
	return claims, nil
}
