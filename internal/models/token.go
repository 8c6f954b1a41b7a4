package models

import "time"

// TokenType discriminates the two halves of an issued credential pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// Token is one row of the revocation ledger. Rows are only ever appended
// and flagged, never deleted: a revoked row keeps a cryptographically
// valid credential out of circulation for good.
type Token struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"` // Not serialized
	TokenType TokenType `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the row may still back a session.
func (t *Token) Live() bool {
	return !t.Expired && !t.Revoked
}
