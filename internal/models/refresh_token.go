package models

import "time"

// RefreshToken is one issued refresh credential. The opaque token value is
// never stored; only its SHA-256 hash is. Revocation is a logical flag so the
// audit trail survives until the expiry sweep hard-deletes the row.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// IsExpired reports whether the token is past its expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValid reports whether the token can still mint access tokens.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}
