package models

import "time"

// EmailVerification is one issued verification code. Multiple rows per email
// accumulate over time; only the most recent unverified row is actionable.
type EmailVerification struct {
	ID        string
	Email     string
	Code      string // 6-digit numeric code
	Attempts  int
	Verified  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the code is past its expiry.
func (v *EmailVerification) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// CanAttempt reports whether another verification attempt is allowed for this
// code.
func (v *EmailVerification) CanAttempt(maxAttempts int) bool {
	return v.Attempts < maxAttempts
}
