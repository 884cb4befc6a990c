package models

import "time"

// LoginAttempt tracks consecutive login failures for one student id. Exactly
// one row per student id, updated in place.
type LoginAttempt struct {
	ID            string
	StudentID     string
	AttemptCount  int
	LastAttemptAt time.Time
	LockedUntil   *time.Time // nil when not locked
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLocked reports whether the account is inside its lockout window.
func (a *LoginAttempt) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
