package models

import (
	"time"
)

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	StatusPendingVerification UserStatus = "pending_verification"
	StatusActive              UserStatus = "active"
	StatusSuspended           UserStatus = "suspended"
	StatusWithdrawn           UserStatus = "withdrawn"
)

// User is the authenticable identity record. Profile data beyond what the
// auth core needs (positions, semester rosters) lives with the surrounding
// system.
type User struct {
	ID          string
	StudentID   string // external login key, 8 digits
	Name        string
	Email       string
	PhoneNumber string
	Department  string
	Role        Role
	Status      UserStatus
	DeletedAt   *time.Time // soft-delete marker, set on withdrawal
	DeletedBy   *string
	WithdrawnAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDeleted reports whether the user is soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// RecoveryDeadline returns the instant past which a withdrawn account can no
// longer be recovered. Returns false when the user is not withdrawn.
func (u *User) RecoveryDeadline(window time.Duration) (time.Time, bool) {
	if u.Status != StatusWithdrawn || u.WithdrawnAt == nil {
		return time.Time{}, false
	}
	return u.WithdrawnAt.Add(window), true
}

// Withdraw marks the user soft-deleted and stamps the withdrawal time.
func (u *User) Withdraw(actorID string, now time.Time) {
	u.Status = StatusWithdrawn
	u.DeletedAt = &now
	u.DeletedBy = &actorID
	u.WithdrawnAt = &now
}

// Restore reverses a withdrawal during the recovery window.
func (u *User) Restore() {
	u.Status = StatusActive
	u.DeletedAt = nil
	u.DeletedBy = nil
	u.WithdrawnAt = nil
}
