package models

import "time"

// LoginFailureReason classifies a failed login for the audit trail.
type LoginFailureReason string

const (
	FailureInvalidCredentials LoginFailureReason = "invalid_credentials"
	FailureAccountLocked      LoginFailureReason = "account_locked"
	FailureAccountSuspended   LoginFailureReason = "account_suspended"
	FailureAccountWithdrawn   LoginFailureReason = "account_withdrawn"
	FailureEmailNotVerified   LoginFailureReason = "email_not_verified"
)

const maxUserAgentLength = 500

// LoginHistory is one append-only audit row per login attempt. UserID is nil
// when the student id did not resolve to an account.
type LoginHistory struct {
	ID            string
	UserID        *string
	StudentID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason *LoginFailureReason
	AttemptedAt   time.Time
}

// NewLoginSuccess builds a success row.
func NewLoginSuccess(userID, studentID, ipAddress, userAgent string, now time.Time) *LoginHistory {
	return &LoginHistory{
		UserID:      &userID,
		StudentID:   studentID,
		IPAddress:   ipAddress,
		UserAgent:   truncateUserAgent(userAgent),
		Success:     true,
		AttemptedAt: now,
	}
}

// NewLoginFailure builds a failure row. userID may be empty when the account
// is unknown.
func NewLoginFailure(userID, studentID, ipAddress, userAgent string, reason LoginFailureReason, now time.Time) *LoginHistory {
	h := &LoginHistory{
		StudentID:     studentID,
		IPAddress:     ipAddress,
		UserAgent:     truncateUserAgent(userAgent),
		Success:       false,
		FailureReason: &reason,
		AttemptedAt:   now,
	}
	if userID != "" {
		h.UserID = &userID
	}
	return h
}

func truncateUserAgent(ua string) string {
	if len(ua) > maxUserAgentLength {
		return ua[:maxUserAgentLength]
	}
	return ua
}
