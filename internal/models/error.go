package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and account state errors
	ErrInvalidCredentials = errors.New("invalid student id or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrAccountWithdrawn   = errors.New("account is withdrawn")
	ErrEmailNotVerified   = errors.New("email address not verified")

	// Recovery errors
	ErrAccountNotRecoverable  = errors.New("account recovery period has expired")
	ErrRecentWithdrawalExists = errors.New("a recent withdrawal exists for this student id")

	// Email verification errors
	ErrEmailAlreadyVerified          = errors.New("email is already verified")
	ErrVerificationCodeInvalid       = errors.New("verification code is invalid")
	ErrVerificationCodeExpired       = errors.New("verification code has expired")
	ErrVerificationAttemptsExceeded  = errors.New("verification attempt limit exceeded")
	ErrVerificationResendRateLimited = errors.New("verification code was requested too recently")

	// Token errors
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
	ErrResetTokenInvalid   = errors.New("password reset token is invalid")
	ErrResetTokenExpired   = errors.New("password reset token has expired")

	// Signup duplicate errors
	ErrDuplicateStudentID   = errors.New("student id is already registered")
	ErrDuplicateEmail       = errors.New("email is already registered")
	ErrDuplicatePhoneNumber = errors.New("phone number is already registered")
)

// AccountRecoverableError signals that a withdrawn account can still be
// recovered. Callers are expected to branch to the recovery flow rather than
// treat this as a hard failure.
type AccountRecoverableError struct {
	Deadline time.Time
}

func (e *AccountRecoverableError) Error() string {
	return fmt.Sprintf("account is withdrawn but recoverable until %s", e.Deadline.Format(time.RFC3339))
}

// IsAccountRecoverable reports whether err carries a recovery deadline.
func IsAccountRecoverable(err error) (*AccountRecoverableError, bool) {
	var re *AccountRecoverableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
