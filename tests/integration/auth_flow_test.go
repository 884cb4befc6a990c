package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrus/authd/internal/models"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

// freshServer gives each test its own server so per-route rate limit buckets
// start empty.
func freshServer(t *testing.T) *TestServer {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts := NewTestServer(testDB.DB)
	t.Cleanup(ts.Close)
	return ts
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	ts := freshServer(t)
	studentID, email, password := TestStudent()

	// Signup creates a pending account.
	resp, err := ts.Request("POST", "/auth/signup", SignupBody(studentID, email, password), nil)
	require.NoError(t, err)
	var created struct {
		ID        string `json:"id"`
		StudentID string `json:"student_id"`
		Status    string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &created))
	assert.Equal(t, studentID, created.StudentID)
	assert.Equal(t, string(models.StatusPendingVerification), created.Status)

	// Login is refused until the email is verified.
	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "email_not_verified", code)

	// The verification code went out through the mail sender.
	mail := ts.Email.LastTo(email)
	require.NotNil(t, mail, "expected a verification email")
	require.Equal(t, "verification_code", mail.Kind)
	require.Len(t, mail.Value, 6)

	resp, err = ts.Request("POST", "/auth/verify-email", map[string]string{
		"email": email,
		"code":  mail.Value,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Now login succeeds and returns a token pair.
	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, refreshToken, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	// The failed and successful attempts both landed in the login history.
	resp, err = ts.RequestWithAuth("GET", "/users/me/login-history", accessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		Success       bool   `json:"success"`
		FailureReason string `json:"failure_reason"`
	}
	require.NoError(t, ParseJSONResponse(resp, &history))
	require.NotEmpty(t, history)
	assert.True(t, history[0].Success, "newest entry should be the successful login")

	// Refresh rotates the pair.
	resp, err = ts.Request("POST", "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, rotatedRefresh, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, rotatedRefresh)
	require.NotEqual(t, refreshToken, rotatedRefresh)

	// Logout revokes the current refresh token.
	resp, err = ts.RequestWithAuth("POST", "/auth/logout", accessToken, map[string]string{
		"refresh_token": rotatedRefresh,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/refresh", map[string]string{
		"refresh_token": rotatedRefresh,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	studentID, email, oldPassword := TestStudent()
	newPassword := "EvenBetterHorse7!"

	_, err := SeedUser(ctx, testDB.Pool, studentID, email, oldPassword, models.StatusActive)
	require.NoError(t, err)

	// Request always answers 202, known account or not.
	resp, err := ts.Request("POST", "/auth/password-reset", map[string]string{
		"student_id": studentID,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	mail := ts.Email.LastTo(email)
	require.NotNil(t, mail, "expected a reset email")
	require.Equal(t, "reset_link", mail.Kind)
	token := mail.Value

	resp, err = ts.Request("POST", "/auth/password-reset/validate", map[string]string{
		"token": token,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/password-reset/confirm", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Old password no longer works; the new one does.
	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   oldPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   newPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A used token is dead.
	resp, err = ts.Request("POST", "/auth/password-reset/validate", map[string]string{
		"token": token,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasswordResetUnknownStudentStaysSilent(t *testing.T) {
	ts := freshServer(t)

	resp, err := ts.Request("POST", "/auth/password-reset", map[string]string{
		"student_id": "99999999",
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, ts.Email.Sent, "no mail should leave for an unknown student id")
}

func TestWithdrawAndRecoveryFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	studentID, email, password := TestStudent()

	_, err := SeedUser(ctx, testDB.Pool, studentID, email, password, models.StatusActive)
	require.NoError(t, err)

	resp, err := ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	resp, err = ts.RequestWithAuth("DELETE", "/users/me", accessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Inside the window a login is refused but flagged recoverable.
	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "account_recoverable", code)

	resp, err = ts.Request("POST", "/auth/recovery/check", map[string]string{
		"student_id": studentID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Recoverable bool `json:"recoverable"`
	}
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.True(t, status.Recoverable)

	// Recovery restores the account and hands back a live session.
	resp, err = ts.Request("POST", "/auth/recovery", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recoveredAccess, recoveredRefresh, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, recoveredAccess)
	require.NotEmpty(t, recoveredRefresh)

	// The issued tokens work immediately, no separate login needed.
	resp, err = ts.RequestWithAuth("GET", "/users/me/login-history", recoveredAccess, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/refresh", map[string]string{
		"refresh_token": recoveredRefresh,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecoveryPastWindowIsGone(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	studentID, email, password := TestStudent()

	_, err := SeedWithdrawnUser(ctx, testDB.Pool, studentID, email, password,
		ts.Config.Auth.RecoveryWindow+time.Hour)
	require.NoError(t, err)

	// Check collapses to not-recoverable, same as an unknown student id.
	resp, err := ts.Request("POST", "/auth/recovery/check", map[string]string{
		"student_id": studentID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Recoverable bool `json:"recoverable"`
	}
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.False(t, status.Recoverable)

	resp, err = ts.Request("POST", "/auth/recovery", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// A login with the right password says the same thing.
	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusGone, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "not_recoverable", code)
}

func TestAccountLockoutAfterRepeatedFailures(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	studentID, email, password := TestStudent()

	_, err := SeedUser(ctx, testDB.Pool, studentID, email, password, models.StatusActive)
	require.NoError(t, err)

	// The IP limiter on /auth/login allows 5 requests per minute, the same
	// as the account lockout threshold, so all five failures get through.
	for i := 0; i < ts.Config.Auth.LoginAttemptsMax; i++ {
		resp, err := ts.Request("POST", "/auth/login", map[string]string{
			"student_id": studentID,
			"password":   "wrong-password",
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// The fifth failure started a lockout. A sixth HTTP call would trip the
	// IP limiter first, so assert against the counter row instead.
	var lockedUntil *time.Time
	err = testDB.Pool.QueryRow(ctx,
		`SELECT locked_until FROM login_attempts WHERE student_id = $1`, studentID,
	).Scan(&lockedUntil)
	require.NoError(t, err)
	require.NotNil(t, lockedUntil)
	assert.True(t, lockedUntil.After(time.Now()))
}
