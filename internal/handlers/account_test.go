package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/igrus/authd/internal/handlers"
	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/services"
)

func TestWithdraw_Success(t *testing.T) {
	withdrawn := false
	mockAccount := &handlers.MockAccountService{
		WithdrawFunc: func(ctx context.Context, userID, actorID string) error {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "user-1", actorID)
			withdrawn = true
			return nil
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "DELETE", "/users/me", nil)
	req = handlers.WithAuthContext(req, "user-1", "12230001")

	w := httptest.NewRecorder()
	handler.Withdraw(w, req)

	assert.Equal(t, 204, w.Code)
	assert.True(t, withdrawn)
}

func TestWithdraw_NoAuthContext(t *testing.T) {
	handler := handlers.NewAccountHandler(&handlers.MockAccountService{})
	req := handlers.NewTestRequest(t, "DELETE", "/users/me", nil)

	w := httptest.NewRecorder()
	handler.Withdraw(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestCheckRecovery_Recoverable(t *testing.T) {
	deadline := time.Now().Add(3 * 24 * time.Hour)
	mockAccount := &handlers.MockAccountService{
		CheckRecoveryFunc: func(ctx context.Context, studentID string) (*services.RecoveryStatus, error) {
			return &services.RecoveryStatus{Recoverable: true, Deadline: deadline}, nil
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "POST", "/auth/recovery/check", handlers.RecoveryCheckRequest{
		StudentID: "12230001",
	})

	w := httptest.NewRecorder()
	handler.CheckRecovery(w, req)

	var resp handlers.RecoveryStatusResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Recoverable)
	assert.Equal(t, deadline.Format(time.RFC3339), resp.Deadline)
}

func TestCheckRecovery_NotRecoverable(t *testing.T) {
	mockAccount := &handlers.MockAccountService{
		CheckRecoveryFunc: func(ctx context.Context, studentID string) (*services.RecoveryStatus, error) {
			return nil, models.ErrAccountNotRecoverable
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "POST", "/auth/recovery/check", handlers.RecoveryCheckRequest{
		StudentID: "12230001",
	})

	w := httptest.NewRecorder()
	handler.CheckRecovery(w, req)

	// Unknown and unrecoverable accounts both get a plain "false" so the
	// endpoint leaks nothing.
	var resp handlers.RecoveryStatusResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Recoverable)
	assert.Empty(t, resp.Deadline)
}

func TestRecover_Success(t *testing.T) {
	mockAccount := &handlers.MockAccountService{
		RecoverFunc: func(ctx context.Context, studentID, password string) (*services.RecoveryResult, error) {
			return &services.RecoveryResult{
				User:   &models.User{ID: "user-1", StudentID: studentID, Status: models.StatusActive},
				Tokens: &models.TokenPair{AccessToken: "access-jwt", RefreshToken: "refresh-opaque", ExpiresIn: 1800},
			}, nil
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "POST", "/auth/recovery", handlers.RecoverRequest{
		StudentID: "12230001",
		Password:  "SecurePass1!",
	})

	w := httptest.NewRecorder()
	handler.Recover(w, req)

	// A recovered account comes back with a live session, like a login.
	var resp handlers.RecoverResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "access-jwt", resp.AccessToken)
	assert.Equal(t, "refresh-opaque", resp.RefreshToken)
	assert.Equal(t, int64(1800), resp.ExpiresIn)
}

func TestRecover_WrongPassword(t *testing.T) {
	mockAccount := &handlers.MockAccountService{
		RecoverFunc: func(ctx context.Context, studentID, password string) (*services.RecoveryResult, error) {
			return nil, models.ErrInvalidCredentials
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "POST", "/auth/recovery", handlers.RecoverRequest{
		StudentID: "12230001",
		Password:  "WrongPass1!",
	})

	w := httptest.NewRecorder()
	handler.Recover(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestRecover_WindowClosed(t *testing.T) {
	mockAccount := &handlers.MockAccountService{
		RecoverFunc: func(ctx context.Context, studentID, password string) (*services.RecoveryResult, error) {
			return nil, models.ErrAccountNotRecoverable
		},
	}

	handler := handlers.NewAccountHandler(mockAccount)
	req := handlers.NewTestRequest(t, "POST", "/auth/recovery", handlers.RecoverRequest{
		StudentID: "12230001",
		Password:  "SecurePass1!",
	})

	w := httptest.NewRecorder()
	handler.Recover(w, req)

	handlers.AssertErrorResponse(t, w, 410, "not_recoverable")
}
