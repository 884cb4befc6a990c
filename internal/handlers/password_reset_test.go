package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/igrus/authd/internal/handlers"
	"github.com/igrus/authd/internal/models"
)

const testResetToken = "11111111-2222-4333-8444-555555555555"

func TestResetRequest_AlwaysAccepted(t *testing.T) {
	requested := ""
	mockReset := &handlers.MockPasswordResetService{
		RequestFunc: func(ctx context.Context, studentID string) error {
			requested = studentID
			return nil
		},
	}

	handler := handlers.NewPasswordResetHandler(mockReset)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset", handlers.ResetRequestRequest{
		StudentID: "12230001",
	})

	w := httptest.NewRecorder()
	handler.Request(w, req)

	assert.Equal(t, 202, w.Code)
	assert.Equal(t, "12230001", requested)
}

func TestResetRequest_MalformedStudentID(t *testing.T) {
	handler := handlers.NewPasswordResetHandler(&handlers.MockPasswordResetService{})
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset", handlers.ResetRequestRequest{
		StudentID: "123",
	})

	w := httptest.NewRecorder()
	handler.Request(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestResetValidate_Valid(t *testing.T) {
	mockReset := &handlers.MockPasswordResetService{
		ValidateFunc: func(ctx context.Context, tokenValue string) error {
			assert.Equal(t, testResetToken, tokenValue)
			return nil
		},
	}

	handler := handlers.NewPasswordResetHandler(mockReset)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/validate", handlers.ResetValidateRequest{
		Token: testResetToken,
	})

	w := httptest.NewRecorder()
	handler.Validate(w, req)

	var resp map[string]bool
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp["valid"])
}

func TestResetValidate_TokenErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid token", models.ErrResetTokenInvalid, 400, "token_invalid"},
		{"expired token", models.ErrResetTokenExpired, 410, "token_expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockReset := &handlers.MockPasswordResetService{
				ValidateFunc: func(ctx context.Context, tokenValue string) error {
					return tt.err
				},
			}

			handler := handlers.NewPasswordResetHandler(mockReset)
			req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/validate", handlers.ResetValidateRequest{
				Token: testResetToken,
			})

			w := httptest.NewRecorder()
			handler.Validate(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestResetConfirm_Success(t *testing.T) {
	confirmed := false
	mockReset := &handlers.MockPasswordResetService{
		ConfirmFunc: func(ctx context.Context, tokenValue, newPassword string) error {
			assert.Equal(t, "NewSecure1!", newPassword)
			confirmed = true
			return nil
		},
	}

	handler := handlers.NewPasswordResetHandler(mockReset)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/confirm", handlers.ResetConfirmRequest{
		Token:       testResetToken,
		NewPassword: "NewSecure1!",
	})

	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	assert.Equal(t, 204, w.Code)
	assert.True(t, confirmed)
}

func TestResetConfirm_WeakPassword(t *testing.T) {
	mockReset := &handlers.MockPasswordResetService{
		ConfirmFunc: func(ctx context.Context, tokenValue, newPassword string) error {
			return models.ErrBadRequest
		},
	}

	handler := handlers.NewPasswordResetHandler(mockReset)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/confirm", handlers.ResetConfirmRequest{
		Token:       testResetToken,
		NewPassword: "weak",
	})

	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestResetConfirm_UsedToken(t *testing.T) {
	mockReset := &handlers.MockPasswordResetService{
		ConfirmFunc: func(ctx context.Context, tokenValue, newPassword string) error {
			return models.ErrResetTokenInvalid
		},
	}

	handler := handlers.NewPasswordResetHandler(mockReset)
	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/confirm", handlers.ResetConfirmRequest{
		Token:       testResetToken,
		NewPassword: "NewSecure1!",
	})

	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, 400, "token_invalid")
}
