package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/igrus/authd/internal/models"
	pkghttp "github.com/igrus/authd/pkg/http"
)

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	Request(ctx context.Context, studentID string) error
	Validate(ctx context.Context, tokenValue string) error
	Confirm(ctx context.Context, tokenValue, newPassword string) error
}

// PasswordResetHandler handles the three-step password reset flow
type PasswordResetHandler struct {
	service PasswordResetServiceInterface
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(service PasswordResetServiceInterface) *PasswordResetHandler {
	return &PasswordResetHandler{service: service}
}

// ResetRequestRequest represents the request body for initiating a reset
type ResetRequestRequest struct {
	StudentID string `json:"student_id" validate:"required,len=8,numeric"`
}

// ResetValidateRequest represents the request body for pre-validating a token
type ResetValidateRequest struct {
	Token string `json:"token" validate:"required,uuid4"`
}

// ResetConfirmRequest represents the request body for completing a reset
type ResetConfirmRequest struct {
	Token       string `json:"token" validate:"required,uuid4"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Request initiates a password reset
// @Summary Request a password reset link
// @Accept json
// @Param request body ResetRequestRequest true "Reset request"
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/password-reset [post]
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	// Always 202: whether an account exists must not be observable here.
	if err := h.service.Request(r.Context(), req.StudentID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If an account exists, a reset link has been sent to its email address.",
	})
}

// Validate checks a reset token before the client shows the new-password form
// @Summary Validate a reset token
// @Accept json
// @Param request body ResetValidateRequest true "Validate request"
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/password-reset/validate [post]
func (h *PasswordResetHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ResetValidateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Validate(r.Context(), req.Token); err != nil {
		writeResetTokenError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"valid": true})
}

// Confirm sets the new password and consumes the token
// @Summary Complete a password reset
// @Accept json
// @Param request body ResetConfirmRequest true "Confirm request"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/password-reset/confirm [post]
func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Confirm(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Password does not meet the complexity requirements")
			return
		}
		writeResetTokenError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeResetTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrResetTokenInvalid):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_invalid", "Reset token is invalid or already used")
	case errors.Is(err, models.ErrResetTokenExpired):
		pkghttp.WriteError(w, http.StatusGone, "token_expired", "Reset token has expired")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
