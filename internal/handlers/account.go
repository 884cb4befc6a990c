package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
)

// AccountServiceInterface defines the interface for account lifecycle logic
type AccountServiceInterface interface {
	Withdraw(ctx context.Context, userID, actorID string) error
	CheckRecovery(ctx context.Context, studentID string) (*services.RecoveryStatus, error)
	Recover(ctx context.Context, studentID, password string) (*services.RecoveryResult, error)
}

// AccountHandler handles withdrawal and recovery requests
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// RecoveryCheckRequest represents the request body for a recovery status check
type RecoveryCheckRequest struct {
	StudentID string `json:"student_id" validate:"required,len=8,numeric"`
}

// RecoverRequest represents the request body for account recovery
type RecoverRequest struct {
	StudentID string `json:"student_id" validate:"required,len=8,numeric"`
	Password  string `json:"password" validate:"required"`
}

// RecoveryStatusResponse reports whether and until when an account can be recovered
type RecoveryStatusResponse struct {
	Recoverable bool   `json:"recoverable"`
	Deadline    string `json:"deadline,omitempty"`
}

// RecoverResponse carries the session issued on successful recovery
type RecoverResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Withdraw soft-deletes the current user's account
// @Summary Withdraw the current account
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/me [delete]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Withdraw(r.Context(), claims.UserID, claims.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckRecovery reports whether a withdrawn account is still recoverable
// @Summary Check recovery eligibility
// @Accept json
// @Param request body RecoveryCheckRequest true "Recovery check request"
// @Produce json
// @Success 200 {object} RecoveryStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/recovery/check [post]
func (h *AccountHandler) CheckRecovery(w http.ResponseWriter, r *http.Request) {
	var req RecoveryCheckRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	status, err := h.service.CheckRecovery(r.Context(), req.StudentID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotRecoverable) {
			// Unknown, never-withdrawn, and past-window accounts all read
			// the same here.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(RecoveryStatusResponse{Recoverable: false})
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RecoveryStatusResponse{
		Recoverable: status.Recoverable,
		Deadline:    status.Deadline.Format(time.RFC3339),
	})
}

// Recover restores a withdrawn account within the recovery window and signs
// the user in
// @Summary Recover a withdrawn account
// @Accept json
// @Param request body RecoverRequest true "Recovery request"
// @Produce json
// @Success 200 {object} RecoverResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/recovery [post]
func (h *AccountHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Recover(r.Context(), req.StudentID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid student id or password")
		case errors.Is(err, models.ErrAccountNotRecoverable):
			pkghttp.WriteError(w, http.StatusGone, "not_recoverable", "Account can no longer be recovered")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RecoverResponse{
		UserID:       result.User.ID,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
	})
}
