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

// AuthServiceInterface defines the interface for session business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, studentID, password string, client services.ClientInfo) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
}

// LoginHistoryServiceInterface exposes the per-user login audit trail
type LoginHistoryServiceInterface interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error)
}

// AuthHandler handles login, token refresh, and logout requests
type AuthHandler struct {
	service  AuthServiceInterface
	history  LoginHistoryServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, history LoginHistoryServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		history:  history,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	StudentID string `json:"student_id" validate:"required,len=8,numeric"`
	Password  string `json:"password" validate:"required"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest represents the request body for single-session logout
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginHistoryEntry is one row of the login audit trail
type LoginHistoryEntry struct {
	IPAddress     string `json:"ip_address"`
	UserAgent     string `json:"user_agent"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty"`
	AttemptedAt   string `json:"attempted_at"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} models.TokenPair
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	client := services.ClientInfo{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}

	pair, err := h.service.Login(r.Context(), req.StudentID, req.Password, client)
	if err != nil {
		if recoverable, ok := models.IsAccountRecoverable(err); ok {
			// The client is expected to branch into the recovery flow.
			pkghttp.WriteErrorWithDetails(w, http.StatusConflict, "account_recoverable",
				"Account is withdrawn but can still be recovered",
				recoverable.Deadline.Format(time.RFC3339))
			return
		}
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid student id or password")
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.")
		case errors.Is(err, models.ErrAccountSuspended):
			pkghttp.WriteForbidden(w, "Account is suspended")
		case errors.Is(err, models.ErrEmailNotVerified):
			pkghttp.WriteError(w, http.StatusForbidden, "email_not_verified", "Email address is not verified")
		case errors.Is(err, models.ErrAccountNotRecoverable):
			pkghttp.WriteError(w, http.StatusGone, "not_recoverable", "Account can no longer be recovered")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(pair)
}

// Refresh handles refresh token rotation
// @Summary Refresh access token
// @Accept json
// @Param request body RefreshRequest true "Refresh request"
// @Produce json
// @Success 200 {object} models.TokenPair
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRefreshTokenInvalid),
			errors.Is(err, models.ErrRefreshTokenExpired):
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
		case errors.Is(err, models.ErrAccountSuspended):
			pkghttp.WriteForbidden(w, "Account is suspended")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(pair)
}

// Logout revokes the presented refresh token for the current session
// @Summary User logout
// @Accept json
// @Security BearerAuth
// @Param request body LogoutRequest true "Logout request"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), claims.UserID, req.RefreshToken); err != nil {
		if errors.Is(err, models.ErrRefreshTokenInvalid) {
			pkghttp.WriteUnauthorized(w, "Invalid refresh token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every live session for the current user
// @Summary Logout from all devices
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.LogoutAll(r.Context(), claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LoginHistory returns the current user's recent login attempts
// @Summary Recent login history
// @Security BearerAuth
// @Produce json
// @Success 200 {array} LoginHistoryEntry
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/me/login-history [get]
func (h *AuthHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	rows, err := h.history.ListRecent(r.Context(), claims.UserID, parseLimit(r, 20))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	entries := make([]LoginHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := LoginHistoryEntry{
			IPAddress:   row.IPAddress,
			UserAgent:   row.UserAgent,
			Success:     row.Success,
			AttemptedAt: row.AttemptedAt.Format(time.RFC3339),
		}
		if row.FailureReason != nil {
			entry.FailureReason = string(*row.FailureReason)
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(entries)
}
