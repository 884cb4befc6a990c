package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
)

// ApprovalServiceInterface defines the interface for associate promotion
type ApprovalServiceInterface interface {
	ListPending(ctx context.Context, limit, offset int) ([]*models.User, error)
	Approve(ctx context.Context, userID, approverID string) error
	ApproveBulk(ctx context.Context, userIDs []string, approverID string) *services.BulkApprovalResult
}

// SuspensionServiceInterface defines the interface for suspension actions
type SuspensionServiceInterface interface {
	Suspend(ctx context.Context, userID, actorID string) error
	Unsuspend(ctx context.Context, userID, actorID string) error
}

// AdminHandler handles the operator/admin console endpoints
type AdminHandler struct {
	approvals   ApprovalServiceInterface
	suspensions SuspensionServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(approvals ApprovalServiceInterface, suspensions SuspensionServiceInterface) *AdminHandler {
	return &AdminHandler{
		approvals:   approvals,
		suspensions: suspensions,
	}
}

// ApproveBulkRequest represents the request body for bulk approval
type ApproveBulkRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=100,dive,uuid4"`
}

// UserSummary is the admin-facing view of an account
type UserSummary struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

func toUserSummary(u *models.User) UserSummary {
	return UserSummary{
		ID:         u.ID,
		StudentID:  u.StudentID,
		Name:       u.Name,
		Email:      u.Email,
		Department: u.Department,
		Role:       string(u.Role),
		Status:     string(u.Status),
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

// ListPendingAssociates lists active associates awaiting promotion
// @Summary List associates pending approval
// @Security BearerAuth
// @Produce json
// @Success 200 {array} UserSummary
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/associates [get]
func (h *AdminHandler) ListPendingAssociates(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	offset := parseOffset(r)

	users, err := h.approvals.ListPending(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, toUserSummary(u))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summaries)
}

// Approve promotes a single associate to member
// @Summary Approve an associate
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/associates/{id}/approve [post]
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "Missing user id")
		return
	}

	if err := h.approvals.Approve(r.Context(), userID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "User is not an active associate")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApproveBulk promotes a batch of associates, reporting per-id outcomes
// @Summary Approve associates in bulk
// @Security BearerAuth
// @Accept json
// @Param request body ApproveBulkRequest true "Bulk approval request"
// @Produce json
// @Success 200 {object} services.BulkApprovalResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/associates/approve [post]
func (h *AdminHandler) ApproveBulk(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ApproveBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.approvals.ApproveBulk(r.Context(), req.UserIDs, claims.UserID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Suspend blocks an account and kills its sessions
// @Summary Suspend an account
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/users/{id}/suspend [post]
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.changeSuspension(w, r, h.suspensions.Suspend, "User is already suspended")
}

// Unsuspend reactivates a suspended account
// @Summary Lift a suspension
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/users/{id}/unsuspend [post]
func (h *AdminHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.changeSuspension(w, r, h.suspensions.Unsuspend, "User is not suspended")
}

func (h *AdminHandler) changeSuspension(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, actorID string) error, conflictMsg string) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "Missing user id")
		return
	}

	if err := action(r.Context(), userID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, conflictMsg)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
