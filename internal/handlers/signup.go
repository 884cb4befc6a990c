package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
)

// SignupServiceInterface defines the interface for account creation
type SignupServiceInterface interface {
	Signup(ctx context.Context, req services.SignupRequest) (*models.User, error)
}

// VerificationServiceInterface defines the interface for email verification codes
type VerificationServiceInterface interface {
	Verify(ctx context.Context, email, code string) error
	Resend(ctx context.Context, email string) error
}

// SignupHandler handles signup and email verification requests
type SignupHandler struct {
	signup       SignupServiceInterface
	verification VerificationServiceInterface
}

// NewSignupHandler creates a new SignupHandler
func NewSignupHandler(signup SignupServiceInterface, verification VerificationServiceInterface) *SignupHandler {
	return &SignupHandler{
		signup:       signup,
		verification: verification,
	}
}

// SignupRequest represents the request body for signup
type SignupRequest struct {
	StudentID     string `json:"student_id" validate:"required,len=8,numeric"`
	Name          string `json:"name" validate:"required,min=1,max=100"`
	Email         string `json:"email" validate:"required,email"`
	PhoneNumber   string `json:"phone_number" validate:"omitempty,min=9,max=20"`
	Department    string `json:"department" validate:"omitempty,max=100"`
	Password      string `json:"password" validate:"required"`
	PolicyVersion string `json:"policy_version" validate:"required"`
	AgreedToTerms bool   `json:"agreed_to_terms" validate:"required"`
}

// VerifyEmailRequest represents the request body for code verification
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendVerificationRequest represents the request body for resending a code
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SignupResponse is the public view of a freshly created account
type SignupResponse struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Signup handles account creation
// @Summary Create a pending account
// @Accept json
// @Param request body SignupRequest true "Signup request"
// @Produce json
// @Success 201 {object} SignupResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/signup [post]
func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.signup.Signup(r.Context(), services.SignupRequest{
		StudentID:     req.StudentID,
		Name:          req.Name,
		Email:         req.Email,
		PhoneNumber:   req.PhoneNumber,
		Department:    req.Department,
		Password:      req.Password,
		PolicyVersion: req.PolicyVersion,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet the complexity requirements")
		case errors.Is(err, models.ErrDuplicateStudentID):
			pkghttp.WriteConflict(w, "Student id is already registered")
		case errors.Is(err, models.ErrDuplicateEmail):
			pkghttp.WriteConflict(w, "Email is already registered")
		case errors.Is(err, models.ErrDuplicatePhoneNumber):
			pkghttp.WriteConflict(w, "Phone number is already registered")
		case errors.Is(err, models.ErrRecentWithdrawalExists):
			pkghttp.WriteError(w, http.StatusConflict, "recent_withdrawal",
				"A recently withdrawn account exists for this student id")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SignupResponse{
		ID:        user.ID,
		StudentID: user.StudentID,
		Email:     user.Email,
		Status:    string(user.Status),
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}

// VerifyEmail handles verification code submission
// @Summary Verify email with a 6-digit code
// @Accept json
// @Param request body VerifyEmailRequest true "Verify email request"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/verify-email [post]
func (h *SignupHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.verification.Verify(r.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrVerificationCodeInvalid):
			pkghttp.WriteError(w, http.StatusBadRequest, "code_invalid", "Verification code is incorrect")
		case errors.Is(err, models.ErrVerificationCodeExpired):
			pkghttp.WriteError(w, http.StatusBadRequest, "code_expired", "Verification code has expired. Request a new one.")
		case errors.Is(err, models.ErrVerificationAttemptsExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many verification attempts. Request a new code.")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteError(w, http.StatusBadRequest, "code_invalid", "No pending verification for this email")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully. You can now log in.",
	})
}

// ResendVerification handles resending the verification code
// @Summary Resend the verification code
// @Accept json
// @Param request body ResendVerificationRequest true "Resend request"
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/resend-verification [post]
func (h *SignupHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	// Unknown emails fall through to the generic 202 so accounts cannot be
	// enumerated through this endpoint.
	if err := h.verification.Resend(r.Context(), req.Email); err != nil && !errors.Is(err, models.ErrNotFound) {
		switch {
		case errors.Is(err, models.ErrVerificationResendRateLimited):
			pkghttp.WriteTooManyRequests(w, "A code was sent recently. Wait before requesting another.")
		case errors.Is(err, models.ErrEmailAlreadyVerified):
			pkghttp.WriteConflict(w, "Email is already verified")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If a pending account exists for this email, a new code has been sent.",
	})
}
