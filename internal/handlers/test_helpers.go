package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, studentID string) *http.Request {
	claims := &models.TokenClaims{
		UserID:    userID,
		StudentID: studentID,
		Type:      "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc     func(ctx context.Context, studentID, password string, client services.ClientInfo) (*models.TokenPair, error)
	RefreshFunc   func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	LogoutFunc    func(ctx context.Context, userID, refreshToken string) error
	LogoutAllFunc func(ctx context.Context, userID string) error
}

func (m *MockAuthService) Login(ctx context.Context, studentID, password string, client services.ClientInfo) (*models.TokenPair, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, studentID, password, client)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrRefreshTokenInvalid
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, userID, refreshToken)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

// MockLoginHistoryService implements LoginHistoryServiceInterface for testing
type MockLoginHistoryService struct {
	ListRecentFunc func(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error)
}

func (m *MockLoginHistoryService) ListRecent(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error) {
	if m.ListRecentFunc == nil {
		return []*models.LoginHistory{}, nil
	}
	return m.ListRecentFunc(ctx, userID, limit)
}

// MockSignupService implements SignupServiceInterface for testing
type MockSignupService struct {
	SignupFunc func(ctx context.Context, req services.SignupRequest) (*models.User, error)
}

func (m *MockSignupService) Signup(ctx context.Context, req services.SignupRequest) (*models.User, error) {
	if m.SignupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SignupFunc(ctx, req)
}

// MockVerificationService implements VerificationServiceInterface for testing
type MockVerificationService struct {
	VerifyFunc func(ctx context.Context, email, code string) error
	ResendFunc func(ctx context.Context, email string) error
}

func (m *MockVerificationService) Verify(ctx context.Context, email, code string) error {
	if m.VerifyFunc == nil {
		return models.ErrVerificationCodeInvalid
	}
	return m.VerifyFunc(ctx, email, code)
}

func (m *MockVerificationService) Resend(ctx context.Context, email string) error {
	if m.ResendFunc == nil {
		return nil
	}
	return m.ResendFunc(ctx, email)
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	WithdrawFunc      func(ctx context.Context, userID, actorID string) error
	CheckRecoveryFunc func(ctx context.Context, studentID string) (*services.RecoveryStatus, error)
	RecoverFunc       func(ctx context.Context, studentID, password string) (*services.RecoveryResult, error)
}

func (m *MockAccountService) Withdraw(ctx context.Context, userID, actorID string) error {
	if m.WithdrawFunc == nil {
		return nil
	}
	return m.WithdrawFunc(ctx, userID, actorID)
}

func (m *MockAccountService) CheckRecovery(ctx context.Context, studentID string) (*services.RecoveryStatus, error) {
	if m.CheckRecoveryFunc == nil {
		return nil, models.ErrAccountNotRecoverable
	}
	return m.CheckRecoveryFunc(ctx, studentID)
}

func (m *MockAccountService) Recover(ctx context.Context, studentID, password string) (*services.RecoveryResult, error) {
	if m.RecoverFunc == nil {
		return nil, models.ErrAccountNotRecoverable
	}
	return m.RecoverFunc(ctx, studentID, password)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestFunc  func(ctx context.Context, studentID string) error
	ValidateFunc func(ctx context.Context, tokenValue string) error
	ConfirmFunc  func(ctx context.Context, tokenValue, newPassword string) error
}

func (m *MockPasswordResetService) Request(ctx context.Context, studentID string) error {
	if m.RequestFunc == nil {
		return nil
	}
	return m.RequestFunc(ctx, studentID)
}

func (m *MockPasswordResetService) Validate(ctx context.Context, tokenValue string) error {
	if m.ValidateFunc == nil {
		return models.ErrResetTokenInvalid
	}
	return m.ValidateFunc(ctx, tokenValue)
}

func (m *MockPasswordResetService) Confirm(ctx context.Context, tokenValue, newPassword string) error {
	if m.ConfirmFunc == nil {
		return models.ErrResetTokenInvalid
	}
	return m.ConfirmFunc(ctx, tokenValue, newPassword)
}

// MockApprovalService implements ApprovalServiceInterface for testing
type MockApprovalService struct {
	ListPendingFunc func(ctx context.Context, limit, offset int) ([]*models.User, error)
	ApproveFunc     func(ctx context.Context, userID, approverID string) error
	ApproveBulkFunc func(ctx context.Context, userIDs []string, approverID string) *services.BulkApprovalResult
}

func (m *MockApprovalService) ListPending(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListPendingFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListPendingFunc(ctx, limit, offset)
}

func (m *MockApprovalService) Approve(ctx context.Context, userID, approverID string) error {
	if m.ApproveFunc == nil {
		return models.ErrNotFound
	}
	return m.ApproveFunc(ctx, userID, approverID)
}

func (m *MockApprovalService) ApproveBulk(ctx context.Context, userIDs []string, approverID string) *services.BulkApprovalResult {
	if m.ApproveBulkFunc == nil {
		return &services.BulkApprovalResult{}
	}
	return m.ApproveBulkFunc(ctx, userIDs, approverID)
}

// MockSuspensionService implements SuspensionServiceInterface for testing
type MockSuspensionService struct {
	SuspendFunc   func(ctx context.Context, userID, actorID string) error
	UnsuspendFunc func(ctx context.Context, userID, actorID string) error
}

func (m *MockSuspensionService) Suspend(ctx context.Context, userID, actorID string) error {
	if m.SuspendFunc == nil {
		return nil
	}
	return m.SuspendFunc(ctx, userID, actorID)
}

func (m *MockSuspensionService) Unsuspend(ctx context.Context, userID, actorID string) error {
	if m.UnsuspendFunc == nil {
		return nil
	}
	return m.UnsuspendFunc(ctx, userID, actorID)
}
