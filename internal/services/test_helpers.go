package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/igrus/authd/internal/models"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

func newTestLogger() (*slog.Logger, *pkglogger.AuditLogger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return logger, pkglogger.NewAuditLogger(logger)
}

// MockTransactor runs the function without a real transaction.
type MockTransactor struct {
	WithTransactionFunc func(ctx context.Context, fn func(pgx.Tx) error) error
}

func (m *MockTransactor) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(nil)
}

// MockUserRepository implements the user repository interfaces for testing
type MockUserRepository struct {
	GetByIDFunc                        func(ctx context.Context, id string) (*models.User, error)
	GetByStudentIDFunc                 func(ctx context.Context, studentID string) (*models.User, error)
	GetByStudentIDIncludingDeletedFunc func(ctx context.Context, studentID string) (*models.User, error)
	GetByEmailFunc                     func(ctx context.Context, email string) (*models.User, error)
	ExistsByEmailFunc                  func(ctx context.Context, email string) (bool, error)
	ExistsByPhoneNumberFunc            func(ctx context.Context, phoneNumber string) (bool, error)
	CreateFunc                         func(ctx context.Context, tx pgx.Tx, user *models.User) (*models.User, error)
	UpdateStatusFunc                   func(ctx context.Context, id string, status models.UserStatus) error
	UpdateRoleFunc                     func(ctx context.Context, id string, role models.Role) error
	WithdrawFunc                       func(ctx context.Context, tx pgx.Tx, id, actorID string, at time.Time) error
	RestoreFunc                        func(ctx context.Context, tx pgx.Tx, id string) error
	ListPendingApprovalFunc            func(ctx context.Context, limit, offset int) ([]*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	if m.GetByStudentIDFunc != nil {
		return m.GetByStudentIDFunc(ctx, studentID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*models.User, error) {
	if m.GetByStudentIDIncludingDeletedFunc != nil {
		return m.GetByStudentIDIncludingDeletedFunc(ctx, studentID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.ExistsByEmailFunc != nil {
		return m.ExistsByEmailFunc(ctx, email)
	}
	return false, nil
}

func (m *MockUserRepository) ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	if m.ExistsByPhoneNumberFunc != nil {
		return m.ExistsByPhoneNumberFunc(ctx, phoneNumber)
	}
	return false, nil
}

func (m *MockUserRepository) Create(ctx context.Context, tx pgx.Tx, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, user)
	}
	user.ID = "user-created"
	return user, nil
}

func (m *MockUserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil
}

func (m *MockUserRepository) Withdraw(ctx context.Context, tx pgx.Tx, id, actorID string, at time.Time) error {
	if m.WithdrawFunc != nil {
		return m.WithdrawFunc(ctx, tx, id, actorID, at)
	}
	return nil
}

func (m *MockUserRepository) Restore(ctx context.Context, tx pgx.Tx, id string) error {
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, tx, id)
	}
	return nil
}

func (m *MockUserRepository) ListPendingApproval(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListPendingApprovalFunc != nil {
		return m.ListPendingApprovalFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

// MockCredentialRepository implements the credential interfaces for testing
type MockCredentialRepository struct {
	GetByUserIDFunc                 func(ctx context.Context, userID string) (*models.Credential, error)
	GetByUserIDIncludingDeletedFunc func(ctx context.Context, userID string) (*models.Credential, error)
	CreateFunc                      func(ctx context.Context, tx pgx.Tx, cred *models.Credential) (*models.Credential, error)
	UpdatePasswordHashFunc          func(ctx context.Context, tx pgx.Tx, userID, passwordHash string) error
	ApproveFunc                     func(ctx context.Context, userID, approverID string, at time.Time) error
	SoftDeleteFunc                  func(ctx context.Context, tx pgx.Tx, userID string) error
	RestoreFunc                     func(ctx context.Context, tx pgx.Tx, userID string) error
}

func (m *MockCredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) GetByUserIDIncludingDeleted(ctx context.Context, userID string) (*models.Credential, error) {
	if m.GetByUserIDIncludingDeletedFunc != nil {
		return m.GetByUserIDIncludingDeletedFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) Create(ctx context.Context, tx pgx.Tx, cred *models.Credential) (*models.Credential, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, cred)
	}
	return cred, nil
}

func (m *MockCredentialRepository) UpdatePasswordHash(ctx context.Context, tx pgx.Tx, userID, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, tx, userID, passwordHash)
	}
	return nil
}

func (m *MockCredentialRepository) Approve(ctx context.Context, userID, approverID string, at time.Time) error {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, userID, approverID, at)
	}
	return nil
}

func (m *MockCredentialRepository) SoftDelete(ctx context.Context, tx pgx.Tx, userID string) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, tx, userID)
	}
	return nil
}

func (m *MockCredentialRepository) Restore(ctx context.Context, tx pgx.Tx, userID string) error {
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, tx, userID)
	}
	return nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	GetFunc        func(ctx context.Context, studentID string) (*models.LoginAttempt, error)
	IncrementFunc  func(ctx context.Context, studentID string, at time.Time) (int, error)
	SetLockoutFunc func(ctx context.Context, studentID string, until time.Time) error
	ResetFunc      func(ctx context.Context, studentID string) error
}

func (m *MockLoginAttemptRepository) Get(ctx context.Context, studentID string) (*models.LoginAttempt, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, studentID)
	}
	return nil, nil
}

func (m *MockLoginAttemptRepository) Increment(ctx context.Context, studentID string, at time.Time) (int, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, studentID, at)
	}
	return 1, nil
}

func (m *MockLoginAttemptRepository) SetLockout(ctx context.Context, studentID string, until time.Time) error {
	if m.SetLockoutFunc != nil {
		return m.SetLockoutFunc(ctx, studentID, until)
	}
	return nil
}

func (m *MockLoginAttemptRepository) Reset(ctx context.Context, studentID string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, studentID)
	}
	return nil
}

// MockLoginGuard implements LoginGuard for testing
type MockLoginGuard struct {
	CheckFunc         func(ctx context.Context, studentID string) error
	RecordFailureFunc func(ctx context.Context, studentID string) error
	RecordSuccessFunc func(ctx context.Context, studentID string) error
}

func (m *MockLoginGuard) Check(ctx context.Context, studentID string) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, studentID)
	}
	return nil
}

func (m *MockLoginGuard) RecordFailure(ctx context.Context, studentID string) error {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, studentID)
	}
	return nil
}

func (m *MockLoginGuard) RecordSuccess(ctx context.Context, studentID string) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, studentID)
	}
	return nil
}

// MockRefreshTokenRepository implements RefreshTokenRepository for testing
type MockRefreshTokenRepository struct {
	CreateFunc           func(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetByHashFunc        func(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeFunc           func(ctx context.Context, id string) error
	RevokeAllForUserFunc func(ctx context.Context, userID string) (int64, error)
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	token.ID = "token-created"
	return token, nil
}

func (m *MockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id)
	}
	return nil
}

func (m *MockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockSessionIssuer implements SessionIssuer for testing
type MockSessionIssuer struct {
	IssueTokenPairFunc func(ctx context.Context, user *models.User) (*models.TokenPair, error)
}

func (m *MockSessionIssuer) IssueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	if m.IssueTokenPairFunc != nil {
		return m.IssueTokenPairFunc(ctx, user)
	}
	return &models.TokenPair{
		AccessToken:  "access-issued",
		RefreshToken: "refresh-issued",
		ExpiresIn:    1800,
	}, nil
}

// MockLoginHistoryRepository implements LoginHistoryRepository for testing
type MockLoginHistoryRepository struct {
	RecordFunc           func(ctx context.Context, h *models.LoginHistory) error
	ListRecentByUserFunc func(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error)
}

func (m *MockLoginHistoryRepository) Record(ctx context.Context, h *models.LoginHistory) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, h)
	}
	return nil
}

func (m *MockLoginHistoryRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error) {
	if m.ListRecentByUserFunc != nil {
		return m.ListRecentByUserFunc(ctx, userID, limit)
	}
	return []*models.LoginHistory{}, nil
}

// MockEmailVerificationRepository implements EmailVerificationRepository for testing
type MockEmailVerificationRepository struct {
	CreateFunc              func(ctx context.Context, v *models.EmailVerification) (*models.EmailVerification, error)
	GetLatestUnverifiedFunc func(ctx context.Context, email string) (*models.EmailVerification, error)
	IncrementAttemptsFunc   func(ctx context.Context, id string) error
	MarkVerifiedFunc        func(ctx context.Context, id string) error
}

func (m *MockEmailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) (*models.EmailVerification, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, v)
	}
	v.ID = "verification-created"
	return v, nil
}

func (m *MockEmailVerificationRepository) GetLatestUnverified(ctx context.Context, email string) (*models.EmailVerification, error) {
	if m.GetLatestUnverifiedFunc != nil {
		return m.GetLatestUnverifiedFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailVerificationRepository) IncrementAttempts(ctx context.Context, id string) error {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return nil
}

func (m *MockEmailVerificationRepository) MarkVerified(ctx context.Context, id string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return nil
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendVerificationCodeFunc  func(ctx context.Context, email, code string, expiresAt time.Time) error
	SendPasswordResetLinkFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
}

func (m *MockEmailSender) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

func (m *MockEmailSender) SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetLinkFunc != nil {
		return m.SendPasswordResetLinkFunc(ctx, email, token, expiresAt)
	}
	return nil
}

// MockResetTokenRepository implements ResetTokenRepository for testing
type MockResetTokenRepository struct {
	CreateFunc               func(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error)
	GetByTokenFunc           func(ctx context.Context, tokenValue string) (*models.PasswordResetToken, error)
	InvalidateAllForUserFunc func(ctx context.Context, userID string) error
	MarkUsedFunc             func(ctx context.Context, id string) error
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	token.ID = "reset-created"
	return token, nil
}

func (m *MockResetTokenRepository) GetByToken(ctx context.Context, tokenValue string) (*models.PasswordResetToken, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, tokenValue)
	}
	return nil, models.ErrNotFound
}

func (m *MockResetTokenRepository) InvalidateAllForUser(ctx context.Context, userID string) error {
	if m.InvalidateAllForUserFunc != nil {
		return m.InvalidateAllForUserFunc(ctx, userID)
	}
	return nil
}

func (m *MockResetTokenRepository) MarkUsed(ctx context.Context, id string) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id)
	}
	return nil
}

// MockConsentWriter implements ConsentWriter for testing
type MockConsentWriter struct {
	CreateFunc func(ctx context.Context, tx pgx.Tx, consent *models.PrivacyConsent) (*models.PrivacyConsent, error)
}

func (m *MockConsentWriter) Create(ctx context.Context, tx pgx.Tx, consent *models.PrivacyConsent) (*models.PrivacyConsent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, consent)
	}
	return consent, nil
}

// MockCodeIssuer implements CodeIssuer for testing
type MockCodeIssuer struct {
	IssueFunc func(ctx context.Context, email string) error
}

func (m *MockCodeIssuer) Issue(ctx context.Context, email string) error {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email)
	}
	return nil
}
