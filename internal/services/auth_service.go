package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/models"
	pkgauth "github.com/igrus/authd/pkg/auth"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// UserRepository covers the user reads the login flow needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*models.User, error)
}

// CredentialReader loads the password hash for verification. The
// including-deleted read is deliberate: a withdrawn account's credential is
// soft-deleted, and the password must still verify before any recovery state
// is disclosed.
type CredentialReader interface {
	GetByUserIDIncludingDeleted(ctx context.Context, userID string) (*models.Credential, error)
}

// LoginGuard enforces the consecutive-failure lockout.
type LoginGuard interface {
	Check(ctx context.Context, studentID string) error
	RecordFailure(ctx context.Context, studentID string) error
	RecordSuccess(ctx context.Context, studentID string) error
}

// RefreshTokenRepository is the opaque refresh token store.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// LoginHistoryRecorder appends audit rows for login outcomes.
type LoginHistoryRecorder interface {
	Record(ctx context.Context, h *models.LoginHistory) error
}

// ClientInfo carries request metadata into the audit trail.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AuthService implements login, logout, and refresh token rotation.
type AuthService struct {
	users          UserRepository
	credentials    CredentialReader
	guard          LoginGuard
	refreshTokens  RefreshTokenRepository
	history        LoginHistoryRecorder
	tm             *auth.TokenManager
	timing         *auth.TimingDelay
	recoveryWindow time.Duration
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
}

func NewAuthService(
	users UserRepository,
	credentials CredentialReader,
	guard LoginGuard,
	refreshTokens RefreshTokenRepository,
	history LoginHistoryRecorder,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	recoveryWindow time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:          users,
		credentials:    credentials,
		guard:          guard,
		refreshTokens:  refreshTokens,
		history:        history,
		tm:             tm,
		timing:         timing,
		recoveryWindow: recoveryWindow,
		logger:         logger,
		auditLogger:    auditLogger,
	}
}

// Login authenticates by student id and password. Checks run in a fixed
// order: lockout, account resolution, password, then lifecycle state. Unknown
// accounts and wrong passwords produce the same ErrInvalidCredentials and
// both count against the lockout threshold. State-specific errors (suspended,
// unverified, recoverable, not recoverable) are only ever returned after a
// correct password, so they carry no enumeration signal.
func (s *AuthService) Login(ctx context.Context, studentID, password string, client ClientInfo) (*models.TokenPair, error) {
	start := time.Now()
	studentID = strings.TrimSpace(studentID)

	if err := s.guard.Check(ctx, studentID); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			s.recordFailure(ctx, "", studentID, client, models.FailureAccountLocked)
		}
		return nil, err
	}

	user, err := s.users.GetByStudentIDIncludingDeleted(ctx, studentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.failInvalidCredentials(ctx, "", studentID, client, start)
		}
		s.logger.Error("failed to get user by student id", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	cred, err := s.credentials.GetByUserIDIncludingDeleted(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.failInvalidCredentials(ctx, user.ID, studentID, client, start)
		}
		s.logger.Error("failed to get credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, password); err != nil {
		if err := s.guard.RecordFailure(ctx, studentID); err != nil {
			return nil, err
		}
		s.recordFailure(ctx, user.ID, studentID, client, models.FailureInvalidCredentials)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     client.IPAddress,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if user.IsDeleted() {
		s.recordFailure(ctx, user.ID, studentID, client, models.FailureAccountWithdrawn)
		if deadline, ok := user.RecoveryDeadline(s.recoveryWindow); ok && start.Before(deadline) {
			return nil, &models.AccountRecoverableError{Deadline: deadline}
		}
		return nil, models.ErrAccountNotRecoverable
	}

	switch user.Status {
	case models.StatusSuspended:
		s.recordFailure(ctx, user.ID, studentID, client, models.FailureAccountSuspended)
		return nil, models.ErrAccountSuspended
	case models.StatusPendingVerification:
		s.recordFailure(ctx, user.ID, studentID, client, models.FailureEmailNotVerified)
		return nil, models.ErrEmailNotVerified
	}

	if err := s.guard.RecordSuccess(ctx, studentID); err != nil {
		return nil, err
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.history.Record(ctx, models.NewLoginSuccess(user.ID, studentID, client.IPAddress, client.UserAgent, time.Now())); err != nil {
		s.logger.Error("failed to record login history", slog.Any("error", err))
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		Success:   true,
	})

	return pair, nil
}

func (s *AuthService) failInvalidCredentials(ctx context.Context, userID, studentID string, client ClientInfo, start time.Time) error {
	if err := s.guard.RecordFailure(ctx, studentID); err != nil {
		return err
	}
	s.recordFailure(ctx, userID, studentID, client, models.FailureInvalidCredentials)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     client.IPAddress,
		FailureReason: "invalid_credentials",
		Success:       false,
	})
	s.timing.WaitFrom(start, false)
	return models.ErrInvalidCredentials
}

func (s *AuthService) recordFailure(ctx context.Context, userID, studentID string, client ClientInfo, reason models.LoginFailureReason) {
	h := models.NewLoginFailure(userID, studentID, client.IPAddress, client.UserAgent, reason, time.Now())
	if err := s.history.Record(ctx, h); err != nil {
		s.logger.Error("failed to record login history", slog.Any("error", err))
	}
}

// IssueTokenPair mints an access token and a stored opaque refresh token for
// the user. Login, refresh rotation, and account recovery all hand out
// sessions through here.
func (s *AuthService) IssueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	_, err = s.refreshTokens.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: pkgauth.HashToken(refreshToken),
		ExpiresAt: time.Now().Add(s.tm.RefreshTokenExpiry()),
	})
	if err != nil {
		s.logger.Error("failed to store refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tm.AccessTokenExpiry().Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. Presenting an already-revoked token is treated as theft
// evidence and revokes every live token for the account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, models.ErrRefreshTokenInvalid
	}

	stored, err := s.refreshTokens.GetByHash(ctx, pkgauth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRefreshTokenInvalid
		}
		s.logger.Error("failed to look up refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stored.Revoked {
		revoked, err := s.refreshTokens.RevokeAllForUser(ctx, stored.UserID)
		if err != nil {
			s.logger.Error("failed to revoke tokens after reuse", slog.String("user_id", stored.UserID), slog.Any("error", err))
		}
		s.logger.Warn("revoked refresh token reused, revoking all sessions",
			slog.String("user_id", stored.UserID),
			slog.Int64("revoked", revoked))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "refresh_token_reuse",
			UserID:        stored.UserID,
			FailureReason: "revoked_token_presented",
			Success:       false,
		})
		return nil, models.ErrRefreshTokenInvalid
	}

	if stored.IsExpired(time.Now()) {
		return nil, models.ErrRefreshTokenExpired
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRefreshTokenInvalid
		}
		s.logger.Error("failed to get user for refresh", slog.String("user_id", stored.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch user.Status {
	case models.StatusActive:
		// proceed
	case models.StatusSuspended:
		return nil, models.ErrAccountSuspended
	default:
		return nil, models.ErrRefreshTokenInvalid
	}

	if err := s.refreshTokens.Revoke(ctx, stored.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Lost the race against a concurrent refresh of the same token.
			return nil, models.ErrRefreshTokenInvalid
		}
		s.logger.Error("failed to revoke refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.IssueTokenPair(ctx, user)
}

// Logout revokes a single session's refresh token. Unknown tokens are a
// no-op so logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	stored, err := s.refreshTokens.GetByHash(ctx, pkgauth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to look up refresh token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if stored.UserID != userID {
		return models.ErrRefreshTokenInvalid
	}

	if err := s.refreshTokens.Revoke(ctx, stored.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to revoke refresh token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// LogoutAll revokes every live refresh token for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	revoked, err := s.refreshTokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to revoke all refresh tokens", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("all sessions revoked",
		slog.String("user_id", userID),
		slog.Int64("revoked", revoked))
	s.auditLogger.LogAccountAction("logout_all", userID, "", nil)

	return nil
}
