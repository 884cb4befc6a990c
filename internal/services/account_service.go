package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/igrus/authd/internal/models"
	pkgauth "github.com/igrus/authd/pkg/auth"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// AccountUserRepository covers user lifecycle transitions.
type AccountUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*models.User, error)
	Withdraw(ctx context.Context, tx pgx.Tx, id, actorID string, at time.Time) error
	Restore(ctx context.Context, tx pgx.Tx, id string) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

// AccountCredentialRepository covers credential soft-delete alongside the
// user lifecycle.
type AccountCredentialRepository interface {
	GetByUserIDIncludingDeleted(ctx context.Context, userID string) (*models.Credential, error)
	SoftDelete(ctx context.Context, tx pgx.Tx, userID string) error
	Restore(ctx context.Context, tx pgx.Tx, userID string) error
}

// SessionRevoker kills live sessions when the account leaves the active state.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// SessionIssuer mints a fresh token pair once the account is back in the
// active state.
type SessionIssuer interface {
	IssueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error)
}

// RecoveryStatus reports whether a withdrawn account can still come back.
type RecoveryStatus struct {
	Recoverable bool      `json:"recoverable"`
	Deadline    time.Time `json:"deadline"`
}

// RecoveryResult is the outcome of a successful recovery: the restored user
// plus a fresh session, issued the same way a login would.
type RecoveryResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

// AccountService handles withdrawal, recovery, and suspension.
type AccountService struct {
	db             Transactor
	users          AccountUserRepository
	credentials    AccountCredentialRepository
	sessions       SessionRevoker
	issuer         SessionIssuer
	recoveryWindow time.Duration
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
}

func NewAccountService(
	db Transactor,
	users AccountUserRepository,
	credentials AccountCredentialRepository,
	sessions SessionRevoker,
	issuer SessionIssuer,
	recoveryWindow time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AccountService {
	return &AccountService{
		db:             db,
		users:          users,
		credentials:    credentials,
		sessions:       sessions,
		issuer:         issuer,
		recoveryWindow: recoveryWindow,
		logger:         logger,
		auditLogger:    auditLogger,
	}
}

// Withdraw soft-deletes the account, its credential, and revokes every live
// session. The account remains recoverable until the window closes.
func (s *AccountService) Withdraw(ctx context.Context, userID, actorID string) error {
	now := time.Now()

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.users.Withdraw(ctx, tx, userID, actorID, now); err != nil {
			return err
		}
		return s.credentials.SoftDelete(ctx, tx, userID)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to withdraw account", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to revoke sessions on withdrawal", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("account withdrawn", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("withdraw", userID, "", map[string]string{
		"actor_id": actorID,
	})

	return nil
}

// CheckRecovery reports recovery eligibility for a student id.
func (s *AccountService) CheckRecovery(ctx context.Context, studentID string) (*RecoveryStatus, error) {
	user, err := s.users.GetByStudentIDIncludingDeleted(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotRecoverable
		}
		s.logger.Error("failed to get user for recovery check", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	deadline, ok := user.RecoveryDeadline(s.recoveryWindow)
	if !ok || !time.Now().Before(deadline) {
		return nil, models.ErrAccountNotRecoverable
	}

	return &RecoveryStatus{Recoverable: true, Deadline: deadline}, nil
}

// Recover restores a withdrawn account inside the window after verifying the
// password, and signs the user straight in with a fresh token pair.
func (s *AccountService) Recover(ctx context.Context, studentID, password string) (*RecoveryResult, error) {
	user, err := s.users.GetByStudentIDIncludingDeleted(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotRecoverable
		}
		s.logger.Error("failed to get user for recovery", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	deadline, ok := user.RecoveryDeadline(s.recoveryWindow)
	if !ok || !time.Now().Before(deadline) {
		return nil, models.ErrAccountNotRecoverable
	}

	cred, err := s.credentials.GetByUserIDIncludingDeleted(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotRecoverable
		}
		s.logger.Error("failed to get credential for recovery", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.users.Restore(ctx, tx, user.ID); err != nil {
			return err
		}
		return s.credentials.Restore(ctx, tx, user.ID)
	})
	if err != nil {
		s.logger.Error("failed to restore account", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user.Restore()

	pair, err := s.issuer.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account recovered", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("recover", user.ID, "", nil)

	return &RecoveryResult{User: user, Tokens: pair}, nil
}

// Suspend blocks the account and kills its sessions.
func (s *AccountService) Suspend(ctx context.Context, userID, actorID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for suspension", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status == models.StatusSuspended {
		return models.ErrConflict
	}

	if err := s.users.UpdateStatus(ctx, userID, models.StatusSuspended); err != nil {
		s.logger.Error("failed to suspend user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to revoke sessions on suspension", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("account suspended", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("suspend", userID, "", map[string]string{
		"actor_id": actorID,
	})

	return nil
}

// Unsuspend lifts a suspension.
func (s *AccountService) Unsuspend(ctx context.Context, userID, actorID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for unsuspension", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status != models.StatusSuspended {
		return models.ErrConflict
	}

	if err := s.users.UpdateStatus(ctx, userID, models.StatusActive); err != nil {
		s.logger.Error("failed to unsuspend user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("account suspension lifted", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("unsuspend", userID, "", map[string]string{
		"actor_id": actorID,
	})

	return nil
}
