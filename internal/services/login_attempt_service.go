package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/igrus/authd/internal/models"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// LoginAttemptRepository defines the storage operations for the attempt counter
type LoginAttemptRepository interface {
	Get(ctx context.Context, studentID string) (*models.LoginAttempt, error)
	Increment(ctx context.Context, studentID string, at time.Time) (int, error)
	SetLockout(ctx context.Context, studentID string, until time.Time) error
	Reset(ctx context.Context, studentID string) error
}

// LoginAttemptService enforces the consecutive-failure lockout. The window is
// fixed: a lockout that expires does not clear the counter, so the very next
// failure locks the account again. Only a successful login resets the count.
type LoginAttemptService struct {
	repo            LoginAttemptRepository
	maxAttempts     int
	lockoutDuration time.Duration
	logger          *slog.Logger
	auditLogger     *pkglogger.AuditLogger
}

func NewLoginAttemptService(repo LoginAttemptRepository, maxAttempts int, lockoutDuration time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LoginAttemptService {
	return &LoginAttemptService{
		repo:            repo,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		logger:          logger,
		auditLogger:     auditLogger,
	}
}

// Check returns ErrAccountLocked while a lockout is in effect.
func (s *LoginAttemptService) Check(ctx context.Context, studentID string) error {
	attempt, err := s.repo.Get(ctx, studentID)
	if err != nil {
		s.logger.Error("failed to load login attempts", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if attempt != nil && attempt.IsLocked(time.Now()) {
		return models.ErrAccountLocked
	}

	return nil
}

// RecordFailure bumps the counter and starts a lockout once the threshold is
// reached.
func (s *LoginAttemptService) RecordFailure(ctx context.Context, studentID string) error {
	now := time.Now()

	count, err := s.repo.Increment(ctx, studentID, now)
	if err != nil {
		s.logger.Error("failed to increment login attempts", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if count >= s.maxAttempts {
		until := now.Add(s.lockoutDuration)
		if err := s.repo.SetLockout(ctx, studentID, until); err != nil {
			s.logger.Error("failed to set lockout", slog.Any("error", err))
			return models.ErrInternalServer
		}

		s.logger.Warn("account locked after repeated login failures",
			slog.Int("attempt_count", count),
			slog.Time("locked_until", until))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "account_locked",
			FailureReason: "too_many_attempts",
			Success:       false,
		})
	}

	return nil
}

// RecordSuccess clears the counter.
func (s *LoginAttemptService) RecordSuccess(ctx context.Context, studentID string) error {
	if err := s.repo.Reset(ctx, studentID); err != nil {
		s.logger.Error("failed to reset login attempts", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
