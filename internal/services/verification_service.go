package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/igrus/authd/internal/models"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// EmailVerificationRepository defines storage operations for verification codes
type EmailVerificationRepository interface {
	Create(ctx context.Context, v *models.EmailVerification) (*models.EmailVerification, error)
	GetLatestUnverified(ctx context.Context, email string) (*models.EmailVerification, error)
	IncrementAttempts(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
}

// VerificationUserRepository covers the user operations the verification flow
// needs to activate an account.
type VerificationUserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

// VerificationService runs the signup email verification flow: 6-digit codes,
// bounded attempts, resend cool-down.
type VerificationService struct {
	verifications  EmailVerificationRepository
	users          VerificationUserRepository
	sender         EmailSender
	codeExpiry     time.Duration
	maxAttempts    int
	resendCooldown time.Duration
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
}

func NewVerificationService(
	verifications EmailVerificationRepository,
	users VerificationUserRepository,
	sender EmailSender,
	codeExpiry time.Duration,
	maxAttempts int,
	resendCooldown time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *VerificationService {
	return &VerificationService{
		verifications:  verifications,
		users:          users,
		sender:         sender,
		codeExpiry:     codeExpiry,
		maxAttempts:    maxAttempts,
		resendCooldown: resendCooldown,
		logger:         logger,
		auditLogger:    auditLogger,
	}
}

// generateCode returns a uniformly random 6-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue creates a fresh code for the email and mails it. Send failures are
// logged but do not fail the operation; the user can request a resend.
func (s *VerificationService) Issue(ctx context.Context, email string) error {
	code, err := generateCode()
	if err != nil {
		s.logger.Error("failed to generate verification code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	verification := &models.EmailVerification{
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().Add(s.codeExpiry),
	}

	if _, err := s.verifications.Create(ctx, verification); err != nil {
		s.logger.Error("failed to store verification code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sender.SendVerificationCode(ctx, email, code, verification.ExpiresAt); err != nil {
		s.logger.Error("failed to send verification code", slog.Any("error", err))
	}

	return nil
}

// Verify checks a submitted code against the most recent unverified code for
// the email and activates the pending account on success.
func (s *VerificationService) Verify(ctx context.Context, email, code string) error {
	verification, err := s.verifications.GetLatestUnverified(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrVerificationCodeInvalid
		}
		s.logger.Error("failed to load verification code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if verification.IsExpired(now) {
		return models.ErrVerificationCodeExpired
	}
	if !verification.CanAttempt(s.maxAttempts) {
		return models.ErrVerificationAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(verification.Code), []byte(code)) != 1 {
		// The increment is a separate statement so it survives the failed
		// verification.
		if err := s.verifications.IncrementAttempts(ctx, verification.ID); err != nil {
			s.logger.Error("failed to increment verification attempts", slog.Any("error", err))
		}
		return models.ErrVerificationCodeInvalid
	}

	if err := s.verifications.MarkVerified(ctx, verification.ID); err != nil {
		s.logger.Error("failed to mark verification", slog.Any("error", err))
		return models.ErrInternalServer
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Code verified but no pending signup behind it. Nothing to
			// activate.
			return nil
		}
		s.logger.Error("failed to load user for activation", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status == models.StatusPendingVerification {
		if err := s.users.UpdateStatus(ctx, user.ID, models.StatusActive); err != nil {
			s.logger.Error("failed to activate user", slog.String("user_id", user.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		s.logger.Info("account activated", slog.String("user_id", user.ID))
		s.auditLogger.LogAccountAction("email_verified", user.ID, "", nil)
	}

	return nil
}

// Resend issues a new code, subject to the cool-down measured from the most
// recent unverified code.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load user for resend", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status != models.StatusPendingVerification {
		return models.ErrEmailAlreadyVerified
	}

	latest, err := s.verifications.GetLatestUnverified(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to load verification code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if latest != nil && time.Since(latest.CreatedAt) < s.resendCooldown {
		return models.ErrVerificationResendRateLimited
	}

	return s.Issue(ctx, email)
}
