package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/igrus/authd/internal/models"
	pkgauth "github.com/igrus/authd/pkg/auth"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// ResetUserRepository resolves the account behind a reset request.
type ResetUserRepository interface {
	GetByStudentID(ctx context.Context, studentID string) (*models.User, error)
}

// ResetTokenRepository is the one-time reset token store.
type ResetTokenRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error)
	GetByToken(ctx context.Context, tokenValue string) (*models.PasswordResetToken, error)
	InvalidateAllForUser(ctx context.Context, userID string) error
	MarkUsed(ctx context.Context, id string) error
}

// PasswordUpdater writes the new hash.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, tx pgx.Tx, userID, passwordHash string) error
}

// PasswordResetService implements the forgot-password flow. Requesting a new
// token invalidates all prior ones, so only the latest link works.
type PasswordResetService struct {
	db          Transactor
	users       ResetUserRepository
	tokens      ResetTokenRepository
	credentials PasswordUpdater
	sessions    SessionRevoker
	sender      EmailSender
	tokenExpiry time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewPasswordResetService(
	db Transactor,
	users ResetUserRepository,
	tokens ResetTokenRepository,
	credentials PasswordUpdater,
	sessions SessionRevoker,
	sender EmailSender,
	tokenExpiry time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordResetService {
	return &PasswordResetService{
		db:          db,
		users:       users,
		tokens:      tokens,
		credentials: credentials,
		sessions:    sessions,
		sender:      sender,
		tokenExpiry: tokenExpiry,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Request issues a reset token and mails the link. An unknown student id
// returns success so the endpoint cannot be used to enumerate accounts.
func (s *PasswordResetService) Request(ctx context.Context, studentID string) error {
	user, err := s.users.GetByStudentID(ctx, strings.TrimSpace(studentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown account")
			return nil
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status != models.StatusActive {
		// Same silent success as unknown accounts.
		s.logger.Info("password reset requested for inactive account",
			slog.String("user_id", user.ID),
			slog.String("status", string(user.Status)))
		return nil
	}

	if err := s.tokens.InvalidateAllForUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to invalidate prior reset tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	token := &models.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: time.Now().Add(s.tokenExpiry),
	}

	if _, err := s.tokens.Create(ctx, token); err != nil {
		s.logger.Error("failed to create reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sender.SendPasswordResetLink(ctx, user.Email, token.Token, token.ExpiresAt); err != nil {
		s.logger.Error("failed to send reset link", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.auditLogger.LogAccountAction("password_reset_requested", user.ID, "", nil)
	return nil
}

// Validate pre-checks a token before the user is shown the new-password form.
func (s *PasswordResetService) Validate(ctx context.Context, tokenValue string) error {
	_, err := s.lookupLive(ctx, tokenValue)
	return err
}

// Confirm sets the new password and revokes every live session.
func (s *PasswordResetService) Confirm(ctx context.Context, tokenValue, newPassword string) error {
	token, err := s.lookupLive(ctx, tokenValue)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	// MarkUsed is conditional on used=false, so a concurrent confirm of the
	// same token loses here.
	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		if errors.Is(err, models.ErrResetTokenInvalid) {
			return models.ErrResetTokenInvalid
		}
		s.logger.Error("failed to mark reset token used", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return s.credentials.UpdatePasswordHash(ctx, tx, token.UserID, passwordHash)
	})
	if err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", token.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, token.UserID); err != nil {
		s.logger.Error("failed to revoke sessions after reset", slog.String("user_id", token.UserID), slog.Any("error", err))
	}

	s.logger.Info("password reset completed", slog.String("user_id", token.UserID))
	s.auditLogger.LogPasswordChange(token.UserID, "", true)

	return nil
}

func (s *PasswordResetService) lookupLive(ctx context.Context, tokenValue string) (*models.PasswordResetToken, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return nil, models.ErrResetTokenInvalid
	}

	token, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrResetTokenInvalid
		}
		s.logger.Error("failed to look up reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if token.Used {
		return nil, models.ErrResetTokenInvalid
	}
	if token.IsExpired(time.Now()) {
		return nil, models.ErrResetTokenExpired
	}

	return token, nil
}
