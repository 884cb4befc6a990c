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

// Transactor runs a function inside a database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// SignupUserRepository covers user operations during signup.
type SignupUserRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error)
	GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*models.User, error)
	Create(ctx context.Context, tx pgx.Tx, user *models.User) (*models.User, error)
}

// CredentialWriter stores the password credential during signup.
type CredentialWriter interface {
	Create(ctx context.Context, tx pgx.Tx, cred *models.Credential) (*models.Credential, error)
}

// ConsentWriter records the privacy policy consent during signup.
type ConsentWriter interface {
	Create(ctx context.Context, tx pgx.Tx, consent *models.PrivacyConsent) (*models.PrivacyConsent, error)
}

// CodeIssuer sends a fresh verification code for an email.
type CodeIssuer interface {
	Issue(ctx context.Context, email string) error
}

// SignupRequest carries the validated signup fields.
type SignupRequest struct {
	StudentID     string
	Name          string
	Email         string
	PhoneNumber   string
	Department    string
	Password      string
	PolicyVersion string
}

// SignupService creates pending accounts.
type SignupService struct {
	db             Transactor
	users          SignupUserRepository
	credentials    CredentialWriter
	consents       ConsentWriter
	codes          CodeIssuer
	recoveryWindow time.Duration
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
}

func NewSignupService(
	db Transactor,
	users SignupUserRepository,
	credentials CredentialWriter,
	consents ConsentWriter,
	codes CodeIssuer,
	recoveryWindow time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SignupService {
	return &SignupService{
		db:             db,
		users:          users,
		credentials:    credentials,
		consents:       consents,
		codes:          codes,
		recoveryWindow: recoveryWindow,
		logger:         logger,
		auditLogger:    auditLogger,
	}
}

// Signup creates a pending-verification account after duplicate checks and
// issues the first verification code. A student id withdrawn within the
// recovery window cannot re-sign up until the window closes.
func (s *SignupService) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, models.ErrBadRequest
	}

	if err := s.checkDuplicates(ctx, req); err != nil {
		return nil, err
	}

	passwordHash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		StudentID:   req.StudentID,
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Department:  req.Department,
		Role:        models.RoleAssociate,
		Status:      models.StatusPendingVerification,
	}

	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		if _, err := s.credentials.Create(ctx, tx, &models.Credential{
			UserID:       user.ID,
			PasswordHash: passwordHash,
		}); err != nil {
			return err
		}
		if _, err := s.consents.Create(ctx, tx, &models.PrivacyConsent{
			UserID:        user.ID,
			PolicyVersion: req.PolicyVersion,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// A concurrent signup won the unique index race.
			return nil, models.ErrDuplicateStudentID
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Code issuance happens after commit. If it fails the account still
	// exists and the user can request a resend.
	if err := s.codes.Issue(ctx, req.Email); err != nil {
		s.logger.Error("failed to issue verification code after signup",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.logger.Info("account created", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("signup", user.ID, "", map[string]string{
		"policy_version": req.PolicyVersion,
	})

	return user, nil
}

func (s *SignupService) checkDuplicates(ctx context.Context, req SignupRequest) error {
	prior, err := s.users.GetByStudentIDIncludingDeleted(ctx, req.StudentID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check prior account", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if prior != nil {
		if !prior.IsDeleted() {
			return models.ErrDuplicateStudentID
		}
		if deadline, ok := prior.RecoveryDeadline(s.recoveryWindow); ok && time.Now().Before(deadline) {
			return models.ErrRecentWithdrawalExists
		}
	}

	if exists, err := s.users.ExistsByEmail(ctx, req.Email); err != nil {
		s.logger.Error("failed to check email", slog.Any("error", err))
		return models.ErrInternalServer
	} else if exists {
		return models.ErrDuplicateEmail
	}

	if req.PhoneNumber != "" {
		if exists, err := s.users.ExistsByPhoneNumber(ctx, req.PhoneNumber); err != nil {
			s.logger.Error("failed to check phone number", slog.Any("error", err))
			return models.ErrInternalServer
		} else if exists {
			return models.ErrDuplicatePhoneNumber
		}
	}

	return nil
}
