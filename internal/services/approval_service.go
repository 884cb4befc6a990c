package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/igrus/authd/internal/models"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// ApprovalUserRepository covers the reads and role update for promotion.
type ApprovalUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
	ListPendingApproval(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// ApprovalStamper records who approved the account and when.
type ApprovalStamper interface {
	Approve(ctx context.Context, userID, approverID string, at time.Time) error
}

// BulkApprovalResult summarizes a bulk promotion.
type BulkApprovalResult struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// ApprovalService promotes verified associates to members.
type ApprovalService struct {
	users       ApprovalUserRepository
	credentials ApprovalStamper
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewApprovalService(users ApprovalUserRepository, credentials ApprovalStamper, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *ApprovalService {
	return &ApprovalService{
		users:       users,
		credentials: credentials,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ListPending returns active associates awaiting promotion.
func (s *ApprovalService) ListPending(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.users.ListPendingApproval(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list pending approvals", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// Approve promotes a single associate to member and stamps the approver.
func (s *ApprovalService) Approve(ctx context.Context, userID, approverID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for approval", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Status != models.StatusActive {
		return models.ErrConflict
	}
	if !user.Role.CanTransitionTo(models.RoleMember) {
		return models.ErrConflict
	}

	if err := s.users.UpdateRole(ctx, userID, models.RoleMember); err != nil {
		s.logger.Error("failed to update role", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.credentials.Approve(ctx, userID, approverID, time.Now()); err != nil {
		s.logger.Error("failed to stamp approval", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("associate approved", slog.String("user_id", userID), slog.String("approver_id", approverID))
	s.auditLogger.LogAccountAction("member_approved", userID, "", map[string]string{
		"approver_id": approverID,
	})

	return nil
}

// ApproveBulk promotes a batch. Failures are collected per user so one bad id
// does not abort the rest.
func (s *ApprovalService) ApproveBulk(ctx context.Context, userIDs []string, approverID string) *BulkApprovalResult {
	result := &BulkApprovalResult{
		Approved: make([]string, 0, len(userIDs)),
		Failed:   make(map[string]string),
	}

	for _, id := range userIDs {
		if err := s.Approve(ctx, id, approverID); err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		result.Approved = append(result.Approved, id)
	}

	if len(result.Failed) == 0 {
		result.Failed = nil
	}

	return result
}
