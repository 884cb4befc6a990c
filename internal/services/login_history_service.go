package services

import (
	"context"
	"log/slog"

	"github.com/igrus/authd/internal/models"
)

const defaultHistoryLimit = 20

// LoginHistoryRepository reads the audit trail back out.
type LoginHistoryRepository interface {
	Record(ctx context.Context, h *models.LoginHistory) error
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error)
}

// LoginHistoryService exposes a user's recent login activity.
type LoginHistoryService struct {
	repo   LoginHistoryRepository
	logger *slog.Logger
}

func NewLoginHistoryService(repo LoginHistoryRepository, logger *slog.Logger) *LoginHistoryService {
	return &LoginHistoryService{repo: repo, logger: logger}
}

func (s *LoginHistoryService) ListRecent(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}

	histories, err := s.repo.ListRecentByUser(ctx, userID, limit)
	if err != nil {
		s.logger.Error("failed to list login history", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return histories, nil
}
