package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/models"
)

type LoginHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewLoginHistoryRepository(db *database.DB) *LoginHistoryRepository {
	return &LoginHistoryRepository{pool: db.Pool}
}

func (r *LoginHistoryRepository) Record(ctx context.Context, h *models.LoginHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_histories (id, user_id, student_id, ip_address, user_agent, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		h.ID, h.UserID, h.StudentID, h.IPAddress, h.UserAgent,
		h.Success, h.FailureReason, h.AttemptedAt,
	)
	return database.MapPostgresError(err)
}

// ListRecentByUser returns the newest entries first.
func (r *LoginHistoryRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.LoginHistory, error) {
	query := `
		SELECT id, user_id, student_id, ip_address, user_agent, success, failure_reason, attempted_at
		FROM login_histories
		WHERE user_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login histories: %w", err)
	}

	return scanLoginHistoryRows(rows)
}

func scanLoginHistoryRows(rows pgx.Rows) ([]*models.LoginHistory, error) {
	defer rows.Close()

	histories := make([]*models.LoginHistory, 0)

	for rows.Next() {
		var h models.LoginHistory
		err := rows.Scan(
			&h.ID, &h.UserID, &h.StudentID, &h.IPAddress, &h.UserAgent,
			&h.Success, &h.FailureReason, &h.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login history: %w", err)
		}
		histories = append(histories, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return histories, nil
}

// DeleteOlderThan prunes history past the retention window.
func (r *LoginHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_histories WHERE attempted_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
