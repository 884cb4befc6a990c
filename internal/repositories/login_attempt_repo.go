package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/models"
)

type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

// Get returns the attempt counter for a student id, or nil when no failures
// have been recorded.
func (r *LoginAttemptRepository) Get(ctx context.Context, studentID string) (*models.LoginAttempt, error) {
	query := `
		SELECT id, student_id, attempt_count, last_attempt_at, locked_until, created_at, updated_at
		FROM login_attempts
		WHERE student_id = $1
	`

	var a models.LoginAttempt
	err := r.pool.QueryRow(ctx, query, studentID).Scan(
		&a.ID, &a.StudentID, &a.AttemptCount, &a.LastAttemptAt,
		&a.LockedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

// Increment bumps the failure counter with a single atomic upsert and returns
// the new count. Concurrent failures serialize on the row, so the counter
// never under-counts.
func (r *LoginAttemptRepository) Increment(ctx context.Context, studentID string, at time.Time) (int, error) {
	query := `
		INSERT INTO login_attempts (student_id, attempt_count, last_attempt_at, created_at, updated_at)
		VALUES ($1, 1, $2, $2, $2)
		ON CONFLICT (student_id) DO UPDATE
		SET attempt_count = login_attempts.attempt_count + 1,
		    last_attempt_at = $2,
		    updated_at = $2
		RETURNING attempt_count
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, studentID, at).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// SetLockout stamps the moment the lockout expires.
func (r *LoginAttemptRepository) SetLockout(ctx context.Context, studentID string, until time.Time) error {
	query := `
		UPDATE login_attempts
		SET locked_until = $2, updated_at = CURRENT_TIMESTAMP
		WHERE student_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, studentID, until)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Reset clears the counter. Called only on successful login; lockout expiry
// alone never resets the count.
func (r *LoginAttemptRepository) Reset(ctx context.Context, studentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE student_id = $1`, studentID)
	return database.MapPostgresError(err)
}

// DeleteStaleBefore drops counters untouched since the cutoff.
func (r *LoginAttemptRepository) DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE last_attempt_at < $1 AND (locked_until IS NULL OR locked_until < CURRENT_TIMESTAMP)`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
