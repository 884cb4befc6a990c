package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/models"
)

type EmailVerificationRepository struct {
	pool *pgxpool.Pool
}

func NewEmailVerificationRepository(db *database.DB) *EmailVerificationRepository {
	return &EmailVerificationRepository{pool: db.Pool}
}

const verificationColumns = `id, email, code, attempts, verified, expires_at, created_at`

func scanVerificationRow(scanner rowScanner) (*models.EmailVerification, error) {
	var v models.EmailVerification

	err := scanner.Scan(
		&v.ID, &v.Email, &v.Code, &v.Attempts, &v.Verified,
		&v.ExpiresAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &v, nil
}

func (r *EmailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) (*models.EmailVerification, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	query := `
		INSERT INTO email_verifications (id, email, code, attempts, verified, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.Email, v.Code, v.Attempts, v.Verified, v.ExpiresAt, v.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return v, nil
}

// GetLatestUnverified returns the most recent unverified code for an email.
// Older rows are kept as history but are never actionable.
func (r *EmailVerificationRepository) GetLatestUnverified(ctx context.Context, email string) (*models.EmailVerification, error) {
	query := `
		SELECT ` + verificationColumns + ` FROM email_verifications
		WHERE email = $1 AND verified = false
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanVerificationRow(r.pool.QueryRow(ctx, query, email))
}

// IncrementAttempts bumps the failed-attempt counter. Runs outside any
// transaction so the increment survives a failed verification.
func (r *EmailVerificationRepository) IncrementAttempts(ctx context.Context, id string) error {
	query := `UPDATE email_verifications SET attempts = attempts + 1 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *EmailVerificationRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE email_verifications SET verified = true WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// HasVerified reports whether the email ever completed verification.
func (r *EmailVerificationRepository) HasVerified(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM email_verifications WHERE email = $1 AND verified = true)`
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	return exists, err
}

// DeleteByEmail removes all verification rows for an email. Used by the purge
// sweep and the stale-signup sweep.
func (r *EmailVerificationRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verifications WHERE email = $1`, email)
	return database.MapPostgresError(err)
}

// DeleteExpiredBefore removes unverified codes that expired before the cutoff.
func (r *EmailVerificationRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM email_verifications WHERE verified = false AND expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
