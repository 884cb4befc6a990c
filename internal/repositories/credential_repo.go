package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/models"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{pool: db.Pool}
}

const credentialColumns = `id, user_id, password_hash, approved_at, approved_by, deleted_at, created_at, updated_at`

func scanCredentialRow(scanner rowScanner) (*models.Credential, error) {
	var cred models.Credential

	err := scanner.Scan(
		&cred.ID, &cred.UserID, &cred.PasswordHash,
		&cred.ApprovedAt, &cred.ApprovedBy, &cred.DeletedAt,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

func (r *CredentialRepository) Create(ctx context.Context, tx pgx.Tx, cred *models.Credential) (*models.Credential, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	query := `
		INSERT INTO password_credentials (id, user_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.Exec(ctx, query, cred.ID, cred.UserID, cred.PasswordHash, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return cred, nil
}

// GetByUserID returns the non-deleted credential for a user.
func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM password_credentials WHERE user_id = $1 AND deleted_at IS NULL`
	return scanCredentialRow(r.pool.QueryRow(ctx, query, userID))
}

// GetByUserIDIncludingDeleted returns the credential regardless of
// soft-delete state. Recovery verifies the password of a withdrawn account
// through this.
func (r *CredentialRepository) GetByUserIDIncludingDeleted(ctx context.Context, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM password_credentials WHERE user_id = $1`
	return scanCredentialRow(r.pool.QueryRow(ctx, query, userID))
}

func (r *CredentialRepository) UpdatePasswordHash(ctx context.Context, tx pgx.Tx, userID, passwordHash string) error {
	query := `
		UPDATE password_credentials
		SET password_hash = $2, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND deleted_at IS NULL
	`

	tag, err := tx.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Approve stamps the operator who promoted the account.
func (r *CredentialRepository) Approve(ctx context.Context, userID, approverID string, at time.Time) error {
	query := `
		UPDATE password_credentials
		SET approved_at = $3, approved_by = $2, updated_at = $3
		WHERE user_id = $1 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, userID, approverID, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) SoftDelete(ctx context.Context, tx pgx.Tx, userID string) error {
	query := `
		UPDATE password_credentials
		SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	_, err := tx.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}

func (r *CredentialRepository) Restore(ctx context.Context, tx pgx.Tx, userID string) error {
	query := `
		UPDATE password_credentials
		SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND deleted_at IS NOT NULL
	`
	_, err := tx.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}

// HardDeleteByUserID removes credential rows during the purge sweep.
func (r *CredentialRepository) HardDeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM password_credentials WHERE user_id = $1`, userID)
	return database.MapPostgresError(err)
}
