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

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, student_id, name, email, phone_number, department, role, status, deleted_at, deleted_by, withdrawn_at, created_at, updated_at`

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var phoneNumber, department *string

	err := scanner.Scan(
		&user.ID, &user.StudentID, &user.Name, &user.Email,
		&phoneNumber, &department, &user.Role, &user.Status,
		&user.DeletedAt, &user.DeletedBy, &user.WithdrawnAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if phoneNumber != nil {
		user.PhoneNumber = *phoneNumber
	}
	if department != nil {
		user.Department = *department
	}

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// GetByID returns a non-deleted user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByStudentID returns a non-deleted user by student id. Withdrawn accounts
// are invisible here; use GetByStudentIDIncludingDeleted for recovery and
// re-signup checks.
func (r *UserRepository) GetByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE student_id = $1 AND deleted_at IS NULL`
	return scanUserRow(r.pool.QueryRow(ctx, query, studentID))
}

// GetByStudentIDIncludingDeleted returns the most recent user row for a
// student id regardless of soft-delete state.
func (r *UserRepository) GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanUserRow(r.pool.QueryRow(ctx, query, studentID))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) ExistsByStudentID(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE student_id = $1 AND deleted_at IS NULL)`
	err := r.pool.QueryRow(ctx, query, studentID).Scan(&exists)
	return exists, err
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)`
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	return exists, err
}

func (r *UserRepository) ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1 AND deleted_at IS NULL)`
	err := r.pool.QueryRow(ctx, query, phoneNumber).Scan(&exists)
	return exists, err
}

func (r *UserRepository) Create(ctx context.Context, tx pgx.Tx, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, student_id, name, email, phone_number, department, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.Exec(ctx, query,
		user.ID, user.StudentID, user.Name, user.Email,
		nullIfEmpty(user.PhoneNumber), nullIfEmpty(user.Department), user.Role, user.Status,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	query := `UPDATE users SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE users SET role = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, role)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Withdraw soft-deletes the account and stamps the withdrawal moment the
// recovery window is measured from.
func (r *UserRepository) Withdraw(ctx context.Context, tx pgx.Tx, id, actorID string, at time.Time) error {
	query := `
		UPDATE users
		SET status = $2, deleted_at = $3, deleted_by = $4, withdrawn_at = $3, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := tx.Exec(ctx, query, id, models.StatusWithdrawn, at, actorID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Restore reverses a withdrawal inside the recovery window.
func (r *UserRepository) Restore(ctx context.Context, tx pgx.Tx, id string) error {
	query := `
		UPDATE users
		SET status = $2, deleted_at = NULL, deleted_by = NULL, withdrawn_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND deleted_at IS NOT NULL
	`

	tag, err := tx.Exec(ctx, query, id, models.StatusActive)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListWithdrawnBefore returns withdrawn users whose recovery deadline has
// passed, for the purge sweep.
func (r *UserRepository) ListWithdrawnBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE status = $1 AND withdrawn_at IS NOT NULL AND withdrawn_at < $2
		ORDER BY withdrawn_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, models.StatusWithdrawn, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawn users: %w", err)
	}

	return scanUserRows(rows)
}

// Anonymize blanks personal fields on a purged account. The row is kept so
// the student id stays claimable without key reuse.
func (r *UserRepository) Anonymize(ctx context.Context, tx pgx.Tx, id string) error {
	query := `
		UPDATE users
		SET name = 'withdrawn user',
		    email = 'withdrawn-' || id || '@invalid.local',
		    phone_number = NULL,
		    department = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListPendingApproval returns active associates awaiting promotion.
func (r *UserRepository) ListPendingApproval(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE role = $1 AND status = $2 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, models.RoleAssociate, models.StatusActive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending users: %w", err)
	}

	return scanUserRows(rows)
}

// ListUnverifiedBefore returns stale pending-verification signups for the
// cleanup sweep.
func (r *UserRepository) ListUnverifiedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE status = $1 AND created_at < $2 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, models.StatusPendingVerification, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unverified users: %w", err)
	}

	return scanUserRows(rows)
}

// HardDelete removes the user row entirely. Only the stale-signup sweep uses
// this; withdrawn accounts are anonymized, never dropped.
func (r *UserRepository) HardDelete(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return database.MapPostgresError(err)
}
