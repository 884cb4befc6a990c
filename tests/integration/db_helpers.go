package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/models"
	"github.com/igrus/authd/internal/repositories"
	"github.com/igrus/authd/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("authd"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a database/sql handle; borrow one through the pgx stdlib adapter
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"privacy_consents",
		"login_histories",
		"password_reset_tokens",
		"refresh_tokens",
		"login_attempts",
		"email_verifications",
		"password_credentials",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// Repos bundles the repository instances backed by the test database.
type Repos struct {
	Users         *repositories.UserRepository
	Credentials   *repositories.CredentialRepository
	Verifications *repositories.EmailVerificationRepository
	LoginAttempts *repositories.LoginAttemptRepository
	RefreshTokens *repositories.RefreshTokenRepository
	ResetTokens   *repositories.PasswordResetRepository
	LoginHistory  *repositories.LoginHistoryRepository
	Consents      *repositories.PrivacyConsentRepository
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) *Repos {
	return &Repos{
		Users:         repositories.NewUserRepository(db),
		Credentials:   repositories.NewCredentialRepository(db),
		Verifications: repositories.NewEmailVerificationRepository(db),
		LoginAttempts: repositories.NewLoginAttemptRepository(db),
		RefreshTokens: repositories.NewRefreshTokenRepository(db),
		ResetTokens:   repositories.NewPasswordResetRepository(db),
		LoginHistory:  repositories.NewLoginHistoryRepository(db),
		Consents:      repositories.NewPrivacyConsentRepository(db),
	}
}

// SeedUser inserts a user plus an approved password credential so the account
// can log in. Status controls the lifecycle state directly.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, studentID, email, password string, status models.UserStatus) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Name:      "Test User " + studentID,
		Email:     email,
		Role:      models.RoleMember,
		Status:    status,
	}

	userQuery := `
		INSERT INTO users (id, student_id, name, email, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	if err := pool.QueryRow(ctx, userQuery,
		user.ID, user.StudentID, user.Name, user.Email, string(user.Role), string(user.Status),
	).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	credQuery := `
		INSERT INTO password_credentials (id, user_id, password_hash, approved_at, approved_by, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), 'seed', NOW(), NOW())
	`
	if _, err := pool.Exec(ctx, credQuery, uuid.New().String(), user.ID, hashedPassword); err != nil {
		return nil, fmt.Errorf("failed to insert credential: %w", err)
	}

	return user, nil
}

// SeedOperator inserts an active operator account for admin-route tests.
func SeedOperator(ctx context.Context, pool *pgxpool.Pool, studentID, email, password string) (*models.User, error) {
	user, err := SeedUser(ctx, pool, studentID, email, password, models.StatusActive)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `UPDATE users SET role = 'operator' WHERE id = $1`, user.ID); err != nil {
		return nil, fmt.Errorf("failed to promote operator: %w", err)
	}
	user.Role = models.RoleOperator
	return user, nil
}

// SeedWithdrawnUser inserts an account withdrawn withdrawnAgo before now. The
// recovery window check runs against withdrawn_at, so tests shift it to land
// inside or past the window.
func SeedWithdrawnUser(ctx context.Context, pool *pgxpool.Pool, studentID, email, password string, withdrawnAgo time.Duration) (*models.User, error) {
	user, err := SeedUser(ctx, pool, studentID, email, password, models.StatusWithdrawn)
	if err != nil {
		return nil, err
	}

	withdrawnAt := time.Now().Add(-withdrawnAgo)
	query := `
		UPDATE users
		SET deleted_at = $2, deleted_by = id::text, withdrawn_at = $2
		WHERE id = $1
	`
	if _, err := pool.Exec(ctx, query, user.ID, withdrawnAt); err != nil {
		return nil, fmt.Errorf("failed to mark user withdrawn: %w", err)
	}
	user.WithdrawnAt = &withdrawnAt
	user.DeletedAt = &withdrawnAt
	return user, nil
}

// SeedVerificationCode inserts a pending email verification code.
func SeedVerificationCode(ctx context.Context, pool *pgxpool.Pool, email, code string, expiresAt time.Time) error {
	query := `
		INSERT INTO email_verifications (id, email, code, attempts, verified, expires_at, created_at)
		VALUES ($1, $2, $3, 0, FALSE, $4, NOW())
	`
	if _, err := pool.Exec(ctx, query, uuid.New().String(), email, code, expiresAt); err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}
	return nil
}

// LatestVerificationCode reads the newest code issued for an email address.
func LatestVerificationCode(ctx context.Context, pool *pgxpool.Pool, email string) (string, error) {
	var code string
	query := `
		SELECT code FROM email_verifications
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := pool.QueryRow(ctx, query, email).Scan(&code); err != nil {
		return "", fmt.Errorf("failed to read verification code: %w", err)
	}
	return code, nil
}
