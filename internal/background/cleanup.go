package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/igrus/authd/internal/models"
)

// Transactor runs a function inside a database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// CleanupUserRepository covers the user operations the sweeps need.
type CleanupUserRepository interface {
	ListUnverifiedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error)
	ListWithdrawnBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error)
	HardDelete(ctx context.Context, tx pgx.Tx, id string) error
	Anonymize(ctx context.Context, tx pgx.Tx, id string) error
}

type CleanupCredentialRepository interface {
	HardDeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error
}

type CleanupRefreshTokenRepository interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, chunkSize int) (int64, error)
	HardDeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error
}

type CleanupConsentRepository interface {
	HardDeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error
}

type CleanupVerificationRepository interface {
	DeleteByEmail(ctx context.Context, email string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	HasVerified(ctx context.Context, email string) (bool, error)
}

type CleanupResetTokenRepository interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	HardDeleteByUserID(ctx context.Context, userID string) error
}

type CleanupLoginHistoryRepository interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupLoginAttemptRepository interface {
	DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the intervals and retention windows for all sweeps.
type Config struct {
	RefreshTokenInterval  time.Duration
	UnverifiedInterval    time.Duration
	WithdrawnInterval     time.Duration
	LoginHistoryInterval  time.Duration
	LoginAttemptInterval  time.Duration
	UnverifiedRetention   time.Duration
	RecoveryWindow        time.Duration
	LoginHistoryRetention time.Duration
	LoginAttemptRetention time.Duration
	DeleteBatchSize       int
}

// CleanupManager runs five independent sweeps, each on its own ticker:
// expired refresh tokens, stale unverified signups, withdrawn accounts past
// their recovery deadline, aged login history, and stale lockout counters.
// A failing sweep never blocks the others.
type CleanupManager struct {
	db            Transactor
	users         CleanupUserRepository
	credentials   CleanupCredentialRepository
	refreshTokens CleanupRefreshTokenRepository
	consents      CleanupConsentRepository
	verifications CleanupVerificationRepository
	resetTokens   CleanupResetTokenRepository
	histories     CleanupLoginHistoryRepository
	attempts      CleanupLoginAttemptRepository
	cfg           Config
	logger        *slog.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

func NewCleanupManager(
	db Transactor,
	users CleanupUserRepository,
	credentials CleanupCredentialRepository,
	refreshTokens CleanupRefreshTokenRepository,
	consents CleanupConsentRepository,
	verifications CleanupVerificationRepository,
	resetTokens CleanupResetTokenRepository,
	histories CleanupLoginHistoryRepository,
	attempts CleanupLoginAttemptRepository,
	cfg Config,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		db:            db,
		users:         users,
		credentials:   credentials,
		refreshTokens: refreshTokens,
		consents:      consents,
		verifications: verifications,
		resetTokens:   resetTokens,
		histories:     histories,
		attempts:      attempts,
		cfg:           cfg,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

type sweep struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int64, error)
}

// Start launches one goroutine per sweep. Each runs immediately on startup
// and then on its own interval.
func (cm *CleanupManager) Start(ctx context.Context) {
	sweeps := []sweep{
		{"expired_refresh_tokens", cm.cfg.RefreshTokenInterval, cm.sweepRefreshTokens},
		{"stale_unverified_signups", cm.cfg.UnverifiedInterval, cm.sweepUnverifiedSignups},
		{"withdrawn_past_deadline", cm.cfg.WithdrawnInterval, cm.sweepWithdrawnAccounts},
		{"aged_login_history", cm.cfg.LoginHistoryInterval, cm.sweepLoginHistory},
		{"stale_login_attempts", cm.cfg.LoginAttemptInterval, cm.sweepLoginAttempts},
	}

	for _, sw := range sweeps {
		cm.wg.Add(1)
		go cm.loop(ctx, sw)
	}
}

func (cm *CleanupManager) loop(ctx context.Context, sw sweep) {
	defer cm.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	cm.runSweep(ctx, sw)

	for {
		select {
		case <-ticker.C:
			cm.runSweep(ctx, sw)
		case <-cm.stopCh:
			cm.logger.Info("cleanup sweep stopped", slog.String("sweep", sw.name))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) runSweep(ctx context.Context, sw sweep) {
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("cleanup sweep panicked",
				slog.String("sweep", sw.name),
				slog.Any("panic", r))
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	processed, err := sw.run(sweepCtx)
	if err != nil {
		cm.logger.Error("cleanup sweep failed",
			slog.String("sweep", sw.name),
			slog.Any("error", err))
		return
	}

	if processed > 0 {
		cm.logger.Info("cleanup sweep completed",
			slog.String("sweep", sw.name),
			slog.Int64("processed", processed))
	}
}

// Stop signals all sweeps to stop and waits for them to finish.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
	cm.wg.Wait()
}

func (cm *CleanupManager) sweepRefreshTokens(ctx context.Context) (int64, error) {
	return cm.refreshTokens.DeleteExpiredBefore(ctx, time.Now(), cm.cfg.DeleteBatchSize)
}

// sweepUnverifiedSignups hard-deletes pending accounts whose verification
// never completed within the retention window, along with their verification
// rows. Emails that ever verified are left alone.
func (cm *CleanupManager) sweepUnverifiedSignups(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-cm.cfg.UnverifiedRetention)

	users, err := cm.users.ListUnverifiedBefore(ctx, cutoff, cm.cfg.DeleteBatchSize)
	if err != nil {
		return 0, err
	}

	var processed int64
	var firstErr error

	for _, user := range users {
		verified, err := cm.verifications.HasVerified(ctx, user.Email)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if verified {
			continue
		}

		err = cm.db.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := cm.credentials.HardDeleteByUserID(ctx, tx, user.ID); err != nil {
				return err
			}
			if err := cm.consents.HardDeleteByUserID(ctx, tx, user.ID); err != nil {
				return err
			}
			return cm.users.HardDelete(ctx, tx, user.ID)
		})
		if err != nil {
			cm.logger.Error("failed to delete stale signup",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := cm.verifications.DeleteByEmail(ctx, user.Email); err != nil && !errors.Is(err, models.ErrNotFound) {
			cm.logger.Error("failed to delete verification rows",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}

		processed++
	}

	// Orphaned expired codes with no account behind them.
	deleted, err := cm.verifications.DeleteExpiredBefore(ctx, cutoff)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	processed += deleted

	return processed, firstErr
}

// sweepWithdrawnAccounts purges accounts whose recovery window has closed:
// credentials, consents, and tokens are hard-deleted and the user row is
// anonymized.
func (cm *CleanupManager) sweepWithdrawnAccounts(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-cm.cfg.RecoveryWindow)

	users, err := cm.users.ListWithdrawnBefore(ctx, cutoff, cm.cfg.DeleteBatchSize)
	if err != nil {
		return 0, err
	}

	var processed int64
	var firstErr error

	for _, user := range users {
		email := user.Email

		err := cm.db.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := cm.credentials.HardDeleteByUserID(ctx, tx, user.ID); err != nil {
				return err
			}
			if err := cm.consents.HardDeleteByUserID(ctx, tx, user.ID); err != nil {
				return err
			}
			if err := cm.refreshTokens.HardDeleteByUserID(ctx, tx, user.ID); err != nil {
				return err
			}
			return cm.users.Anonymize(ctx, tx, user.ID)
		})
		if err != nil {
			cm.logger.Error("failed to purge withdrawn account",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := cm.resetTokens.HardDeleteByUserID(ctx, user.ID); err != nil {
			cm.logger.Error("failed to delete reset tokens",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
		if err := cm.verifications.DeleteByEmail(ctx, email); err != nil {
			cm.logger.Error("failed to delete verification rows",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}

		processed++
	}

	return processed, firstErr
}

func (cm *CleanupManager) sweepLoginHistory(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-cm.cfg.LoginHistoryRetention)
	return cm.histories.DeleteOlderThan(ctx, cutoff)
}

// sweepLoginAttempts drops lockout counter rows that have gone quiet. Rows
// with an active lockout are never touched.
func (cm *CleanupManager) sweepLoginAttempts(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-cm.cfg.LoginAttemptRetention)
	return cm.attempts.DeleteStaleBefore(ctx, cutoff)
}
