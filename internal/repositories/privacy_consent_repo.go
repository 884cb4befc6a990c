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

type PrivacyConsentRepository struct {
	pool *pgxpool.Pool
}

func NewPrivacyConsentRepository(db *database.DB) *PrivacyConsentRepository {
	return &PrivacyConsentRepository{pool: db.Pool}
}

func (r *PrivacyConsentRepository) Create(ctx context.Context, tx pgx.Tx, consent *models.PrivacyConsent) (*models.PrivacyConsent, error) {
	if consent.ID == "" {
		consent.ID = uuid.New().String()
	}
	if consent.ConsentedAt.IsZero() {
		consent.ConsentedAt = time.Now()
	}

	query := `
		INSERT INTO privacy_consents (id, user_id, policy_version, consented_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := tx.Exec(ctx, query, consent.ID, consent.UserID, consent.PolicyVersion, consent.ConsentedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return consent, nil
}

// HardDeleteByUserID removes consent rows during the purge sweep.
func (r *PrivacyConsentRepository) HardDeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM privacy_consents WHERE user_id = $1`, userID)
	return database.MapPostgresError(err)
}
