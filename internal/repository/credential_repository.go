package repository

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialRepository stores credential rows as they are on disk; token
// columns hold ciphertext.
type CredentialRepository interface {
	Get(ctx context.Context, accountID int64, platform models.Platform) (*models.Credential, error)
	Upsert(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, accountID int64, platform models.Platform) error
	ListExpiring(ctx context.Context, before time.Time) ([]models.Credential, error)
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Get(ctx context.Context, accountID int64, platform models.Platform) (*models.Credential, error) {
	var cred models.Credential
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND platform = ?", accountID, platform).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Str("platform", string(platform)).Msg("get credential")
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	now := time.Now().UTC()
	row := *cred
	row.ID = 0
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.AccessExpiresAt != nil {
		exp := row.AccessExpiresAt.UTC()
		row.AccessExpiresAt = &exp
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"remote_user_id",
			"access_token",
			"refresh_token",
			"access_expires_at",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		log.Error().Err(err).Object("credential", cred).Msg("upsert credential")
		return err
	}
	if row.ID != 0 {
		cred.ID = row.ID
	}
	cred.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, accountID int64, platform models.Platform) error {
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND platform = ?", accountID, platform).
		Delete(&models.Credential{}).Error
	if err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Str("platform", string(platform)).Msg("delete credential")
		return err
	}
	return nil
}

// ListExpiring returns credentials whose access token expires at or before
// the given instant, plus those with an unknown expiry that can be refreshed.
func (r *credentialRepository) ListExpiring(ctx context.Context, before time.Time) ([]models.Credential, error) {
	var creds []models.Credential
	err := r.db.WithContext(ctx).
		Where("(access_expires_at IS NOT NULL AND access_expires_at <= ?) OR (access_expires_at IS NULL AND refresh_token <> '')", before.UTC()).
		Order("access_expires_at ASC").
		Find(&creds).Error
	if err != nil {
		log.Error().Err(err).Msg("list expiring credentials")
		return nil, err
	}
	return creds, nil
}
