package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/rs/zerolog/log"
)

// CredentialService is the credential store: it encrypts tokens on the way
// to the repository and decrypts them on the way out.
type CredentialService interface {
	Get(ctx context.Context, accountID int64, platform models.Platform) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, accountID int64, platform models.Platform) error
	ListExpiring(ctx context.Context, before time.Time) ([]models.Credential, error)
}

type credentialService struct {
	cr     repository.CredentialRepository
	cipher *utils.Cipher
}

func NewCredentialService(cr repository.CredentialRepository, cipher *utils.Cipher) CredentialService {
	return &credentialService{
		cr:     cr,
		cipher: cipher,
	}
}

func (s *credentialService) Get(ctx context.Context, accountID int64, platform models.Platform) (*models.Credential, error) {
	row, err := s.cr.Get(ctx, accountID, platform)
	if err != nil || row == nil {
		return nil, err
	}
	cred, err := s.decrypt(*row)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *credentialService) Save(ctx context.Context, cred *models.Credential) error {
	row := *cred
	var err error
	if row.AccessToken, err = s.cipher.EncryptOptional(cred.AccessToken); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if row.RefreshToken, err = s.cipher.EncryptOptional(cred.RefreshToken); err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	if err := s.cr.Upsert(ctx, &row); err != nil {
		return err
	}
	cred.ID = row.ID
	return nil
}

func (s *credentialService) Delete(ctx context.Context, accountID int64, platform models.Platform) error {
	return s.cr.Delete(ctx, accountID, platform)
}

// ListExpiring returns decrypted credentials that expire before the given
// time, plus those with an unknown expiry that carry a refresh token. Rows
// that cannot be decrypted are logged and left out.
func (s *credentialService) ListExpiring(ctx context.Context, before time.Time) ([]models.Credential, error) {
	rows, err := s.cr.ListExpiring(ctx, before)
	if err != nil {
		return nil, err
	}
	out := make([]models.Credential, 0, len(rows))
	for _, row := range rows {
		cred, err := s.decrypt(row)
		if err != nil {
			log.Error().Err(err).Object("credential", &row).Msg("skipping undecryptable credential")
			continue
		}
		out = append(out, cred)
	}
	return out, nil
}

func (s *credentialService) decrypt(row models.Credential) (models.Credential, error) {
	cred := row
	var err error
	if cred.AccessToken, err = s.cipher.DecryptOptional(row.AccessToken); err != nil {
		return cred, fmt.Errorf("decrypt access token for %s: %w", row.Key(), err)
	}
	if cred.RefreshToken, err = s.cipher.DecryptOptional(row.RefreshToken); err != nil {
		return cred, fmt.Errorf("decrypt refresh token for %s: %w", row.Key(), err)
	}
	return cred, nil
}
