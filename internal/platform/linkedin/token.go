package linkedin

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

// TokenStrategy covers LinkedIn member tokens, which cannot be refreshed.
// An expired token has to be re-authorized by the account owner.
type TokenStrategy struct{}

func NewTokenStrategy() *TokenStrategy { return &TokenStrategy{} }

func (TokenStrategy) Platform() models.Platform { return models.PlatformLinkedIn }

func (TokenStrategy) Refresh(_ context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.Expired(now) {
		return cred, platform.ErrTokenExpired
	}
	return cred, nil
}
