package job

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/service"
	"github.com/rs/zerolog/log"
)

// TokenRefreshJob keeps idle accounts' credentials valid between posts.
type TokenRefreshJob struct {
	rs service.RefreshService
}

func NewTokenRefreshJob(rs service.RefreshService) *TokenRefreshJob {
	return &TokenRefreshJob{rs: rs}
}

func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) {
	start := time.Now()
	res, err := c.rs.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Int("checked", res.Checked).Msg("token refresh sweep failed")
		return
	}
	if res.Checked == 0 {
		log.Debug().Msg("token refresh sweep: nothing expiring")
		return
	}
	log.Info().
		Int("checked", res.Checked).
		Int("refreshed", res.Refreshed).
		Int("revoked", res.Revoked).
		Dur("took", time.Since(start)).
		Msg("token refresh sweep finished")
}
