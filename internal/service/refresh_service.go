package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/rs/zerolog/log"
)

const DefaultRefreshLookahead = 15 * time.Minute

// RefreshService keeps credentials valid. Every write it performs holds the
// per-credential lock.
type RefreshService interface {
	NeedsRefresh(cred models.Credential, now time.Time) bool
	// Ensure refreshes cred when it is about to expire. On an unrefreshable
	// credential it deletes it, notifies the operator and returns an error
	// wrapping platform.ErrCredentialRevoked.
	Ensure(ctx context.Context, cred models.Credential) (models.Credential, error)
	// RefreshStale refreshes a credential whose access token was rejected
	// mid-publish. It returns the stored credential without refreshing when
	// another caller already rotated the token. Failures are returned wrapping
	// platform.ErrCredentialRevoked; the caller decides whether to revoke.
	RefreshStale(ctx context.Context, stale models.Credential) (models.Credential, error)
	Persist(ctx context.Context, cred models.Credential) error
	Revoke(ctx context.Context, cred models.Credential, reason string) error
	Sweep(ctx context.Context) (SweepResult, error)
}

type SweepResult struct {
	Checked   int
	Refreshed int
	Revoked   int
}

type refreshService struct {
	creds     CredentialService
	registry  *platform.Registry
	locker    lock.Locker
	notifier  notify.Notifier
	lookahead time.Duration
	now       func() time.Time
}

func NewRefreshService(creds CredentialService, registry *platform.Registry, locker lock.Locker, notifier notify.Notifier, lookahead time.Duration) RefreshService {
	if lookahead <= 0 {
		lookahead = DefaultRefreshLookahead
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &refreshService{
		creds:     creds,
		registry:  registry,
		locker:    locker,
		notifier:  notifier,
		lookahead: lookahead,
		now:       time.Now,
	}
}

func (s *refreshService) NeedsRefresh(cred models.Credential, now time.Time) bool {
	if cred.AccessExpiresAt == nil {
		return cred.RefreshToken != ""
	}
	return !cred.AccessExpiresAt.After(now.Add(s.lookahead))
}

func (s *refreshService) Ensure(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if !s.NeedsRefresh(cred, s.now()) {
		return cred, nil
	}
	strategy, ok := s.registry.Strategy(cred.Platform)
	if !ok {
		return cred, nil
	}

	unlock, err := s.locker.Lock(ctx, cred.Key().String())
	if err != nil {
		return cred, fmt.Errorf("lock %s: %w", cred.Key(), err)
	}
	defer unlock()

	// Another refresher may have rotated or removed the credential while we
	// waited for the lock.
	current, err := s.creds.Get(ctx, cred.AccountID, cred.Platform)
	if err != nil {
		return cred, err
	}
	if current == nil {
		return cred, fmt.Errorf("%w: %s", platform.ErrMissingCredential, cred.Key())
	}
	now := s.now()
	if !s.NeedsRefresh(*current, now) {
		return *current, nil
	}

	next, err := strategy.Refresh(ctx, *current, now)
	if err != nil {
		if ctx.Err() != nil {
			metrics.ObserveRefresh(string(cred.Platform), "error")
			return *current, err
		}
		metrics.ObserveRefresh(string(cred.Platform), "revoked")
		s.revokeLocked(ctx, *current, err.Error())
		return *current, fmt.Errorf("%w: %s: %w", platform.ErrCredentialRevoked, cred.Key(), err)
	}
	if unchanged(*current, next) {
		return *current, nil
	}

	if err := s.creds.Save(ctx, &next); err != nil {
		metrics.ObserveRefresh(string(cred.Platform), "error")
		return *current, err
	}
	metrics.ObserveRefresh(string(cred.Platform), "refreshed")
	log.Info().Object("credential", &next).Msg("credential refreshed")
	return next, nil
}

func (s *refreshService) RefreshStale(ctx context.Context, stale models.Credential) (models.Credential, error) {
	strategy, ok := s.registry.Strategy(stale.Platform)
	if !ok {
		return stale, fmt.Errorf("no token strategy for %s", stale.Platform)
	}

	unlock, err := s.locker.Lock(ctx, stale.Key().String())
	if err != nil {
		return stale, fmt.Errorf("lock %s: %w", stale.Key(), err)
	}
	defer unlock()

	current, err := s.creds.Get(ctx, stale.AccountID, stale.Platform)
	if err != nil {
		return stale, err
	}
	if current == nil {
		return stale, fmt.Errorf("%w: %s", platform.ErrMissingCredential, stale.Key())
	}
	if current.AccessToken != stale.AccessToken {
		return *current, nil
	}

	next, err := strategy.Refresh(ctx, *current, s.now())
	if err != nil {
		if ctx.Err() != nil {
			metrics.ObserveRefresh(string(stale.Platform), "error")
			return *current, err
		}
		return *current, fmt.Errorf("%w: %s: %w", platform.ErrCredentialRevoked, stale.Key(), err)
	}
	if unchanged(*current, next) {
		return *current, nil
	}
	if err := s.creds.Save(ctx, &next); err != nil {
		metrics.ObserveRefresh(string(stale.Platform), "error")
		return *current, err
	}
	metrics.ObserveRefresh(string(stale.Platform), "refreshed")
	log.Info().Object("credential", &next).Msg("credential refreshed after 401")
	return next, nil
}

func unchanged(a, b models.Credential) bool {
	if a.AccessToken != b.AccessToken || a.RefreshToken != b.RefreshToken {
		return false
	}
	if a.AccessExpiresAt == nil || b.AccessExpiresAt == nil {
		return a.AccessExpiresAt == b.AccessExpiresAt
	}
	return a.AccessExpiresAt.Equal(*b.AccessExpiresAt)
}

func (s *refreshService) Persist(ctx context.Context, cred models.Credential) error {
	unlock, err := s.locker.Lock(ctx, cred.Key().String())
	if err != nil {
		return err
	}
	defer unlock()
	return s.creds.Save(ctx, &cred)
}

func (s *refreshService) Revoke(ctx context.Context, cred models.Credential, reason string) error {
	unlock, err := s.locker.Lock(ctx, cred.Key().String())
	if err != nil {
		return err
	}
	defer unlock()
	return s.revokeLocked(ctx, cred, reason)
}

func (s *refreshService) revokeLocked(ctx context.Context, cred models.Credential, reason string) error {
	log.Warn().Object("credential", &cred).Str("reason", reason).Msg("revoking credential")
	err := s.creds.Delete(ctx, cred.AccountID, cred.Platform)
	if err != nil {
		log.Error().Err(err).Object("credential", &cred).Msg("failed to delete revoked credential")
	}
	s.notifier.Notify(ctx, fmt.Sprintf("%s access token for account %d was revoked and must be re-authorized: %s",
		cred.Platform, cred.AccountID, reason))
	return err
}

// Sweep refreshes every credential expiring within the lookahead window.
func (s *refreshService) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	creds, err := s.creds.ListExpiring(ctx, s.now().Add(s.lookahead))
	if err != nil {
		return res, err
	}
	for _, cred := range creds {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		next, err := s.Ensure(ctx, cred)
		switch {
		case errors.Is(err, platform.ErrCredentialRevoked):
			res.Revoked++
		case err != nil:
			log.Error().Err(err).Object("credential", &cred).Msg("refresh sweep failed for credential")
		case !unchanged(cred, next):
			res.Refreshed++
		}
	}
	return res, nil
}
