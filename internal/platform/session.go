package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/rs/zerolog/log"
)

// Session holds the credential used by one Publish call. When a call fails
// with ErrUnauthorized the session refreshes the token once and retries the
// call once; later 401s are terminal.
type Session struct {
	cred      models.Credential
	strategy  TokenStrategy
	attempted bool
	refreshed bool
	now       func() time.Time
}

func NewSession(cred models.Credential, strategy TokenStrategy) *Session {
	return &Session{cred: cred, strategy: strategy, now: time.Now}
}

func (s *Session) Credential() models.Credential { return s.cred }

func (s *Session) Token() string { return s.cred.AccessToken }

// Refresher rotates a stored credential whose access token was rejected.
// Sessions sharing a Refresher for the same account refresh it only once.
type Refresher interface {
	RefreshStale(ctx context.Context, stale models.Credential) (models.Credential, error)
}

type refresherKey struct{}

// WithRefresher makes sessions running under ctx refresh through r instead of
// calling their token strategy directly.
func WithRefresher(ctx context.Context, r Refresher) context.Context {
	return context.WithValue(ctx, refresherKey{}, r)
}

func refresherFrom(ctx context.Context) Refresher {
	r, _ := ctx.Value(refresherKey{}).(Refresher)
	return r
}

// Call runs fn with the current access token.
func (s *Session) Call(ctx context.Context, fn func(token string) error) error {
	err := fn(s.cred.AccessToken)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if s.attempted || s.strategy == nil {
		return err
	}
	s.attempted = true

	next, rerr := s.refresh(ctx)
	if rerr != nil {
		log.Warn().Err(rerr).Object("credential", &s.cred).Msg("token refresh after 401 failed")
		if ctx.Err() != nil {
			return fmt.Errorf("token refresh after 401 interrupted: %w", ctx.Err())
		}
		// A Refresher classifies its own failures.
		if refresherFrom(ctx) != nil || errors.Is(rerr, ErrCredentialRevoked) {
			return rerr
		}
		return fmt.Errorf("%w: %w", ErrCredentialRevoked, rerr)
	}
	if next.AccessToken == "" || next.AccessToken == s.cred.AccessToken {
		return err
	}
	s.cred = next
	s.refreshed = true
	log.Info().Object("credential", &s.cred).Msg("access token refreshed after 401")

	return fn(s.cred.AccessToken)
}

func (s *Session) refresh(ctx context.Context) (models.Credential, error) {
	if r := refresherFrom(ctx); r != nil {
		return r.RefreshStale(ctx, s.cred)
	}
	return s.strategy.Refresh(ctx, s.cred, s.now())
}

// Finish builds the Publish return values, attaching the refreshed credential
// to either the result or the error.
func (s *Session) Finish(url string, err error) (Result, error) {
	var refreshed *models.Credential
	if s.refreshed {
		c := s.cred
		refreshed = &c
	}
	if err != nil {
		if refreshed != nil {
			return Result{}, &PublishError{Err: err, Refreshed: refreshed}
		}
		return Result{}, err
	}
	return Result{URL: url, Refreshed: refreshed}, nil
}
