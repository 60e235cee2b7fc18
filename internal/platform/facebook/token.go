package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const defaultTokenLifetime = 60 * 24 * time.Hour

// TokenStrategy extends a still valid page token with fb_exchange_token.
// Expired tokens cannot be exchanged.
type TokenStrategy struct {
	app     config.PlatformApp
	baseURL string
	client  *http.Client
}

func NewTokenStrategy(app config.PlatformApp, baseURL string, client *http.Client) *TokenStrategy {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = platform.NewHTTPClient(30 * time.Second)
	}
	return &TokenStrategy{app: app, baseURL: baseURL, client: client}
}

func (s *TokenStrategy) Platform() models.Platform { return models.PlatformFacebook }

func (s *TokenStrategy) Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.Expired(now) {
		return cred, platform.ErrTokenExpired
	}
	if cred.AccessToken == "" {
		return cred, errors.New("facebook: no access token to exchange")
	}

	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", s.app.ClientID)
	q.Set("client_secret", s.app.ClientSecret)
	q.Set("fb_exchange_token", cred.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return cred, err
	}
	var tok transfer.OAuthTokenResponse
	if err := platform.DoJSON(s.client, models.PlatformFacebook, "exchange token", req, &tok); err != nil {
		return cred, fmt.Errorf("facebook: exchange token: %w", err)
	}
	if tok.AccessToken == "" {
		return cred, fmt.Errorf("facebook: exchange token: %w", platform.MissingField(models.PlatformFacebook, "exchange token", "access_token", tok))
	}

	lifetime := defaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	expiry := now.Add(lifetime - platform.ExpirySafetyMargin)

	next := cred
	next.AccessToken = tok.AccessToken
	next.AccessExpiresAt = &expiry
	return next, nil
}
