package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const DefaultTokenURL = "https://graph.instagram.com"

// TokenStrategy extends a long-lived Instagram token with ig_refresh_token.
type TokenStrategy struct {
	baseURL string
	client  *http.Client
}

func NewTokenStrategy(baseURL string, client *http.Client) *TokenStrategy {
	if baseURL == "" {
		baseURL = DefaultTokenURL
	}
	if client == nil {
		client = platform.NewHTTPClient(30 * time.Second)
	}
	return &TokenStrategy{baseURL: baseURL, client: client}
}

func (s *TokenStrategy) Platform() models.Platform { return models.PlatformInstagram }

func (s *TokenStrategy) Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.Expired(now) {
		return cred, platform.ErrTokenExpired
	}

	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", cred.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/refresh_access_token?"+q.Encode(), nil)
	if err != nil {
		return cred, err
	}

	var tok transfer.OAuthTokenResponse
	if err := platform.DoJSON(s.client, models.PlatformInstagram, "refresh token", req, &tok); err != nil {
		return cred, fmt.Errorf("instagram: refresh token: %w", err)
	}
	if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
		return cred, fmt.Errorf("instagram: refresh token: %w", platform.MissingField(models.PlatformInstagram, "refresh token", "access_token", tok))
	}

	expiry := now.Add(time.Duration(tok.ExpiresIn)*time.Second - platform.ExpirySafetyMargin)
	next := cred
	next.AccessToken = tok.AccessToken
	next.AccessExpiresAt = &expiry
	return next, nil
}
