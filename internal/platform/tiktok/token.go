package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const defaultTokenLifetime = 24 * time.Hour

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

func (s *TokenStrategy) Platform() models.Platform { return models.PlatformTikTok }

func (s *TokenStrategy) Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, errors.New("tiktok: no refresh token")
	}

	data := url.Values{}
	data.Set("client_key", s.app.ClientID)
	data.Set("client_secret", s.app.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/oauth/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return cred, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok transfer.OAuthTokenResponse
	if err := platform.DoJSON(s.client, models.PlatformTikTok, "refresh token", req, &tok); err != nil {
		return cred, fmt.Errorf("tiktok: refresh token: %w", err)
	}
	if tok.Error != "" {
		return cred, fmt.Errorf("tiktok: refresh token: %s: %s", tok.Error, tok.ErrorDescription)
	}
	if tok.AccessToken == "" {
		return cred, fmt.Errorf("tiktok: refresh token: %w", platform.MissingField(models.PlatformTikTok, "refresh token", "access_token", tok))
	}

	lifetime := defaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	expiry := now.Add(lifetime - platform.ExpirySafetyMargin)

	next := cred
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.OpenID != "" {
		next.RemoteUserID = tok.OpenID
	}
	next.AccessExpiresAt = &expiry
	return next, nil
}
