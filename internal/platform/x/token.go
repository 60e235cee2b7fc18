package x

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"golang.org/x/oauth2"
)

const defaultTokenLifetime = 7200 * time.Second

// TokenStrategy renews X credentials with the refresh_token grant.
type TokenStrategy struct {
	conf   *oauth2.Config
	client *http.Client
}

func NewTokenStrategy(app config.PlatformApp, baseURL string, client *http.Client) *TokenStrategy {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = platform.NewHTTPClient(30 * time.Second)
	}
	return &TokenStrategy{
		conf: &oauth2.Config{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (s *TokenStrategy) Platform() models.Platform { return models.PlatformX }

func (s *TokenStrategy) Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, errors.New("x: no refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return cred, fmt.Errorf("x: refresh token: %w", err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultTokenLifetime)
	}
	expiry = expiry.Add(-platform.ExpirySafetyMargin)

	next := cred
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.AccessExpiresAt = &expiry
	return next, nil
}
