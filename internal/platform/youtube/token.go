package youtube

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
	"golang.org/x/oauth2/google"
)

const (
	defaultTokenLifetime = time.Hour
	uploadScope          = "https://www.googleapis.com/auth/youtube.upload"
)

type TokenStrategy struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewTokenStrategy refreshes against Google's token endpoint unless tokenURL
// is set.
func NewTokenStrategy(app config.PlatformApp, tokenURL string, client *http.Client) *TokenStrategy {
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	}
	if client == nil {
		client = platform.NewHTTPClient(30 * time.Second)
	}
	return &TokenStrategy{
		conf: &oauth2.Config{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			Scopes:       []string{uploadScope},
			Endpoint:     endpoint,
		},
		client: client,
	}
}

func (s *TokenStrategy) Platform() models.Platform { return models.PlatformYouTube }

func (s *TokenStrategy) Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, errors.New("youtube: no refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return cred, fmt.Errorf("youtube: refresh token: %w", err)
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
