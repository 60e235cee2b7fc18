// Package platform defines the contract every social network adapter
// implements, together with the helpers the adapters share: typed failures,
// media gating, the trailing link heuristic and the HTTP plumbing.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// ExpirySafetyMargin is subtracted from every expiry a platform reports.
const ExpirySafetyMargin = 15 * time.Minute

var (
	ErrMissingCredential    = errors.New("credential missing")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUploadFailed         = errors.New("media upload failed")
	ErrProcessingTimedOut   = errors.New("media processing timed out")
	ErrRemoteAPI            = errors.New("remote api error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrCredentialRevoked    = errors.New("credential revoked")
	ErrTokenExpired         = errors.New("access token expired and cannot be refreshed")
	ErrMediaRequired        = fmt.Errorf("%w: media is required", ErrUnsupportedMediaType)
)

// APIError is a non-success response from a platform.
type APIError struct {
	Platform models.Platform
	Op       string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Platform, e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.Status == 401 {
		return ErrUnauthorized
	}
	return ErrRemoteAPI
}

// Is lets an unauthorized APIError also match ErrRemoteAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteAPI
}

// PublishError carries a credential that was refreshed during a publish that
// still failed, so the caller can persist it.
type PublishError struct {
	Err       error
	Refreshed *models.Credential
}

func (e *PublishError) Error() string { return e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }

// Media is the file attached to a post.
type Media struct {
	// Name is the storage key; its extension drives the allow-lists.
	Name string
	// URL is a publicly reachable address for pull-based platforms.
	URL  string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, int64, error)
}

type Content struct {
	PostID int64
	Text   string
	Media  *Media
}

func (c Content) HasMedia() bool { return c.Media != nil }

type Result struct {
	URL       string
	Refreshed *models.Credential
}

type Adapter interface {
	Platform() models.Platform
	Publish(ctx context.Context, cred models.Credential, content Content) (Result, error)
}

// TokenStrategy renews a credential for one platform. Implementations never
// persist; the returned credential is a new value.
type TokenStrategy interface {
	Platform() models.Platform
	Refresh(ctx context.Context, cred models.Credential, now time.Time) (models.Credential, error)
}

// Registry maps enabled platforms to their adapters and strategies.
type Registry struct {
	adapters   map[models.Platform]Adapter
	strategies map[models.Platform]TokenStrategy
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:   map[models.Platform]Adapter{},
		strategies: map[models.Platform]TokenStrategy{},
	}
}

func (r *Registry) Register(a Adapter, s TokenStrategy) {
	if a != nil {
		r.adapters[a.Platform()] = a
	}
	if s != nil {
		r.strategies[s.Platform()] = s
	}
}

func (r *Registry) Adapter(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

func (r *Registry) Strategy(p models.Platform) (TokenStrategy, bool) {
	s, ok := r.strategies[p]
	return s, ok
}

// Enabled lists the platforms with an adapter, in models.Platforms order.
func (r *Registry) Enabled() []models.Platform {
	var out []models.Platform
	for _, p := range models.Platforms() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
