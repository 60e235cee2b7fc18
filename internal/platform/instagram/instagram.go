// Package instagram publishes single image posts with the two-phase
// container flow of the Instagram Graph API.
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
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL     = "https://graph.instagram.com/v21.0"
	defaultInitialWait = 10 * time.Second
	defaultPollWait    = 60 * time.Second
	defaultMaxPolls    = 5
)

var Policy = platform.NewMediaPolicy(models.PlatformInstagram, "jpg", "jpeg")

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// InitialWait is slept once before the first container status check.
	InitialWait time.Duration
	PollWait    time.Duration
	MaxPolls    int
}

type Adapter struct {
	baseURL     string
	client      *http.Client
	initialWait time.Duration
	pollWait    time.Duration
	maxPolls    int
	strategy    platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{
		baseURL:     opts.BaseURL,
		client:      opts.HTTPClient,
		initialWait: opts.InitialWait,
		pollWait:    opts.PollWait,
		maxPolls:    opts.MaxPolls,
		strategy:    strategy,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.client == nil {
		a.client = platform.NewHTTPClient(time.Minute)
	}
	if a.initialWait == 0 {
		a.initialWait = defaultInitialWait
	}
	if a.pollWait == 0 {
		a.pollWait = defaultPollWait
	}
	if a.maxPolls <= 0 {
		a.maxPolls = defaultMaxPolls
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformInstagram }

func (a *Adapter) Publish(ctx context.Context, cred models.Credential, content platform.Content) (platform.Result, error) {
	if !cred.Usable() || cred.RemoteUserID == "" {
		return platform.Result{}, platform.ErrMissingCredential
	}
	if content.Media == nil {
		return platform.Result{}, platform.ErrMediaRequired
	}
	if _, err := Policy.Check(content.Media); err != nil {
		return platform.Result{}, err
	}
	if content.Media.URL == "" {
		return platform.Result{}, fmt.Errorf("%w: %q has no public url", platform.ErrUploadFailed, content.Media.Name)
	}

	sess := platform.NewSession(cred, a.strategy)
	link, err := a.publish(ctx, sess, content)
	return sess.Finish(link, err)
}

func (a *Adapter) publish(ctx context.Context, sess *platform.Session, content platform.Content) (string, error) {
	user := sess.Credential().RemoteUserID

	var container transfer.GraphIDResponse
	err := sess.Call(ctx, func(token string) error {
		payload := transfer.InstagramContainerRequest{
			ImageURL:    content.Media.URL,
			Caption:     content.Text,
			AccessToken: token,
		}
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+"/"+user+"/media", payload)
		if err != nil {
			return err
		}
		return platform.DoJSON(a.client, models.PlatformInstagram, "create container", req, &container)
	})
	if err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", platform.MissingField(models.PlatformInstagram, "create container", "id", container)
	}

	if err := a.awaitContainer(ctx, sess, container.ID); err != nil {
		return "", err
	}

	var published transfer.GraphIDResponse
	err = sess.Call(ctx, func(token string) error {
		payload := transfer.InstagramPublishRequest{CreationID: container.ID, AccessToken: token}
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+"/"+user+"/media_publish", payload)
		if err != nil {
			return err
		}
		return platform.DoJSON(a.client, models.PlatformInstagram, "publish container", req, &published)
	})
	if err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", platform.MissingField(models.PlatformInstagram, "publish container", "id", published)
	}

	var permalink transfer.InstagramPermalink
	err = sess.Call(ctx, func(token string) error {
		return a.get(ctx, token, published.ID, "permalink", "get permalink", &permalink)
	})
	if err != nil {
		return "", err
	}
	if permalink.Permalink == "" {
		return "", platform.MissingField(models.PlatformInstagram, "get permalink", "permalink", permalink)
	}
	return permalink.Permalink, nil
}

func (a *Adapter) awaitContainer(ctx context.Context, sess *platform.Session, id string) error {
	if err := platform.Sleep(ctx, a.initialWait); err != nil {
		return err
	}
	for poll := 0; ; poll++ {
		var status transfer.InstagramContainerStatus
		err := sess.Call(ctx, func(token string) error {
			return a.get(ctx, token, id, "status_code,status", "container status", &status)
		})
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("%w: container %s is %s: %s", platform.ErrUploadFailed, id, status.StatusCode, status.Status)
		}
		if poll >= a.maxPolls {
			return fmt.Errorf("%w: container %s still %q", platform.ErrProcessingTimedOut, id, status.StatusCode)
		}
		log.Debug().Str("container", id).Str("status", status.StatusCode).Msg("instagram container not ready")
		if err := platform.Sleep(ctx, a.pollWait); err != nil {
			return err
		}
	}
}

func (a *Adapter) get(ctx context.Context, token, id, fields, op string, out any) error {
	q := url.Values{}
	q.Set("fields", fields)
	q.Set("access_token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/"+id+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return platform.DoJSON(a.client, models.PlatformInstagram, op, req, out)
}
