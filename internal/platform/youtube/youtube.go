// Package youtube uploads videos through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const (
	maxTitleRunes = 100
	categoryID    = "22"
)

var Policy = platform.NewMediaPolicy(models.PlatformYouTube, "mp4", "mov", "webm", "avi")

type Options struct {
	// Endpoint overrides the API root, mainly for tests.
	Endpoint   string
	HTTPClient *http.Client
}

type Adapter struct {
	endpoint string
	client   *http.Client
	strategy platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{endpoint: opts.Endpoint, client: opts.HTTPClient, strategy: strategy}
	if a.client == nil {
		a.client = platform.NewHTTPClient(30 * time.Minute)
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformYouTube }

func PostURL(id string) string {
	return "https://youtu.be/" + id
}

func (a *Adapter) Publish(ctx context.Context, cred models.Credential, content platform.Content) (platform.Result, error) {
	if !cred.Usable() {
		return platform.Result{}, platform.ErrMissingCredential
	}
	if content.Media == nil || !platform.IsVideo(content.Media.Name) {
		return platform.Result{}, fmt.Errorf("%w: youtube needs a video", platform.ErrMediaRequired)
	}
	if _, err := Policy.Check(content.Media); err != nil {
		return platform.Result{}, err
	}

	sess := platform.NewSession(cred, a.strategy)
	var id string
	err := sess.Call(ctx, func(token string) error {
		var err error
		id, err = a.insert(ctx, token, content)
		return err
	})
	if err == nil && id == "" {
		err = platform.MissingField(models.PlatformYouTube, "insert video", "id", nil)
	}
	if err != nil {
		return sess.Finish("", err)
	}
	return sess.Finish(PostURL(id), nil)
}

func (a *Adapter) service(ctx context.Context, token string) (*yt.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return yt.NewService(ctx, opts...)
}

func (a *Adapter) insert(ctx context.Context, token string, content platform.Content) (string, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return "", fmt.Errorf("youtube: create service: %w", err)
	}

	rc, _, kind, err := Policy.Open(ctx, content.Media)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       title(content),
			Description: content.Text,
			CategoryId:  categoryID,
		},
		Status: &yt.VideoStatus{PrivacyStatus: "public"},
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(rc, googleapi.ContentType(kind.MIME.Value)).
		Context(ctx).
		Do()
	if err != nil {
		return "", apiError(err)
	}
	log.Debug().Str("video_id", resp.Id).Int64("post_id", content.PostID).Msg("youtube video inserted")
	return resp.Id, nil
}

func title(content platform.Content) string {
	if t := platform.FirstLine(content.Text, maxTitleRunes); t != "" {
		return t
	}
	name := filepath.Base(content.Media.Name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// apiError converts a googleapi failure into the shared APIError so 401s
// reach the session's refresh path.
func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return &platform.APIError{Platform: models.PlatformYouTube, Op: "insert video", Status: gerr.Code, Body: body}
	}
	return fmt.Errorf("youtube: insert video: %w", err)
}
