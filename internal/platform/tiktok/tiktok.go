// Package tiktok publishes videos with TikTok's Content Posting API, letting
// TikTok pull the file from its public URL.
package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL      = "https://open.tiktokapis.com"
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 60
	privacyPublic       = "PUBLIC_TO_EVERYONE"
)

var Policy = platform.NewMediaPolicy(models.PlatformTikTok, "mp4", "mov", "webm")

type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxPolls     int
}

type Adapter struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	maxPolls int
	strategy platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{
		baseURL:  opts.BaseURL,
		client:   opts.HTTPClient,
		interval: opts.PollInterval,
		maxPolls: opts.MaxPolls,
		strategy: strategy,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.client == nil {
		a.client = platform.NewHTTPClient(time.Minute)
	}
	if a.interval <= 0 {
		a.interval = defaultPollInterval
	}
	if a.maxPolls <= 0 {
		a.maxPolls = defaultMaxPolls
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformTikTok }

// PostURL links to the video, or to the profile when TikTok did not report
// a public id (private or still moderated videos).
func PostURL(openID string, postID int64) string {
	if postID == 0 {
		return "https://www.tiktok.com/@" + openID
	}
	return "https://www.tiktok.com/@" + openID + "/video/" + strconv.FormatInt(postID, 10)
}

func (a *Adapter) Publish(ctx context.Context, cred models.Credential, content platform.Content) (platform.Result, error) {
	if !cred.Usable() || cred.RemoteUserID == "" {
		return platform.Result{}, platform.ErrMissingCredential
	}
	if content.Media == nil || !platform.IsVideo(content.Media.Name) {
		return platform.Result{}, fmt.Errorf("%w: tiktok needs a video", platform.ErrMediaRequired)
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
	var creator transfer.TiktokCreatorInfoResponse
	if err := a.call(ctx, sess, "/v2/post/publish/creator_info/query/", "creator info", nil, &creator, &creator.Error); err != nil {
		return "", err
	}

	upload := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 content.Text,
			PrivacyLevel:          privacyLevel(creator.Data.PrivacyLevelOptions),
			DisableDuet:           creator.Data.DuetDisabled,
			DisableComment:        creator.Data.CommentDisabled,
			DisableStitch:         creator.Data.StitchDisabled,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: content.Media.URL,
		},
	}
	var started transfer.TikTokUploadResponse
	if err := a.call(ctx, sess, "/v2/post/publish/video/init/", "init video", upload, &started, &started.Error); err != nil {
		return "", err
	}
	if started.Data.PublishID == "" {
		return "", platform.MissingField(models.PlatformTikTok, "init video", "data.publish_id", started)
	}

	postID, err := a.awaitPublish(ctx, sess, started.Data.PublishID)
	if err != nil {
		return "", err
	}
	return PostURL(sess.Credential().RemoteUserID, postID), nil
}

func (a *Adapter) awaitPublish(ctx context.Context, sess *platform.Session, publishID string) (int64, error) {
	for poll := 1; ; poll++ {
		var status transfer.TiktokStatusResponse
		err := a.call(ctx, sess, "/v2/post/publish/status/fetch/", "publish status",
			transfer.TiktokStatusRequest{PublishID: publishID}, &status, &status.Error)
		if err != nil {
			return 0, err
		}

		switch status.Data.Status {
		case "PUBLISH_COMPLETE":
			if ids := status.Data.PublicalyAvailablePostID; len(ids) > 0 {
				return ids[0], nil
			}
			return 0, nil
		case "FAILED":
			return 0, fmt.Errorf("%w: publish %s failed: %s", platform.ErrUploadFailed, publishID, status.Data.FailReason)
		}

		if poll >= a.maxPolls {
			return 0, fmt.Errorf("%w: publish %s still %s", platform.ErrProcessingTimedOut, publishID, status.Data.Status)
		}
		log.Debug().
			Str("publish_id", publishID).
			Str("status", status.Data.Status).
			Int64("downloaded_bytes", status.Data.DownloadedBytes).
			Msg("tiktok publish in progress")
		if err := platform.Sleep(ctx, a.interval); err != nil {
			return 0, err
		}
	}
}

// call POSTs payload and checks both the HTTP status and TikTok's error envelope.
func (a *Adapter) call(ctx context.Context, sess *platform.Session, path, op string, payload, out any, apiErr *transfer.TiktokError) error {
	return sess.Call(ctx, func(token string) error {
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		if err := platform.DoJSON(a.client, models.PlatformTikTok, op, req, out); err != nil {
			return err
		}
		if apiErr.Code != "" && apiErr.Code != "ok" {
			return &platform.APIError{
				Platform: models.PlatformTikTok,
				Op:       op,
				Status:   http.StatusOK,
				Body:     apiErr.Code + ": " + apiErr.Message + " (log_id " + apiErr.LogID + ")",
			}
		}
		return nil
	})
}

func privacyLevel(options []string) string {
	for _, o := range options {
		if o == privacyPublic {
			return o
		}
	}
	if len(options) > 0 {
		return options[0]
	}
	return privacyPublic
}
