// Package linkedin publishes member shares through the LinkedIn v2 UGC API.
package linkedin

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL      = "https://api.linkedin.com"
	defaultMaxPolls     = 30
	defaultPollInterval = 3 * time.Second
	restliVersion       = "2.0.0"
)

var Policy = platform.NewMediaPolicy(models.PlatformLinkedIn, "jpg", "jpeg", "png", "gif", "mp4")

type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	MaxStatusPolls int
	PollInterval   time.Duration
}

type Adapter struct {
	baseURL  string
	client   *http.Client
	maxPolls int
	interval time.Duration
	strategy platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{
		baseURL:  opts.BaseURL,
		client:   opts.HTTPClient,
		maxPolls: opts.MaxStatusPolls,
		interval: opts.PollInterval,
		strategy: strategy,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.client == nil {
		a.client = platform.NewHTTPClient(2 * time.Minute)
	}
	if a.maxPolls <= 0 {
		a.maxPolls = defaultMaxPolls
	}
	if a.interval <= 0 {
		a.interval = defaultPollInterval
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformLinkedIn }

func PostURL(id string) string {
	return "https://www.linkedin.com/feed/update/" + id
}

func (a *Adapter) Publish(ctx context.Context, cred models.Credential, content platform.Content) (platform.Result, error) {
	if !cred.Usable() || cred.RemoteUserID == "" {
		return platform.Result{}, platform.ErrMissingCredential
	}
	if _, err := Policy.Check(content.Media); err != nil {
		return platform.Result{}, err
	}

	sess := platform.NewSession(cred, a.strategy)
	link, err := a.publish(ctx, sess, content)
	return sess.Finish(link, err)
}

func (a *Adapter) author(sess *platform.Session) string {
	return "urn:li:person:" + sess.Credential().RemoteUserID
}

func (a *Adapter) publish(ctx context.Context, sess *platform.Session, content platform.Content) (string, error) {
	share := transfer.LinkedInShareContent{
		ShareCommentary:    transfer.LinkedInText{Text: content.Text},
		ShareMediaCategory: "NONE",
	}

	if content.Media != nil {
		video := platform.IsVideo(content.Media.Name)
		asset, err := a.upload(ctx, sess, content.Media, video)
		if err != nil {
			return "", err
		}
		share.ShareMediaCategory = "IMAGE"
		if video {
			share.ShareMediaCategory = "VIDEO"
		}
		title := truncateRunes(content.Text, 20)
		share.Media = []transfer.LinkedInMedia{{
			Status:      "READY",
			Description: transfer.LinkedInText{Text: strings.ToLower(title)},
			Media:       asset,
			Title:       transfer.LinkedInText{Text: title},
		}}
	}

	post := transfer.LinkedInUGCPost{
		Author:          a.author(sess),
		LifecycleState:  "PUBLISHED",
		SpecificContent: transfer.LinkedInSpecificContent{ShareContent: share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var id string
	err := sess.Call(ctx, func(token string) error {
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+"/v2/ugcPosts", post)
		if err != nil {
			return err
		}
		a.authorize(req, token)
		body, header, err := platform.Do(a.client, models.PlatformLinkedIn, "create post", req)
		if err != nil {
			return err
		}
		var resp transfer.LinkedInPostResponse
		if err := platform.Decode(models.PlatformLinkedIn, "create post", body, &resp); err != nil {
			return err
		}
		id = resp.ID
		if id == "" {
			id = header.Get("X-RestLi-Id")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", platform.MissingField(models.PlatformLinkedIn, "create post", "id", nil)
	}
	return PostURL(id), nil
}

func (a *Adapter) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
}

// upload registers the asset, PUTs the bytes in one request and waits until
// LinkedIn reports the asset as available.
func (a *Adapter) upload(ctx context.Context, sess *platform.Session, m *platform.Media, video bool) (string, error) {
	data, kind, err := Policy.ReadAll(ctx, m)
	if err != nil {
		return "", err
	}

	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if video {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}
	register := transfer.LinkedInRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedInRegisterUpload{
			Recipes: []string{recipe},
			Owner:   a.author(sess),
			ServiceRelationships: []transfer.LinkedInServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		},
	}

	var reg transfer.LinkedInRegisterUploadResponse
	err = sess.Call(ctx, func(token string) error {
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+"/v2/assets?action=registerUpload", register)
		if err != nil {
			return err
		}
		a.authorize(req, token)
		return platform.DoJSON(a.client, models.PlatformLinkedIn, "register upload", req, &reg)
	})
	if err != nil {
		return "", err
	}
	mech, ok := reg.Value.UploadMechanism[transfer.LinkedInUploadMechanism]
	if !ok || mech.UploadURL == "" || reg.Value.Asset == "" {
		return "", platform.MissingField(models.PlatformLinkedIn, "register upload", "uploadUrl", reg)
	}

	err = sess.Call(ctx, func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, mech.UploadURL, bytes.NewReader(data))
		if err != nil {
			return err
		}
		for k, v := range mech.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", kind.MIME.Value)
		_, _, err = platform.Do(a.client, models.PlatformLinkedIn, "upload media", req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrUploadFailed, err)
	}

	return reg.Value.Asset, a.awaitAsset(ctx, sess, reg.Value.Asset)
}

func (a *Adapter) awaitAsset(ctx context.Context, sess *platform.Session, asset string) error {
	id := asset[strings.LastIndex(asset, ":")+1:]
	for poll := 1; ; poll++ {
		var status transfer.LinkedInAssetStatus
		err := sess.Call(ctx, func(token string) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/assets/"+id, nil)
			if err != nil {
				return err
			}
			a.authorize(req, token)
			return platform.DoJSON(a.client, models.PlatformLinkedIn, "asset status", req, &status)
		})
		if err != nil {
			return err
		}

		state := status.Status
		if state == "" {
			for _, r := range status.Recipes {
				state = r.Status
			}
		}
		switch state {
		case "AVAILABLE":
			return nil
		case "CLIENT_ERROR", "SERVER_ERROR":
			return fmt.Errorf("%w: asset %s is %s", platform.ErrUploadFailed, asset, state)
		}

		if poll >= a.maxPolls {
			return fmt.Errorf("%w: asset %s still %q after %d checks", platform.ErrProcessingTimedOut, asset, state, poll)
		}
		log.Debug().Str("asset", asset).Str("status", state).Int("poll", poll).Msg("waiting for linkedin asset")
		if err := platform.Sleep(ctx, a.interval); err != nil {
			return err
		}
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
