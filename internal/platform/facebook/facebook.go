// Package facebook publishes to a Facebook page through the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const DefaultBaseURL = "https://graph.facebook.com/v22.0"

var Policy = platform.NewMediaPolicy(models.PlatformFacebook, "jpg", "jpeg", "png")

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Adapter struct {
	baseURL  string
	client   *http.Client
	strategy platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{baseURL: opts.BaseURL, client: opts.HTTPClient, strategy: strategy}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.client == nil {
		a.client = platform.NewHTTPClient(time.Minute)
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformFacebook }

// PostURL builds the public link from the page id and the id returned by the
// feed endpoint, which is usually "<page>_<post>".
func PostURL(pageID, id string) string {
	id = strings.TrimPrefix(id, pageID+"_")
	return "https://www.facebook.com/" + pageID + "/posts/" + id
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

func (a *Adapter) publish(ctx context.Context, sess *platform.Session, content platform.Content) (string, error) {
	page := sess.Credential().RemoteUserID
	feed := url.Values{}
	feed.Set("published", "true")

	if content.Media != nil {
		if content.Media.URL == "" {
			return "", platform.ErrMediaRequired
		}
		var photo transfer.GraphIDResponse
		err := sess.Call(ctx, func(token string) error {
			form := url.Values{}
			form.Set("url", content.Media.URL)
			form.Set("published", "false")
			return a.post(ctx, token, "/"+page+"/photos", "upload photo", form, &photo)
		})
		if err != nil {
			return "", err
		}
		if photo.ID == "" {
			return "", platform.MissingField(models.PlatformFacebook, "upload photo", "id", photo)
		}
		attached, _ := json.Marshal(transfer.FacebookAttachedMedia{MediaFbID: photo.ID})
		feed.Set("attached_media[0]", string(attached))
		feed.Set("message", content.Text)
	} else {
		body, link := platform.SplitTrailingLink(content.Text, false)
		feed.Set("message", body)
		if link != "" {
			feed.Set("link", link)
		}
	}

	var resp transfer.GraphIDResponse
	err := sess.Call(ctx, func(token string) error {
		return a.post(ctx, token, "/"+page+"/feed", "create post", feed, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", platform.MissingField(models.PlatformFacebook, "create post", "id", resp)
	}
	return PostURL(page, resp.ID), nil
}

func (a *Adapter) post(ctx context.Context, token, path, op string, form url.Values, out any) error {
	body := url.Values{}
	for k, v := range form {
		body[k] = v
	}
	body.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return platform.DoJSON(a.client, models.PlatformFacebook, op, req, out)
}
