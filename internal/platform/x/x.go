// Package x publishes posts to X through the v2 API.
package x

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL   = "https://api.x.com"
	DefaultChunkSize = 1 << 20
	defaultMaxPolls  = 60
	defaultMaxWait   = 30 * time.Second
)

var Policy = platform.NewMediaPolicy(models.PlatformX, "jpg", "jpeg", "png", "gif", "webp", "mp4", "mov")

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// ChunkSize is the APPEND segment size in bytes.
	ChunkSize int
	// MaxStatusPolls bounds the STATUS checks after FINALIZE.
	MaxStatusPolls int
	// MaxStatusWait caps the server suggested check_after_secs.
	MaxStatusWait time.Duration
}

type Adapter struct {
	baseURL   string
	client    *http.Client
	chunkSize int
	maxPolls  int
	maxWait   time.Duration
	strategy  platform.TokenStrategy
}

func New(opts Options, strategy platform.TokenStrategy) *Adapter {
	a := &Adapter{
		baseURL:   opts.BaseURL,
		client:    opts.HTTPClient,
		chunkSize: opts.ChunkSize,
		maxPolls:  opts.MaxStatusPolls,
		maxWait:   opts.MaxStatusWait,
		strategy:  strategy,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.client == nil {
		a.client = platform.NewHTTPClient(2 * time.Minute)
	}
	if a.chunkSize <= 0 {
		a.chunkSize = DefaultChunkSize
	}
	if a.maxPolls <= 0 {
		a.maxPolls = defaultMaxPolls
	}
	if a.maxWait <= 0 {
		a.maxWait = defaultMaxWait
	}
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformX }

func PostURL(id string) string {
	return "https://x.com/user/status/" + id
}

// TweetText places a trailing link of a text-only post on its own line so X
// renders it as a card. X has no separate link field, so the URL stays in
// the text.
func TweetText(content platform.Content) string {
	body, link := platform.SplitTrailingLink(content.Text, content.HasMedia())
	switch {
	case link == "":
		return content.Text
	case body == "":
		return link
	default:
		return body + "\n\n" + link
	}
}

func (a *Adapter) Publish(ctx context.Context, cred models.Credential, content platform.Content) (platform.Result, error) {
	if !cred.Usable() {
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
	tweet := transfer.XTweetRequest{Text: TweetText(content)}
	if content.Media != nil {
		mediaID, err := a.upload(ctx, sess, content.Media)
		if err != nil {
			return "", err
		}
		tweet.Media = &transfer.XTweetMedia{MediaIDs: []string{mediaID}}
	}

	var resp transfer.XTweetResponse
	err := sess.Call(ctx, func(token string) error {
		req, err := platform.NewJSONRequest(ctx, http.MethodPost, a.baseURL+"/2/tweets", tweet)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return platform.DoJSON(a.client, models.PlatformX, "create tweet", req, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", platform.MissingField(models.PlatformX, "create tweet", "data.id", resp)
	}
	return PostURL(resp.Data.ID), nil
}

type field struct{ key, value string }

// upload runs INIT, APPEND for every chunk, FINALIZE and, when the media is
// processed asynchronously, STATUS polling until it settles.
func (a *Adapter) upload(ctx context.Context, sess *platform.Session, m *platform.Media) (string, error) {
	rc, size, kind, err := Policy.Open(ctx, m)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var src io.Reader = rc
	if size <= 0 {
		b, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("%w: read media: %w", platform.ErrUploadFailed, err)
		}
		size = int64(len(b))
		src = bytes.NewReader(b)
	}
	if size == 0 {
		return "", fmt.Errorf("%w: media %q is empty", platform.ErrUploadFailed, m.Name)
	}

	var initResp transfer.XMediaUploadResponse
	err = sess.Call(ctx, func(token string) error {
		return a.command(ctx, token, "INIT", []field{
			{"command", "INIT"},
			{"media_type", kind.MIME.Value},
			{"total_bytes", strconv.FormatInt(size, 10)},
			{"media_category", mediaCategory(kind)},
		}, nil, &initResp)
	})
	if err != nil {
		return "", err
	}
	mediaID := initResp.Data.ID
	if mediaID == "" {
		return "", platform.MissingField(models.PlatformX, "media INIT", "data.id", initResp)
	}

	buf := make([]byte, a.chunkSize)
	segment := 0
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			chunk := buf[:n]
			idx := strconv.Itoa(segment)
			err := sess.Call(ctx, func(token string) error {
				return a.command(ctx, token, "APPEND", []field{
					{"command", "APPEND"},
					{"media_id", mediaID},
					{"segment_index", idx},
				}, chunk, nil)
			})
			if err != nil {
				return "", err
			}
			segment++
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("%w: read media: %w", platform.ErrUploadFailed, rerr)
		}
	}

	var final transfer.XMediaUploadResponse
	err = sess.Call(ctx, func(token string) error {
		return a.command(ctx, token, "FINALIZE", []field{
			{"command", "FINALIZE"},
			{"media_id", mediaID},
		}, nil, &final)
	})
	if err != nil {
		return "", err
	}

	log.Debug().Str("media_id", mediaID).Int("segments", segment).Msg("x media finalized")
	return mediaID, a.awaitProcessing(ctx, sess, mediaID, final.Data.ProcessingInfo)
}

func (a *Adapter) awaitProcessing(ctx context.Context, sess *platform.Session, mediaID string, info *transfer.XProcessingInfo) error {
	for polls := 0; info != nil; polls++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "processing failed"
			if info.Error != nil {
				msg = info.Error.Name + ": " + info.Error.Message
			}
			return fmt.Errorf("%w: %s", platform.ErrUploadFailed, msg)
		}
		if polls >= a.maxPolls {
			return fmt.Errorf("%w: media %s still %s after %d checks", platform.ErrProcessingTimedOut, mediaID, info.State, polls)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait > a.maxWait {
			wait = a.maxWait
		}
		if err := platform.Sleep(ctx, wait); err != nil {
			return err
		}

		var status transfer.XMediaUploadResponse
		err := sess.Call(ctx, func(token string) error {
			q := url.Values{}
			q.Set("command", "STATUS")
			q.Set("media_id", mediaID)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/2/media/upload?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return platform.DoJSON(a.client, models.PlatformX, "media STATUS", req, &status)
		})
		if err != nil {
			return err
		}
		info = status.Data.ProcessingInfo
	}
	return nil
}

func (a *Adapter) command(ctx context.Context, token, op string, fields []field, media []byte, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return err
		}
	}
	if media != nil {
		part, err := w.CreateFormFile("media", "media")
		if err != nil {
			return err
		}
		if _, err := part.Write(media); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/2/media/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return platform.DoJSON(a.client, models.PlatformX, "media "+op, req, out)
}

func mediaCategory(t types.Type) string {
	switch {
	case t.MIME.Value == "image/gif":
		return "tweet_gif"
	case t.MIME.Type == "video":
		return "tweet_video"
	default:
		return "tweet_image"
	}
}
