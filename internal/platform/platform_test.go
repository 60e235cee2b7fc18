package platform_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/platformtest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSplitTrailingLink(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hasMedia bool
		body     string
		link     string
	}{
		{"trailing https", "read this https://example.com/a", false, "read this", "https://example.com/a"},
		{"trailing http with space", "read this http://example.com  ", false, "read this", "http://example.com"},
		{"only link", "https://example.com", false, "", "https://example.com"},
		{"media keeps text", "see https://example.com", true, "see https://example.com", ""},
		{"link in middle", "https://example.com is great", false, "https://example.com is great", ""},
		{"no scheme", "visit example.com", false, "visit example.com", ""},
		{"no host", "broken https://", false, "broken https://", ""},
		{"empty", "", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, link := platform.SplitTrailingLink(tt.text, tt.hasMedia)
			if body != tt.body || link != tt.link {
				t.Fatalf("got (%q, %q), want (%q, %q)", body, link, tt.body, tt.link)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	if got := platform.FirstLine("\n  Hello world \nsecond", 100); got != "Hello world" {
		t.Fatalf("got %q", got)
	}
	if got := platform.FirstLine("héllo wörld", 5); got != "héllo" {
		t.Fatalf("got %q", got)
	}
	if got := platform.FirstLine(" \n ", 10); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestMediaPolicy(t *testing.T) {
	p := platform.NewMediaPolicy(models.PlatformLinkedIn, "jpeg", "mp4")

	if _, err := p.Check(nil); err != nil {
		t.Fatalf("nil media: %v", err)
	}
	jpg := platformtest.NewMedia("photo.JPG", platformtest.JPEG(600))
	if _, err := p.Check(jpg.Media); err != nil {
		t.Fatalf("jpg alias rejected: %v", err)
	}
	gif := platformtest.NewMedia("anim.gif", []byte("GIF89a"))
	if _, err := p.Check(gif.Media); !errors.Is(err, platform.ErrUnsupportedMediaType) {
		t.Fatalf("gif accepted: %v", err)
	}
	if gif.Opens.Load() != 0 {
		t.Fatal("Check must not open media")
	}

	data, kind, err := p.ReadAll(context.Background(), jpg.Media)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(data) != 600 || kind.MIME.Value != "image/jpeg" {
		t.Fatalf("len=%d mime=%s", len(data), kind.MIME.Value)
	}

	lying := platformtest.NewMedia("clip.mp4", platformtest.PNG(400))
	if _, _, err := p.ReadAll(context.Background(), lying.Media); !errors.Is(err, platform.ErrUnsupportedMediaType) {
		t.Fatalf("png content accepted under an mp4 name: %v", err)
	}
}

func TestMediaKinds(t *testing.T) {
	if !platform.IsVideo("a.mp4") || platform.IsVideo("a.png") {
		t.Fatal("IsVideo")
	}
	if !platform.IsImage("a.jpeg") || platform.IsImage("a.mov") {
		t.Fatal("IsImage")
	}
}

func TestAPIErrorClassification(t *testing.T) {
	unauthorized := fmt.Errorf("wrapped: %w", &platform.APIError{Platform: models.PlatformX, Op: "tweet", Status: 401})
	if !errors.Is(unauthorized, platform.ErrUnauthorized) || !errors.Is(unauthorized, platform.ErrRemoteAPI) {
		t.Fatal("401 should be both unauthorized and remote")
	}
	server := &platform.APIError{Platform: models.PlatformX, Op: "tweet", Status: 500}
	if errors.Is(server, platform.ErrUnauthorized) || !errors.Is(server, platform.ErrRemoteAPI) {
		t.Fatal("500 should only be remote")
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"id":"1"}`))
		case "/bad":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`nope`))
		}
	}))
	defer srv.Close()

	var out struct{ ID string }
	req, _ := platform.NewJSONRequest(context.Background(), http.MethodGet, srv.URL+"/ok", nil)
	if err := platform.DoJSON(srv.Client(), models.PlatformX, "ok", req, &out); err != nil || out.ID != "1" {
		t.Fatalf("ok: %v %+v", err, out)
	}

	req, _ = platform.NewJSONRequest(context.Background(), http.MethodGet, srv.URL+"/bad", nil)
	var apiErr *platform.APIError
	if err := platform.DoJSON(srv.Client(), models.PlatformX, "bad", req, &out); !errors.As(err, &apiErr) || apiErr.Status != http.StatusOK {
		t.Fatalf("malformed body: %v", err)
	}

	req, _ = platform.NewJSONRequest(context.Background(), http.MethodGet, srv.URL+"/teapot", nil)
	if err := platform.DoJSON(srv.Client(), models.PlatformX, "teapot", req, &out); !errors.As(err, &apiErr) || apiErr.Body != "nope" {
		t.Fatalf("status error: %v", err)
	}
}

func TestDoLogsFullErrorBody(t *testing.T) {
	long := strings.Repeat("e", 6000) + "-tail"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	req, _ := platform.NewJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	_, _, err := platform.Do(srv.Client(), models.PlatformLinkedIn, "ugcPosts", req)
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("err=%v", err)
	}
	if strings.HasSuffix(apiErr.Body, "-tail") || len(apiErr.Body) > 4100 {
		t.Fatalf("error body not truncated: %d bytes", len(apiErr.Body))
	}
	if !strings.Contains(buf.String(), long) {
		t.Fatal("log line does not carry the full response body")
	}
}

func TestSession(t *testing.T) {
	unauthorized := &platform.APIError{Status: 401}
	cred := platformtest.Credential(models.PlatformX, "stale")

	t.Run("refresh and retry once", func(t *testing.T) {
		s := &platformtest.Strategy{P: models.PlatformX, Token: "fresh"}
		sess := platform.NewSession(cred, s)
		var seen []string
		err := sess.Call(context.Background(), func(token string) error {
			seen = append(seen, token)
			if token == "stale" {
				return unauthorized
			}
			return nil
		})
		if err != nil || len(seen) != 2 || seen[1] != "fresh" {
			t.Fatalf("err=%v seen=%v", err, seen)
		}
		res, err := sess.Finish("https://example.com/p/1", nil)
		if err != nil || res.Refreshed == nil || res.Refreshed.AccessToken != "fresh" {
			t.Fatalf("finish: %v %+v", err, res)
		}

		// Later 401s do not refresh again.
		err = sess.Call(context.Background(), func(string) error { return unauthorized })
		if !errors.Is(err, platform.ErrUnauthorized) || s.Calls.Load() != 1 {
			t.Fatalf("err=%v calls=%d", err, s.Calls.Load())
		}
	})

	t.Run("refresh failure revokes", func(t *testing.T) {
		s := &platformtest.Strategy{P: models.PlatformX, Err: errors.New("invalid_grant")}
		sess := platform.NewSession(cred, s)
		err := sess.Call(context.Background(), func(string) error { return unauthorized })
		if !errors.Is(err, platform.ErrCredentialRevoked) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("unchanged token is not retried", func(t *testing.T) {
		s := &platformtest.Strategy{P: models.PlatformX, Token: "stale"}
		sess := platform.NewSession(cred, s)
		calls := 0
		err := sess.Call(context.Background(), func(string) error { calls++; return unauthorized })
		if !errors.Is(err, platform.ErrUnauthorized) || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
		if _, err := sess.Finish("", err); errors.As(err, new(*platform.PublishError)) {
			t.Fatal("no refreshed credential expected")
		}
	})

	t.Run("interrupted refresh does not revoke", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		sess := platform.NewSession(cred, blockingStrategy{})
		err := sess.Call(ctx, func(string) error { return unauthorized })
		if errors.Is(err, platform.ErrCredentialRevoked) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("refresher in context replaces strategy", func(t *testing.T) {
		s := &platformtest.Strategy{P: models.PlatformX, Token: "unused"}
		rotated := cred
		rotated.AccessToken = "rotated-by-sibling"
		r := &staticRefresher{cred: rotated}
		ctx := platform.WithRefresher(context.Background(), r)

		sess := platform.NewSession(cred, s)
		var seen []string
		err := sess.Call(ctx, func(token string) error {
			seen = append(seen, token)
			if token == "stale" {
				return unauthorized
			}
			return nil
		})
		if err != nil || r.calls != 1 || s.Calls.Load() != 0 {
			t.Fatalf("err=%v refresher=%d strategy=%d", err, r.calls, s.Calls.Load())
		}
		if seen[len(seen)-1] != "rotated-by-sibling" {
			t.Fatalf("seen=%v", seen)
		}
	})

	t.Run("refresher missing credential is not a revocation", func(t *testing.T) {
		r := &staticRefresher{err: fmt.Errorf("%w: gone", platform.ErrMissingCredential)}
		ctx := platform.WithRefresher(context.Background(), r)
		sess := platform.NewSession(cred, &platformtest.Strategy{P: models.PlatformX})
		err := sess.Call(ctx, func(string) error { return unauthorized })
		if errors.Is(err, platform.ErrCredentialRevoked) || !errors.Is(err, platform.ErrMissingCredential) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		s := &platformtest.Strategy{P: models.PlatformX, Token: "fresh"}
		sess := platform.NewSession(cred, s)
		boom := errors.New("boom")
		if err := sess.Call(context.Background(), func(string) error { return boom }); err != boom || s.Calls.Load() != 0 {
			t.Fatalf("err=%v", err)
		}
	})
}

type blockingStrategy struct{}

func (blockingStrategy) Platform() models.Platform { return models.PlatformX }

func (blockingStrategy) Refresh(ctx context.Context, cred models.Credential, _ time.Time) (models.Credential, error) {
	<-ctx.Done()
	return cred, ctx.Err()
}

type staticRefresher struct {
	cred  models.Credential
	err   error
	calls int
}

func (r *staticRefresher) RefreshStale(_ context.Context, stale models.Credential) (models.Credential, error) {
	r.calls++
	if r.err != nil {
		return stale, r.err
	}
	return r.cred, nil
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := platform.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestRegistryEnabledOrder(t *testing.T) {
	r := platform.NewRegistry()
	r.Register(stubAdapter(models.PlatformYouTube), nil)
	r.Register(stubAdapter(models.PlatformX), &platformtest.Strategy{P: models.PlatformX})
	got := r.Enabled()
	if len(got) != 2 || got[0] != models.PlatformX || got[1] != models.PlatformYouTube {
		t.Fatalf("enabled=%v", got)
	}
	if _, ok := r.Strategy(models.PlatformYouTube); ok {
		t.Fatal("no strategy registered for youtube")
	}
}

type stubAdapter models.Platform

func (s stubAdapter) Platform() models.Platform { return models.Platform(s) }

func (s stubAdapter) Publish(context.Context, models.Credential, platform.Content) (platform.Result, error) {
	return platform.Result{}, nil
}
