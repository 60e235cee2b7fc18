package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/platformtest"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type fakeGraph struct {
	statuses  []string
	polls     int
	container transfer.InstagramContainerRequest
	published string
}

func newFake(t *testing.T, statuses ...string) (*fakeGraph, *Adapter) {
	f := &fakeGraph{statuses: statuses}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /remote-1/media", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.container)
		writeJSON(w, map[string]string{"id": "c-1"})
	})
	mux.HandleFunc("GET /c-1", func(w http.ResponseWriter, r *http.Request) {
		f.polls++
		state := "FINISHED"
		if len(f.statuses) > 0 {
			state, f.statuses = f.statuses[0], f.statuses[1:]
		}
		writeJSON(w, map[string]string{"id": "c-1", "status_code": state})
	})
	mux.HandleFunc("POST /remote-1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var req transfer.InstagramPublishRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.published = req.CreationID
		writeJSON(w, map[string]string{"id": "m-9"})
	})
	mux.HandleFunc("GET /m-9", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "permalink" {
			t.Errorf("fields=%q", r.URL.Query().Get("fields"))
		}
		writeJSON(w, map[string]string{"id": "m-9", "permalink": "https://www.instagram.com/p/abc/"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), InitialWait: time.Nanosecond, PollWait: time.Millisecond, MaxPolls: 2}, nil)
	return f, a
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestPublish(t *testing.T) {
	f, a := newFake(t, "IN_PROGRESS", "FINISHED")
	media := platformtest.NewMedia("pic.jpg", platformtest.JPEG(100))

	res, err := a.Publish(context.Background(), platformtest.Credential(models.PlatformInstagram, "tok"), platform.Content{Text: "caption", Media: media.Media})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.URL != "https://www.instagram.com/p/abc/" {
		t.Fatalf("url=%q", res.URL)
	}
	if f.container.ImageURL != media.URL || f.container.Caption != "caption" || f.container.AccessToken != "tok" {
		t.Fatalf("container=%+v", f.container)
	}
	if f.polls != 2 || f.published != "c-1" {
		t.Fatalf("polls=%d published=%q", f.polls, f.published)
	}
}

func TestPublish_PollingBounded(t *testing.T) {
	f, a := newFake(t, "IN_PROGRESS", "IN_PROGRESS", "IN_PROGRESS", "IN_PROGRESS")
	media := platformtest.NewMedia("pic.jpg", platformtest.JPEG(100))

	_, err := a.Publish(context.Background(), platformtest.Credential(models.PlatformInstagram, "tok"), platform.Content{Media: media.Media})
	if !errors.Is(err, platform.ErrProcessingTimedOut) {
		t.Fatalf("err=%v", err)
	}
	if f.polls != 3 || f.published != "" {
		t.Fatalf("polls=%d published=%q", f.polls, f.published)
	}
}

func TestPublish_ContainerError(t *testing.T) {
	_, a := newFake(t, "ERROR")
	media := platformtest.NewMedia("pic.jpg", platformtest.JPEG(100))

	_, err := a.Publish(context.Background(), platformtest.Credential(models.PlatformInstagram, "tok"), platform.Content{Media: media.Media})
	if !errors.Is(err, platform.ErrUploadFailed) {
		t.Fatalf("err=%v", err)
	}
}

func TestPublish_RequiresJPEG(t *testing.T) {
	f, a := newFake(t)
	cred := platformtest.Credential(models.PlatformInstagram, "tok")

	if _, err := a.Publish(context.Background(), cred, platform.Content{Text: "text only"}); !errors.Is(err, platform.ErrMediaRequired) {
		t.Fatalf("text only: %v", err)
	}
	png := platformtest.NewMedia("pic.png", platformtest.PNG(100))
	if _, err := a.Publish(context.Background(), cred, platform.Content{Media: png.Media}); !errors.Is(err, platform.ErrUnsupportedMediaType) {
		t.Fatalf("png: %v", err)
	}
	if f.container.ImageURL != "" {
		t.Fatal("no container expected")
	}
}

func TestTokenStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh_access_token" || r.URL.Query().Get("grant_type") != "ig_refresh_token" || r.URL.Query().Get("access_token") != "old" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeJSON(w, map[string]any{"access_token": "new", "token_type": "bearer", "expires_in": 5184000})
	}))
	defer srv.Close()

	s := NewTokenStrategy(srv.URL, srv.Client())
	now := time.Now()
	next, err := s.Refresh(context.Background(), platformtest.Credential(models.PlatformInstagram, "old"), now)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := now.Add(60*24*time.Hour - platform.ExpirySafetyMargin)
	if next.AccessToken != "new" || !next.AccessExpiresAt.Equal(want) {
		t.Fatalf("next=%+v", next)
	}
}
