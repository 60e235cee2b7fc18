package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/postflow/configs"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(t.TempDir(), "https://app.example.com/")

	if err := s.Put(ctx, "2026/10/photo.jpg", []byte("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, size, err := s.Open(ctx, "2026/10/photo.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "jpeg-bytes" || size != int64(len(b)) {
		t.Fatalf("content=%q size=%d", b, size)
	}
	if got := s.URL("2026/10/photo.jpg"); got != "https://app.example.com/media/2026/10/photo.jpg" {
		t.Fatalf("url=%q", got)
	}

	if err := s.Remove(ctx, "2026/10/photo.jpg"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, "2026/10/photo.jpg"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, _, err := s.Open(ctx, "2026/10/photo.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, _, err := s.Open(ctx, "../etc/passwd"); err == nil {
		t.Fatal("traversal must be rejected")
	}
}

func TestMedia(t *testing.T) {
	s := NewLocal(t.TempDir(), "http://localhost:3000")
	_ = s.Put(context.Background(), "clip.mp4", []byte("0123456789"), "video/mp4")

	m := Media(s, "clip.mp4")
	if m.Name != "clip.mp4" || m.URL != "http://localhost:3000/media/clip.mp4" {
		t.Fatalf("media=%+v", m)
	}
	rc, size, err := m.Open(context.Background())
	if err != nil || size != 10 {
		t.Fatalf("open: %v size=%d", err, size)
	}
	rc.Close()
}

// fakeS3 is a path-style S3 endpoint keeping objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[key] = b
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestR2(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	r, err := NewR2(ctx, config.R2{AccountID: "acc", AccessKey: "ak", SecretKey: "sk", BucketName: "media", PublicURL: "https://cdn.example.com/"},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(srv.URL)
			o.UsePathStyle = true
			o.HTTPClient = srv.Client()
		})
	if err != nil {
		t.Fatalf("NewR2: %v", err)
	}

	if err := r.Put(ctx, "a/photo.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["media/a/photo.png"]; !ok {
		t.Fatalf("objects=%v", fake.objects)
	}

	rc, size, err := r.Open(ctx, "a/photo.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "png" || size != 3 {
		t.Fatalf("content=%q size=%d", b, size)
	}

	if got := r.URL("a/photo.png"); got != "https://cdn.example.com/a/photo.png" {
		t.Fatalf("url=%q", got)
	}

	if err := r.Remove(ctx, "a/photo.png"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := r.Open(ctx, "a/photo.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}
