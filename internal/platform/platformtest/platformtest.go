// Package platformtest provides media fixtures and fakes for adapter tests.
package platformtest

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

func pad(head []byte, size int) []byte {
	if size < len(head) {
		size = len(head)
	}
	b := make([]byte, size)
	copy(b, head)
	for i := len(head); i < size; i++ {
		b[i] = byte(i % 251)
	}
	return b
}

func JPEG(size int) []byte { return pad([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, size) }

func PNG(size int) []byte {
	return pad([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, size)
}

func MP4(size int) []byte {
	return pad([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}, size)
}

// Media wraps data as post media; Opens counts how often it was opened.
type Media struct {
	*platform.Media
	Opens atomic.Int32
}

func NewMedia(name string, data []byte) *Media {
	m := &Media{}
	m.Media = &platform.Media{
		Name: name,
		URL:  "https://cdn.example.com/" + name,
		Size: int64(len(data)),
		Open: func(context.Context) (io.ReadCloser, int64, error) {
			m.Opens.Add(1)
			return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
		},
	}
	return m
}

func Credential(p models.Platform, token string) models.Credential {
	exp := time.Now().Add(24 * time.Hour)
	return models.Credential{
		AccountID:       1,
		Platform:        p,
		RemoteUserID:    "remote-1",
		AccessToken:     token,
		RefreshToken:    "refresh-" + token,
		AccessExpiresAt: &exp,
	}
}

// Strategy is a TokenStrategy that hands out a fixed token.
type Strategy struct {
	P     models.Platform
	Token string
	Err   error
	Calls atomic.Int32
}

func (s *Strategy) Platform() models.Platform { return s.P }

func (s *Strategy) Refresh(_ context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	s.Calls.Add(1)
	if s.Err != nil {
		return cred, s.Err
	}
	next := cred
	next.AccessToken = s.Token
	exp := now.Add(time.Hour)
	next.AccessExpiresAt = &exp
	return next, nil
}
