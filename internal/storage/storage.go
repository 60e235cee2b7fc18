// Package storage resolves post media keys to readable files and public URLs.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/maheshrc27/postflow/internal/platform"
)

var ErrNotFound = errors.New("media not found")

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// URL is the public address pull-based platforms fetch the media from.
	URL(key string) string
	Remove(ctx context.Context, key string) error
}

// Media describes key as post media backed by s.
func Media(s Store, key string) *platform.Media {
	return &platform.Media{
		Name: key,
		URL:  s.URL(key),
		Open: func(ctx context.Context) (io.ReadCloser, int64, error) {
			return s.Open(ctx, key)
		},
	}
}
