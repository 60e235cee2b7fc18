package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
)

// sniffLen is how many leading bytes filetype needs to match every known type.
const sniffLen = 262

var extAliases = map[string]string{
	"jpeg": "jpg",
}

// MediaPolicy is the set of file extensions a platform accepts.
type MediaPolicy struct {
	Platform   models.Platform
	Extensions []string
}

func NewMediaPolicy(p models.Platform, exts ...string) MediaPolicy {
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		norm = append(norm, normalizeExt(e))
	}
	return MediaPolicy{Platform: p, Extensions: norm}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if a, ok := extAliases[ext]; ok {
		return a
	}
	return ext
}

// Extension returns the normalized extension of a media name.
func Extension(name string) string {
	return normalizeExt(filepath.Ext(name))
}

// TypeOf maps a media name to its file type by extension.
func TypeOf(name string) types.Type {
	return filetype.GetType(Extension(name))
}

func IsVideo(name string) bool {
	return TypeOf(name).MIME.Type == "video"
}

func IsImage(name string) bool {
	return TypeOf(name).MIME.Type == "image"
}

func (p MediaPolicy) allowed(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Check validates the media name against the allow-list. It never touches
// the network and must run before any upload step.
func (p MediaPolicy) Check(m *Media) (types.Type, error) {
	if m == nil {
		return types.Unknown, nil
	}
	ext := Extension(m.Name)
	if !p.allowed(ext) {
		return types.Unknown, fmt.Errorf("%w: %s does not accept %q", ErrUnsupportedMediaType, p.Platform, filepath.Ext(m.Name))
	}
	t := filetype.GetType(ext)
	if t == types.Unknown {
		return types.Unknown, fmt.Errorf("%w: unknown type for %q", ErrUnsupportedMediaType, m.Name)
	}
	return t, nil
}

// Open opens the media and verifies that its content matches the allow-list.
// The returned reader yields the full content, sniffed bytes included.
func (p MediaPolicy) Open(ctx context.Context, m *Media) (io.ReadCloser, int64, types.Type, error) {
	if _, err := p.Check(m); err != nil {
		return nil, 0, types.Unknown, err
	}
	if m.Open == nil {
		return nil, 0, types.Unknown, fmt.Errorf("%w: media %q cannot be opened", ErrUploadFailed, m.Name)
	}

	rc, size, err := m.Open(ctx)
	if err != nil {
		return nil, 0, types.Unknown, fmt.Errorf("%w: open %q: %w", ErrUploadFailed, m.Name, err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		rc.Close()
		return nil, 0, types.Unknown, fmt.Errorf("%w: read %q: %w", ErrUploadFailed, m.Name, err)
	}
	head = head[:n]

	sniffed, _ := filetype.Match(head)
	if sniffed == types.Unknown || !p.allowed(normalizeExt(sniffed.Extension)) {
		rc.Close()
		return nil, 0, types.Unknown, fmt.Errorf("%w: content of %q is %s", ErrUnsupportedMediaType, m.Name, sniffed.MIME.Value)
	}

	return readCloser{Reader: io.MultiReader(bytes.NewReader(head), rc), Closer: rc}, size, sniffed, nil
}

// ReadAll opens the media through the policy and buffers it.
func (p MediaPolicy) ReadAll(ctx context.Context, m *Media) ([]byte, types.Type, error) {
	rc, _, t, err := p.Open(ctx, m)
	if err != nil {
		return nil, types.Unknown, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, types.Unknown, fmt.Errorf("%w: read %q: %w", ErrUploadFailed, m.Name, err)
	}
	return b, t, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
