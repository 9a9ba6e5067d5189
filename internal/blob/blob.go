// Package blob stores uploaded birthday photos.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 << 20

var (
	ErrNotFound    = errors.New("blob: not found")
	ErrTooLarge    = errors.New("blob: file too large")
	ErrUnsupported = errors.New("blob: unsupported image type")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store is the photo storage the birthday handlers depend on.
type Store interface {
	// Put sniffs and stores an image and returns its key.
	Put(ctx context.Context, r io.Reader) (key string, err error)
	Open(key string) (io.ReadSeekCloser, string, error)
	Delete(ctx context.Context, key string) error
	// URL is the public path the frontend loads the image from.
	URL(key string) string
}

// DiskStore keeps blobs as files under a single directory.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates dir if needed. baseURL is prefixed to "/uploads/{key}".
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Put(_ context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("blob: read upload: %w", err)
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	ext, ok := allowedTypes[http.DetectContentType(data)]
	if !ok {
		return "", ErrUnsupported
	}

	key := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("blob: commit: %w", err)
	}
	return key, nil
}

// Open returns the file and its content type.
func (s *DiskStore) Open(key string) (io.ReadSeekCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("blob: open: %w", err)
	}
	ctype := "application/octet-stream"
	for t, ext := range allowedTypes {
		if strings.HasSuffix(key, ext) {
			ctype = t
			break
		}
	}
	return f, ctype, nil
}

// Delete removes a blob. A missing blob is not an error.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}

func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/uploads/" + key
}

// path rejects anything that is not a bare generated key.
func (s *DiskStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, key), nil
}
