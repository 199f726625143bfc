// Package uploads stores user-supplied images on local disk.
package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/eventdesk/server/internal/config"
	"github.com/eventdesk/server/internal/domain/ids"
	"github.com/eventdesk/server/internal/fault"
)

var (
	ErrTooLarge        = fault.New(fault.KindValidation, "file_too_large", "image exceeds the maximum upload size")
	ErrUnsupportedType = fault.New(fault.KindValidation, "unsupported_file_type", "image must be PNG, JPEG, GIF or WebP")
	ErrEmpty           = fault.New(fault.KindValidation, "empty_file", "image file is empty")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes images under dir and exposes them under publicPrefix.
type Store struct {
	dir          string
	publicPrefix string
	maxBytes     int64
}

func NewStore(cfg config.UploadsConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("uploads directory is required")
	}
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("uploads max size must be positive")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = "/uploads/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{dir: cfg.Dir, publicPrefix: prefix, maxBytes: cfg.MaxBytes}, nil
}

// MaxBytes is the largest accepted image.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// PublicPrefix is the URL path images are served under.
func (s *Store) PublicPrefix() string {
	return s.publicPrefix
}

// Dir is the directory images are written to.
func (s *Store) Dir() string {
	return s.dir
}

// SaveImage sniffs the content type of r, rejects anything but the
// supported image formats and writes it under a fresh ULID name. It returns
// the public URL path of the stored file.
func (s *Store) SaveImage(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", ErrUnsupportedType
	}

	id, err := ids.NewULID()
	if err != nil {
		return "", err
	}
	name := strings.ToLower(id) + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path.Join(s.publicPrefix, name), nil
}

// Handler serves stored images. Directory listings are not exposed.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(s.publicPrefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	}))
}
