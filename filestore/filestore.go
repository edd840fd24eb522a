// Package filestore persists uploaded documents on local disk and hands out
// opaque locators for them. The lifecycle engine never interprets a locator
// beyond storing it.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/uploads"

// Store writes uploaded bytes under a directory on local disk.
type Store struct {
	dir string
}

// New ensures the upload directory exists and returns a store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory files are stored under, for static serving.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists the reader's bytes under a name unique per upload and
// returns the locator. The stored name keeps the original filename for
// operators, prefixed with the upload time and a random suffix so repeated
// uploads of the same document never collide.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	name := sanitizeName(originalName)
	unique := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], name)

	dst, err := os.Create(filepath.Join(s.dir, unique))
	if err != nil {
		return "", fmt.Errorf("filestore: create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("filestore: write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("filestore: close file: %w", err)
	}

	return URLPrefix + "/" + unique, nil
}

// sanitizeName strips path components and characters that would break the
// locator-to-path mapping.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
