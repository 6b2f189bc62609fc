// Package blob stores uploaded answer media on local disk. Keys are
// UUID-prefixed so concurrent uploads of identically named files never
// collide, and client filenames are reduced to a sanitized base name
// before they touch the filesystem.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a flat directory of uploaded files keyed by generated name.
type Store struct {
	root string
}

// New creates the uploads directory if needed and returns the store.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes the content under a fresh key derived from the client
// filename and returns the key.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	key := uuid.NewString() + "_" + sanitizeFilename(filename)

	f, err := os.Create(filepath.Join(s.root, key))
	if err != nil {
		return "", fmt.Errorf("create blob %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return key, nil
}

// Open returns the stored file for a key. Keys with path separators or
// parent references are rejected outright.
func (s *Store) Open(key string) (*os.File, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return nil, fmt.Errorf("invalid blob key %q", key)
	}
	return os.Open(filepath.Join(s.root, key))
}

// sanitizeFilename keeps the base name with a conservative character
// set so the original name stays readable inside the key.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(sb.String(), ".")
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}
