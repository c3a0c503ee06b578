package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Store persists chunk binary content under a configured root directory.
// Single-file chunks use the chunk id as filename stem; multi-part chunks
// append an ordinal suffix so one logical chunk can reference several files.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore builds a blob store rooted at dir on the given filesystem.
func NewStore(fs afero.Fs, root string) (*Store, error) {
	if fs == nil {
		return nil, errors.New("blob: filesystem is required")
	}
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob: storage root is required")
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create storage root %q: %w", root, err)
	}
	return &Store{fs: fs, root: root}, nil
}

// FileName derives the blob filename for a chunk part. A negative ordinal
// means a single-file chunk without suffix.
func FileName(chunkID string, ordinal int, contentType string) string {
	stem := chunkID
	if ordinal >= 0 {
		stem = fmt.Sprintf("%s_%d", chunkID, ordinal)
	}
	return stem + extensionFor(contentType)
}

// Write stores one blob part and returns its filename relative to the root.
func (s *Store) Write(chunkID string, ordinal int, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(chunkID) == "" {
		return "", errors.New("blob: chunk id is required")
	}
	name := FileName(chunkID, ordinal, contentType)
	if err := afero.WriteFile(s.fs, filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %q: %w", name, err)
	}
	return name, nil
}

// Read returns the content of a previously written blob part.
func (s *Store) Read(name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, name))
	if err != nil {
		return nil, fmt.Errorf("blob: read %q: %w", name, err)
	}
	return data, nil
}

// Remove deletes the given blob parts. Missing files are ignored so removal
// stays idempotent for retried work units.
func (s *Store) Remove(names []string) error {
	for _, name := range names {
		err := s.fs.Remove(filepath.Join(s.root, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, afero.ErrFileNotFound) {
			return fmt.Errorf("blob: remove %q: %w", name, err)
		}
	}
	return nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/"):
		return ".img"
	case strings.HasPrefix(contentType, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(contentType, "text/"):
		return ".txt"
	default:
		return ".bin"
	}
}
