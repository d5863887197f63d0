package repositories

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Blobs stores media content on disk, addressed by content hash.
type Blobs struct {
	root string
}

// NewBlobs prepares root and its temp directory.
func NewBlobs(root string) (*Blobs, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("prepare media root: %w", err)
	}
	return &Blobs{root: root}, nil
}

// CreateTemp opens a new upload file inside the media root so that Place can
// rename it without crossing filesystems.
func (b *Blobs) CreateTemp() (*os.File, error) {
	return os.CreateTemp(filepath.Join(b.root, "tmp"), "upload-*")
}

// Place moves tmpPath to the location of hash and returns the path relative
// to the root. When the blob already exists the temp file is discarded.
func (b *Blobs) Place(tmpPath, hash string) (string, error) {
	if len(hash) < 2 {
		return "", fmt.Errorf("invalid hash %q", hash)
	}
	rel := filepath.Join(hash[:2], hash)
	dst := filepath.Join(b.root, rel)
	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return rel, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", err
	}
	return rel, nil
}

// Open reads a blob by its relative path.
func (b *Blobs) Open(rel string) (*os.File, error) {
	f, err := os.Open(filepath.Join(b.root, filepath.Clean(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}
