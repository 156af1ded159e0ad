package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps media as files under a directory that the API serves
// at publicBaseURL.
type LocalStore struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(basePath, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("media: create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath, publicBaseURL: publicBaseURL}, nil
}

// Dir is the directory holding stored files.
func (s *LocalStore) Dir() string {
	return s.basePath
}

// Upload writes data atomically (temp file then rename).
func (s *LocalStore) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	publicID := newPublicID(contentType)

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("media: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("media: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("media: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.basePath, publicID)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("media: rename temp file: %w", err)
	}
	return publicID, nil
}

func (s *LocalStore) OptimizedURL(publicID string) string {
	return joinURL(s.publicBaseURL, publicID)
}
