package capture

import (
	"fmt"
	"os"
	"path/filepath"
)

// MediaSpool owns temporary media files produced during capture. Files live
// only until the handle referencing them is released.
type MediaSpool struct {
	basePath string
}

// NewMediaSpool creates a spool directory if it does not exist
func NewMediaSpool(basePath string) (*MediaSpool, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &MediaSpool{basePath: basePath}, nil
}

// Allocate reserves a path for a capture tool to write into
func (s *MediaSpool) Allocate(filename string) string {
	return filepath.Join(s.basePath, filename)
}

// Save writes data to a spool file and returns its full path
func (s *MediaSpool) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	return path, nil
}

// Get reads a spool file
func (s *MediaSpool) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spool file: %w", err)
	}
	return data, nil
}

// Delete removes a spool file
func (s *MediaSpool) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting spool file: %w", err)
	}
	return nil
}
