package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink stores exports in a local directory.
type LocalSink struct {
	basePath string
}

// NewLocal creates a sink rooted at basePath. The directory is created if
// it doesn't exist.
func NewLocal(basePath string) (*LocalSink, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &LocalSink{basePath: absPath}, nil
}

func validateKey(key string) error {
	if key == "" ||
		strings.ContainsRune(key, 0) ||
		strings.Contains(key, "..") ||
		filepath.IsAbs(key) {
		return fmt.Errorf("invalid export key %q", key)
	}
	return nil
}

// Store writes the artifact under basePath, creating intermediate
// directories as needed.
func (s *LocalSink) Store(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Write to a temp file first so a partial export is never visible.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize export: %w", err)
	}
	return nil
}
