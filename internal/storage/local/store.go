// Package local implements the local filesystem store that holds section
// files and checkpoints. Every write goes to a temporary file in the target
// directory and is renamed into place, so readers never see a partial file.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where files will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes files under a base directory.
type Store struct {
	baseDir string
}

// New creates a new local filesystem store, creating BaseDir if needed and
// checking that it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// BaseDir returns the root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Path resolves objectName below the base directory, rejecting traversal.
func (s *Store) Path(objectName string) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("path is required")
	}
	cleanBaseDir := filepath.Clean(s.baseDir)
	fullPath := filepath.Clean(filepath.Join(cleanBaseDir, filepath.FromSlash(objectName)))
	if !strings.HasPrefix(fullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// Save atomically writes data to objectName, replacing any existing file.
func (s *Store) Save(_ context.Context, objectName string, data []byte) error {
	fullPath, err := s.Path(objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// Load reads objectName. A missing file yields an error matching os.ErrNotExist.
func (s *Store) Load(objectName string) ([]byte, error) {
	fullPath, err := s.Path(objectName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath) // #nosec G304 -- path is confined to baseDir above.
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objectName, err)
	}
	return data, nil
}

// Remove deletes objectName. Removing a missing file is not an error.
func (s *Store) Remove(objectName string) error {
	fullPath, err := s.Path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", objectName, err)
	}
	return nil
}

// Exists reports whether objectName is present.
func (s *Store) Exists(objectName string) bool {
	fullPath, err := s.Path(objectName)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}
