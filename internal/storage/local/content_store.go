// Package local implements a filesystem content store, used for development
// and for serving published sites from a plain web server.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/site-cloner/internal/cdn"
	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory objects are written under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// PublicBaseURL is the URL BaseDir is served from. Empty yields file:// URLs.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// ContentStore writes objects to the local filesystem.
type ContentStore struct {
	baseDir string
	baseURL string
}

// New creates a filesystem-backed content store. The directory itself is
// checked by EnsureContainer.
func New(cfg Config) (*ContentStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &ContentStore{baseDir: abs, baseURL: cfg.PublicBaseURL}, nil
}

// EnsureContainer verifies the base directory exists and is writable,
// creating it when create is set.
func (s *ContentStore) EnsureContainer(_ context.Context, create bool) error {
	info, err := os.Stat(s.baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !create {
			return fmt.Errorf("directory %s: %w", s.baseDir, cloner.ErrContainerNotFound)
		}
		if mkErr := os.MkdirAll(s.baseDir, 0o750); mkErr != nil {
			return fmt.Errorf("failed to create base directory: %w", mapError(mkErr))
		}
	case err != nil:
		return fmt.Errorf("failed to stat base directory: %w", mapError(err))
	case !info.IsDir():
		return fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(s.baseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("base directory is not writable: %w", mapError(err))
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("failed to clean up test file: %w", err)
	}
	return nil
}

// Put writes data to path, reporting unchanged when the file already holds
// the same bytes.
func (s *ContentStore) Put(_ context.Context, path, _ string, data []byte) (cloner.PutStatus, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	status := cloner.PutCreated
	existing, err := os.ReadFile(fullPath) // #nosec G304 -- path is confined to baseDir by resolve.
	switch {
	case err == nil:
		if bytes.Equal(existing, data) {
			return cloner.PutUnchanged, nil
		}
		status = cloner.PutUpdated
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read %s: %w", path, mapError(err))
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", mapError(err))
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", mapError(err))
	}
	return status, nil
}

// Get reads a file; the content type is derived from its extension.
func (s *ContentStore) Get(_ context.Context, path string) (cloner.Object, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return cloner.Object{}, err
	}
	data, err := os.ReadFile(fullPath) // #nosec G304 -- path is confined to baseDir by resolve.
	if err != nil {
		return cloner.Object{}, fmt.Errorf("read %s: %w", path, mapError(err))
	}
	return cloner.Object{
		Path:        path,
		ContentType: mime.TypeByExtension(filepath.Ext(fullPath)),
		Data:        data,
	}, nil
}

// Delete removes a file and any directories it leaves empty.
func (s *ContentStore) Delete(_ context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("delete %s: %w", path, mapError(err))
	}
	for dir := filepath.Dir(fullPath); dir != s.baseDir && strings.HasPrefix(dir, s.baseDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// List returns the direct children of prefix, sorted by path.
func (s *ContentStore) List(_ context.Context, prefix string) ([]cloner.ObjectInfo, error) {
	dir := strings.Trim(prefix, "/")
	fullPath := s.baseDir
	if dir != "" {
		var err error
		if fullPath, err = s.resolve(dir); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
	}
	out := make([]cloner.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info := cloner.ObjectInfo{
			Path:  strings.TrimPrefix(dir+"/"+entry.Name(), "/"),
			Name:  entry.Name(),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if fi, err := entry.Info(); err == nil {
				info.Size = fi.Size()
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// PublicURL returns the configured public URL for path, or a file:// URI.
func (s *ContentStore) PublicURL(path string) string {
	if s.baseURL != "" {
		return cdn.Join(s.baseURL, path)
	}
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(path))
}

// resolve maps an object path into baseDir, rejecting traversal.
func (s *ContentStore) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(path)))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", cloner.ErrObjectNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", cloner.ErrPermissionDenied, err)
	}
	return err
}
