// Package memory keeps published content and job records in process memory
// for development and tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/site-cloner/internal/cdn"
	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// ContentStore is an in-memory cloner.ContentStore.
type ContentStore struct {
	mu      sync.RWMutex
	objects map[string]cloner.Object
	exists  bool
	baseURL string
}

// NewContentStore creates a store whose container already exists. Public
// URLs are baseURL joined with the object path.
func NewContentStore(baseURL string) *ContentStore {
	if baseURL == "" {
		baseURL = "memory://sitecloner"
	}
	return &ContentStore{
		objects: make(map[string]cloner.Object),
		exists:  true,
		baseURL: baseURL,
	}
}

// NewMissingContentStore creates a store whose container does not exist yet.
func NewMissingContentStore(baseURL string) *ContentStore {
	s := NewContentStore(baseURL)
	s.exists = false
	return s
}

// EnsureContainer implements cloner.ContentStore.
func (s *ContentStore) EnsureContainer(_ context.Context, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists {
		return nil
	}
	if !create {
		return cloner.ErrContainerNotFound
	}
	s.exists = true
	return nil
}

// Put stores a copy of data.
func (s *ContentStore) Put(_ context.Context, path, contentType string, data []byte) (cloner.PutStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return "", cloner.ErrContainerNotFound
	}
	path = clean(path)
	status := cloner.PutCreated
	if existing, ok := s.objects[path]; ok {
		if bytes.Equal(existing.Data, data) && existing.ContentType == contentType {
			return cloner.PutUnchanged, nil
		}
		status = cloner.PutUpdated
	}
	s.objects[path] = cloner.Object{
		Path:        path,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return status, nil
}

// Get returns a copy of the object at path.
func (s *ContentStore) Get(_ context.Context, path string) (cloner.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[clean(path)]
	if !ok {
		return cloner.Object{}, cloner.ErrObjectNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

// Delete removes the object at path.
func (s *ContentStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path = clean(path)
	if _, ok := s.objects[path]; !ok {
		return cloner.ErrObjectNotFound
	}
	delete(s.objects, path)
	return nil
}

// List returns the direct children of prefix, directories included.
func (s *ContentStore) List(_ context.Context, prefix string) ([]cloner.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return nil, cloner.ErrContainerNotFound
	}
	dir := clean(prefix)
	if dir != "" {
		dir += "/"
	}
	children := make(map[string]cloner.ObjectInfo)
	for path, obj := range s.objects {
		if !strings.HasPrefix(path, dir) {
			continue
		}
		rest := path[len(dir):]
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			children[name] = cloner.ObjectInfo{Path: dir + name, Name: name, IsDir: true}
			continue
		}
		children[rest] = cloner.ObjectInfo{Path: path, Name: rest, Size: int64(len(obj.Data))}
	}
	out := make([]cloner.ObjectInfo, 0, len(children))
	for _, info := range children {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// PublicURL implements cloner.ContentStore.
func (s *ContentStore) PublicURL(path string) string {
	return cdn.Join(s.baseURL, clean(path))
}

// Len reports the number of stored objects.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func clean(path string) string {
	return strings.Trim(path, "/")
}
