// Package gcs provides a ContentStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/site-cloner/internal/cdn"
	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/hash"
)

// Config captures the parameters required to publish to GCS.
type Config struct {
	Bucket string
	// ProjectID is needed only to create a missing bucket.
	ProjectID     string
	PublicBaseURL string
	CacheControl  string
}

// ContentStore writes published sites to a GCS bucket.
type ContentStore struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed content store.
func New(client *storage.Client, cfg Config) (*ContentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=300"
	}
	return &ContentStore{client: client, cfg: cfg}, nil
}

func (s *ContentStore) bucket() *storage.BucketHandle {
	return s.client.Bucket(s.cfg.Bucket)
}

// EnsureContainer checks the bucket and creates it when allowed.
func (s *ContentStore) EnsureContainer(ctx context.Context, create bool) error {
	_, err := s.bucket().Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return mapError(err)
	}
	if !create || s.cfg.ProjectID == "" {
		return fmt.Errorf("bucket %s: %w", s.cfg.Bucket, cloner.ErrContainerNotFound)
	}
	if err := s.bucket().Create(ctx, s.cfg.ProjectID, nil); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, mapError(err))
	}
	return nil
}

// Put uploads data unless the stored object already has the same MD5.
func (s *ContentStore) Put(ctx context.Context, path, contentType string, data []byte) (cloner.PutStatus, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	obj := s.bucket().Object(path)
	status := cloner.PutCreated
	attrs, err := obj.Attrs(ctx)
	switch {
	case err == nil:
		if hex.EncodeToString(attrs.MD5) == hash.MD5Hex(data) && attrs.ContentType == contentType {
			return cloner.PutUnchanged, nil
		}
		status = cloner.PutUpdated
	case !errors.Is(err, storage.ErrObjectNotExist):
		return "", fmt.Errorf("stat %s: %w", path, mapError(err))
	}

	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.CacheControl = s.cfg.CacheControl
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", mapError(err), closeErr)
		}
		return "", fmt.Errorf("write object: %w", mapError(err))
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", mapError(err))
	}
	return status, nil
}

// Get downloads an object.
func (s *ContentStore) Get(ctx context.Context, path string) (cloner.Object, error) {
	reader, err := s.bucket().Object(path).NewReader(ctx)
	if err != nil {
		return cloner.Object{}, fmt.Errorf("open %s: %w", path, mapError(err))
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return cloner.Object{}, fmt.Errorf("read %s: %w", path, err)
	}
	return cloner.Object{Path: path, ContentType: reader.Attrs.ContentType, Data: data}, nil
}

// Delete removes an object.
func (s *ContentStore) Delete(ctx context.Context, path string) error {
	if err := s.bucket().Object(path).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, mapError(err))
	}
	return nil
}

// List returns the direct children of prefix using a delimiter query.
func (s *ContentStore) List(ctx context.Context, prefix string) ([]cloner.ObjectInfo, error) {
	dir := strings.Trim(prefix, "/")
	if dir != "" {
		dir += "/"
	}
	it := s.bucket().Objects(ctx, &storage.Query{Prefix: dir, Delimiter: "/"})
	var out []cloner.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
		}
		if attrs.Prefix != "" {
			p := strings.TrimSuffix(attrs.Prefix, "/")
			out = append(out, cloner.ObjectInfo{Path: p, Name: strings.TrimPrefix(p, dir), IsDir: true})
			continue
		}
		out = append(out, cloner.ObjectInfo{Path: attrs.Name, Name: strings.TrimPrefix(attrs.Name, dir), Size: attrs.Size})
	}
	return out, nil
}

// PublicURL returns the storage.googleapis.com URL or the configured base.
func (s *ContentStore) PublicURL(path string) string {
	if s.cfg.PublicBaseURL != "" {
		return cdn.Join(s.cfg.PublicBaseURL, path)
	}
	return cdn.GCS(s.cfg.Bucket, path)
}

// mapError translates GCS errors into the store sentinels.
func mapError(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return cloner.ErrObjectNotFound
	case errors.Is(err, storage.ErrBucketNotExist):
		return cloner.ErrContainerNotFound
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", cloner.ErrPermissionDenied, apiErr.Message)
		case http.StatusNotFound:
			return cloner.ErrObjectNotFound
		}
	}
	return err
}
