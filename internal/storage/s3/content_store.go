// Package s3store provides a ContentStore backed by Amazon S3 or an
// S3-compatible endpoint.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/JakeFAU/site-cloner/internal/cdn"
	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/hash"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config names the bucket and how it is reached.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PathStyle     bool
	PublicBaseURL string
}

// ContentStore writes published sites to an S3 bucket.
type ContentStore struct {
	client API
	cfg    Config
}

// NewClient builds an *s3.Client from the default credential chain.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// New creates an S3-backed content store.
func New(client API, cfg Config) (*ContentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ContentStore{client: client, cfg: cfg}, nil
}

// EnsureContainer checks the bucket and creates it when allowed.
func (s *ContentStore) EnsureContainer(ctx context.Context, create bool) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		return nil
	}
	mapped := mapError(err)
	if !errors.Is(mapped, cloner.ErrObjectNotFound) && !errors.Is(mapped, cloner.ErrContainerNotFound) {
		return fmt.Errorf("head bucket %s: %w", s.cfg.Bucket, mapped)
	}
	if !create {
		return fmt.Errorf("bucket %s: %w", s.cfg.Bucket, cloner.ErrContainerNotFound)
	}
	input := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}
	if s.cfg.Region != "" && s.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, mapError(err))
	}
	return nil
}

// Put uploads data unless the stored object's ETag already matches its MD5.
func (s *ContentStore) Put(ctx context.Context, path, contentType string, data []byte) (cloner.PutStatus, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	status := cloner.PutCreated
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
	})
	switch {
	case err == nil:
		etag := strings.Trim(aws.ToString(head.ETag), `"`)
		if etag == hash.MD5Hex(data) && aws.ToString(head.ContentType) == contentType {
			return cloner.PutUnchanged, nil
		}
		status = cloner.PutUpdated
	case !errors.Is(mapError(err), cloner.ErrObjectNotFound):
		return "", fmt.Errorf("head %s: %w", path, mapError(err))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, mapError(err))
	}
	return status, nil
}

// Get downloads an object.
func (s *ContentStore) Get(ctx context.Context, path string) (cloner.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return cloner.Object{}, fmt.Errorf("get %s: %w", path, mapError(err))
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return cloner.Object{}, fmt.Errorf("read %s: %w", path, err)
	}
	return cloner.Object{Path: path, ContentType: aws.ToString(out.ContentType), Data: data}, nil
}

// Delete removes an object.
func (s *ContentStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, mapError(err))
	}
	return nil
}

// List returns the direct children of prefix.
func (s *ContentStore) List(ctx context.Context, prefix string) ([]cloner.ObjectInfo, error) {
	dir := strings.Trim(prefix, "/")
	if dir != "" {
		dir += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.Bucket),
		Prefix:    aws.String(dir),
		Delimiter: aws.String("/"),
	})
	var out []cloner.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
		}
		for _, cp := range page.CommonPrefixes {
			p := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			out = append(out, cloner.ObjectInfo{Path: p, Name: strings.TrimPrefix(p, dir), IsDir: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			out = append(out, cloner.ObjectInfo{Path: key, Name: strings.TrimPrefix(key, dir), Size: aws.ToInt64(obj.Size)})
		}
	}
	return out, nil
}

// PublicURL returns the bucket URL (virtual-hosted or path style) or the
// configured public base.
func (s *ContentStore) PublicURL(path string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return cdn.Join(s.cfg.PublicBaseURL, path)
	case s.cfg.Endpoint != "" && s.cfg.PathStyle:
		return cdn.S3PathStyle(s.cfg.Endpoint, s.cfg.Bucket, path)
	default:
		return cdn.S3(s.cfg.Bucket, s.cfg.Region, path)
	}
}

// mapError translates S3 error codes into the store sentinels.
func mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return cloner.ErrObjectNotFound
	case errors.As(err, &noSuchBucket):
		return cloner.ErrContainerNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return cloner.ErrObjectNotFound
		case "NoSuchBucket":
			return cloner.ErrContainerNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", cloner.ErrPermissionDenied, apiErr.ErrorMessage())
		}
	}
	return err
}
