// Package publish uploads cloned sites to a content store under
// <folder>/<name>/, rewrites references to their public CDN URLs, prunes
// objects left by earlier publishes and writes the manifest last.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/extract"
	"github.com/JakeFAU/site-cloner/internal/hash"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
	"github.com/JakeFAU/site-cloner/internal/pipeline"
)

const documentContentType = "text/html; charset=utf-8"

// Config controls where and how sites are published.
type Config struct {
	// Backend labels upload metrics.
	Backend         string
	Folder          string
	CreateContainer bool
	UploadWorkers   int
}

// Publisher writes cloned sites to a cloner.ContentStore.
type Publisher struct {
	store  cloner.ContentStore
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// New constructs a Publisher.
func New(store cloner.ContentStore, cfg Config, clock cloner.Clock, logger *zap.Logger) *Publisher {
	if cfg.Folder == "" {
		cfg.Folder = "clonedwebs"
	}
	cfg.Folder = strings.Trim(cfg.Folder, "/")
	if cfg.UploadWorkers <= 0 {
		cfg.UploadWorkers = 4
	}
	if cfg.Backend == "" {
		cfg.Backend = "unknown"
	}
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Publisher{store: store, cfg: cfg, now: now, logger: logging.OrNop(logger).Named("publish")}
}

// SitePath returns the store path of file inside the named site.
func (p *Publisher) SitePath(name, file string) string {
	return path.Join(p.cfg.Folder, name, file)
}

// Publish uploads site. Container and document failures are fatal; a failed
// resource upload is recorded in the manifest and counted as partial.
func (p *Publisher) Publish(ctx context.Context, site *cloner.ClonedSite) (cloner.PublishResult, error) {
	name := site.Manifest.Name
	if err := validateName(name); err != nil {
		return cloner.PublishResult{}, err
	}
	logger := p.logger.With(zap.String("name", name))

	if err := p.store.EnsureContainer(ctx, p.cfg.CreateContainer); err != nil {
		return cloner.PublishResult{}, fmt.Errorf("ensure container: %w", err)
	}

	publicURLs := make(map[string]string, len(site.Resources))
	for resourceName := range site.Resources {
		publicURLs[resourceName] = p.store.PublicURL(p.SitePath(name, resourceName))
	}

	manifest := site.Manifest
	manifest.Resources = append([]cloner.ManifestEntry(nil), site.Manifest.Resources...)
	result := cloner.PublishResult{Name: name}

	uploads, uploadErrs := p.uploadResources(ctx, name, site.Resources, publicURLs)
	documentURLs := make(map[string]string, len(publicURLs))
	for resourceName, u := range publicURLs {
		documentURLs[resourceName] = u
	}
	for resourceName := range uploadErrs {
		if origin := site.Resources[resourceName].URL; origin != "" {
			documentURLs[resourceName] = origin
		} else {
			delete(documentURLs, resourceName)
		}
	}
	for i := range manifest.Resources {
		entry := &manifest.Resources[i]
		if entry.Name == "" {
			continue
		}
		entry.PublicURL = publicURLs[entry.Name]
		if err, failed := uploadErrs[entry.Name]; failed {
			if entry.URL != "" {
				documentURLs[entry.Name] = entry.URL
			}
			entry.UploadError = err.Error()
			entry.PublicURL = ""
			result.Failed++
			continue
		}
		up := uploads[entry.Name]
		entry.Upload = up.status
		entry.SHA256 = up.sha256
		entry.Size = up.size
		if entry.Upload == cloner.PutUnchanged {
			result.Unchanged++
		} else {
			result.Uploaded++
		}
	}
	if err := ctx.Err(); err != nil {
		return cloner.PublishResult{}, fmt.Errorf("publish interrupted: %w", err)
	}

	document, err := p.cdnDocument(site.Document, documentURLs)
	if err != nil {
		return cloner.PublishResult{}, err
	}
	documentPath := p.SitePath(name, pipeline.DocumentName)
	if _, err := p.put(ctx, documentPath, documentContentType, document); err != nil {
		return cloner.PublishResult{}, fmt.Errorf("upload %s: %w", pipeline.DocumentName, err)
	}

	keep := map[string]struct{}{pipeline.DocumentName: {}, pipeline.ManifestName: {}}
	for resourceName := range site.Resources {
		keep[resourceName] = struct{}{}
	}
	result.Pruned = p.prune(ctx, name, keep)

	publishedAt := p.now()
	manifest.PublishedAt = &publishedAt
	manifest.PublicURL = p.store.PublicURL(documentPath)
	manifest.Counts.UploadFailed = result.Failed
	manifest.Counts.UploadUnchanged = result.Unchanged
	if result.Failed > 0 {
		manifest.Warnings = append(manifest.Warnings, fmt.Sprintf("%d resources failed to upload", result.Failed))
	}
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return cloner.PublishResult{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := p.SitePath(name, pipeline.ManifestName)
	if _, err := p.put(ctx, manifestPath, "application/json", body); err != nil {
		return cloner.PublishResult{}, fmt.Errorf("upload %s: %w", pipeline.ManifestName, err)
	}

	result.PublicURL = manifest.PublicURL
	result.ManifestURL = p.store.PublicURL(manifestPath)
	result.Manifest = manifest
	logger.Info("site published",
		zap.String("public_url", result.PublicURL),
		zap.Int("uploaded", result.Uploaded),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Int("pruned", result.Pruned),
	)
	return result, nil
}

type upload struct {
	status cloner.PutStatus
	sha256 string
	size   int64
}

// uploadResources writes every resource with bounded parallelism. Stylesheets
// are rewritten to reference their siblings by public URL first.
func (p *Publisher) uploadResources(
	ctx context.Context,
	name string,
	resources map[string]*cloner.Resource,
	publicURLs map[string]string,
) (map[string]upload, map[string]error) {
	names := make([]string, 0, len(resources))
	for resourceName := range resources {
		names = append(names, resourceName)
	}
	sort.Strings(names)

	var mu sync.Mutex
	uploads := make(map[string]upload, len(names))
	failures := make(map[string]error)

	var g errgroup.Group
	g.SetLimit(p.cfg.UploadWorkers)
	for _, resourceName := range names {
		res := resources[resourceName]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			data := res.Data
			if res.Kind == cloner.AssetStylesheet {
				data = []byte(extract.RewriteCSS(string(data), cdnVisitor(publicURLs)))
			}
			status, err := p.put(ctx, p.SitePath(name, resourceName), res.ContentType, data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[resourceName] = err
				p.logger.Warn("resource upload failed",
					zap.String("name", name),
					zap.String("resource", resourceName),
					zap.Error(err),
				)
				return nil
			}
			uploads[resourceName] = upload{status: status, sha256: hash.SHA256(data), size: int64(len(data))}
			return nil
		})
	}
	_ = g.Wait()
	return uploads, failures
}

func (p *Publisher) put(ctx context.Context, objectPath, contentType string, data []byte) (cloner.PutStatus, error) {
	status, err := p.store.Put(ctx, objectPath, contentType, data)
	if err != nil {
		metrics.ObserveUpload(p.cfg.Backend, "error")
		return "", err
	}
	metrics.ObserveUpload(p.cfg.Backend, string(status))
	return status, nil
}

// cdnDocument rewrites local names in the document through urls: public
// URLs for uploaded resources, origin URLs for those whose upload failed.
func (p *Publisher) cdnDocument(document []byte, urls map[string]string) ([]byte, error) {
	doc, err := extract.Parse(document)
	if err != nil {
		return nil, err
	}
	extract.RewriteHTML(doc, cdnVisitor(urls))
	return extract.Render(doc)
}

func cdnVisitor(publicURLs map[string]string) extract.Visitor {
	return func(_ cloner.AssetKind, raw string) (string, bool) {
		u, ok := publicURLs[raw]
		return u, ok
	}
}

// prune deletes files under the site folder that are not part of keep.
func (p *Publisher) prune(ctx context.Context, name string, keep map[string]struct{}) int {
	entries, err := p.store.List(ctx, path.Join(p.cfg.Folder, name))
	if err != nil {
		p.logger.Warn("list for prune failed", zap.String("name", name), zap.Error(err))
		return 0
	}
	pruned := 0
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		if _, ok := keep[entry.Name]; ok {
			continue
		}
		if err := p.store.Delete(ctx, entry.Path); err != nil && !errors.Is(err, cloner.ErrObjectNotFound) {
			p.logger.Warn("prune failed", zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		pruned++
	}
	return pruned
}

// List returns the published sites, sorted by name.
func (p *Publisher) List(ctx context.Context) ([]cloner.PublishedSite, error) {
	entries, err := p.store.List(ctx, p.cfg.Folder)
	if errors.Is(err, cloner.ErrObjectNotFound) {
		return []cloner.PublishedSite{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites := make([]cloner.PublishedSite, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir {
			continue
		}
		sites = append(sites, cloner.PublishedSite{
			Name:      entry.Name,
			PublicURL: p.store.PublicURL(p.SitePath(entry.Name, pipeline.DocumentName)),
		})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

// Remove deletes every object of a published site. Unknown names return
// cloner.ErrSiteNotFound.
func (p *Publisher) Remove(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	removed, err := p.removeTree(ctx, path.Join(p.cfg.Folder, name))
	if err != nil {
		return err
	}
	if removed == 0 {
		return cloner.ErrSiteNotFound
	}
	p.logger.Info("site removed", zap.String("name", name), zap.Int("objects", removed))
	return nil
}

func (p *Publisher) removeTree(ctx context.Context, dir string) (int, error) {
	entries, err := p.store.List(ctx, dir)
	if errors.Is(err, cloner.ErrObjectNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir {
			n, err := p.removeTree(ctx, entry.Path)
			removed += n
			if err != nil {
				return removed, err
			}
			continue
		}
		if err := p.store.Delete(ctx, entry.Path); err != nil && !errors.Is(err, cloner.ErrObjectNotFound) {
			return removed, fmt.Errorf("delete %s: %w", entry.Path, err)
		}
		removed++
	}
	return removed, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &cloner.ValidationError{Field: "name", Reason: "must be a single path segment"}
	}
	return nil
}
