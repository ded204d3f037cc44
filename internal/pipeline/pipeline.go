// Package pipeline turns a source URL into a self-contained site: it fetches
// the root document, downloads every referenced asset (following stylesheets
// into nested url() and @import references), localizes references, applies
// the content rules and builds the manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/extract"
	"github.com/JakeFAU/site-cloner/internal/hash"
	"github.com/JakeFAU/site-cloner/internal/imageopt"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
	"github.com/JakeFAU/site-cloner/internal/rewrite"
)

// Config controls fetch limits and image handling.
type Config struct {
	MaxAssetBytes     int64
	AssetWorkers      int
	FetchTimeout      time.Duration
	MaxRetries        int
	MaxImageDimension int
	ImageQuality      int
	// RenderMode applies when a request leaves render_mode empty.
	RenderMode cloner.RenderMode
}

// ProgressFunc receives asset progress. It may be called from several
// goroutines, one call at a time.
type ProgressFunc = func(cloner.JobProgress)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRenderer enables headless rendering of root documents.
func WithRenderer(renderer cloner.Fetcher, detector cloner.RenderDetector) Option {
	return func(p *Pipeline) {
		p.renderer = renderer
		p.detector = detector
	}
}

// WithHostGuard checks the root host before any fetch or render.
func WithHostGuard(guard *cloner.HostGuard) Option {
	return func(p *Pipeline) {
		p.guard = guard
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.OrNop(logger).Named("pipeline")
	}
}

// WithClock sets the clock used for manifest timestamps.
func WithClock(clock cloner.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// Pipeline runs clone jobs. It is safe for concurrent use.
type Pipeline struct {
	fetcher   cloner.Fetcher
	renderer  cloner.Fetcher
	detector  cloner.RenderDetector
	guard     *cloner.HostGuard
	rewriter  *rewrite.Rewriter
	optimizer *imageopt.Optimizer
	clock     cloner.Clock
	cfg       Config
	logger    *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New builds a Pipeline around fetcher.
func New(fetcher cloner.Fetcher, cfg Config, opts ...Option) *Pipeline {
	if cfg.AssetWorkers <= 0 {
		cfg.AssetWorkers = 8
	}
	if cfg.MaxAssetBytes <= 0 {
		cfg.MaxAssetBytes = 50 << 20
	}
	if cfg.RenderMode == "" {
		cfg.RenderMode = cloner.RenderAuto
	}
	p := &Pipeline{
		fetcher:   fetcher,
		optimizer: imageopt.New(cfg.MaxImageDimension, cfg.ImageQuality),
		clock:     systemClock{},
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rewriter = rewrite.New(p.logger)
	return p
}

// asset tracks one discovered reference through fetch, naming and rewrite.
type asset struct {
	ref         cloner.AssetRef
	name        string
	data        []byte
	contentType string
	attempts    int
	optimized   bool
	err         error
}

func (a *asset) ok() bool {
	return a.err == nil && a.data != nil
}

// job holds the per-clone state shared by the asset workers.
type job struct {
	id       string
	req      cloner.CloneRequest
	site     string
	progress ProgressFunc

	mu sync.Mutex
	// byURL is keyed by cloner.DedupKey; assets keep the URL as written.
	byURL  map[string]*asset
	order  []*asset
	done   int
	failed int
}

// Clone runs the whole pipeline for req. A failure to obtain the root
// document is fatal and wraps cloner.ErrRootFetch; failed assets are recorded
// in the manifest and do not fail the clone.
func (p *Pipeline) Clone(
	ctx context.Context,
	jobID string,
	req cloner.CloneRequest,
	progress ProgressFunc,
) (*cloner.ClonedSite, error) {
	logger := p.logger.With(zap.String("job_id", jobID), zap.String("url", req.URL))

	root, err := p.fetchRoot(ctx, jobID, req)
	if err != nil {
		logger.Error("root fetch failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", cloner.ErrRootFetch, err)
	}
	if !isHTML(root.ContentType) {
		return nil, fmt.Errorf("%w: unexpected content type %q", cloner.ErrRootFetch, root.ContentType)
	}

	pageURL, err := url.Parse(firstNonEmpty(root.FinalURL, root.URL, req.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse final url: %w", cloner.ErrRootFetch, err)
	}
	doc, err := extract.Parse(root.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cloner.ErrRootFetch, err)
	}
	if n := rewrite.PromoteLazyImages(doc); n > 0 {
		logger.Debug("lazy images promoted", zap.Int("count", n))
	}

	j := &job{
		id:       jobID,
		req:      req,
		site:     metrics.SanitizeSite(req.URL),
		progress: progress,
		byURL:    make(map[string]*asset),
	}
	wave := j.register(extract.HTML(doc, pageURL))
	for len(wave) > 0 {
		if err := p.fetchWave(ctx, j, wave); err != nil {
			return nil, err
		}
		var nested []cloner.AssetRef
		for _, a := range wave {
			if a.ok() && a.ref.Kind == cloner.AssetStylesheet {
				cssURL, _ := url.Parse(a.ref.URL)
				nested = append(nested, extract.CSS(string(a.data), cssURL)...)
			}
		}
		wave = j.register(nested)
	}

	p.assignNames(j)
	cssCounters := p.localizeStylesheets(j)

	base := extract.BaseURL(doc, pageURL)
	extract.RewriteHTML(doc, j.localizer(base))
	extract.StripBase(doc)

	rewritten := p.rewriter.Rewrite(doc, req.Rules)
	rewritten.Merge(cssCounters)

	document, err := extract.Render(doc)
	if err != nil {
		return nil, err
	}

	site := &cloner.ClonedSite{
		Document:  document,
		Resources: make(map[string]*cloner.Resource),
	}
	site.Manifest = p.buildManifest(j, root, document, rewritten)
	for _, a := range j.order {
		if !a.ok() {
			continue
		}
		site.Resources[a.name] = &cloner.Resource{
			Name:        a.name,
			URL:         a.ref.URL,
			Kind:        a.ref.Kind,
			ContentType: a.contentType,
			Data:        a.data,
		}
	}

	logger.Info("clone assembled",
		zap.Int("assets", site.Manifest.Counts.TotalAssets),
		zap.Int("failed", site.Manifest.Counts.Failed),
		zap.Bool("rendered", root.UsedRenderer),
	)
	return site, nil
}

// register adds refs not seen before and returns the new assets in order.
func (j *job) register(refs []cloner.AssetRef) []*asset {
	j.mu.Lock()
	defer j.mu.Unlock()
	var added []*asset
	for _, ref := range refs {
		key := cloner.DedupKey(ref.URL)
		if _, ok := j.byURL[key]; ok {
			continue
		}
		a := &asset{ref: ref}
		j.byURL[key] = a
		j.order = append(j.order, a)
		added = append(added, a)
	}
	return added
}

func (j *job) finish(a *asset) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done++
	if a.err != nil {
		j.failed++
	}
	if j.progress != nil {
		j.progress(cloner.NewJobProgress(len(j.order), j.done, j.failed))
	}
}

// fetchWave downloads a set of assets with at most AssetWorkers in flight.
// Individual failures are recorded on the asset; only cancellation aborts.
func (p *Pipeline) fetchWave(ctx context.Context, j *job, wave []*asset) error {
	var g errgroup.Group
	g.SetLimit(p.cfg.AssetWorkers)
	for _, a := range wave {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.fetchAsset(ctx, j, a)
			j.finish(a)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("asset fetch interrupted: %w", err)
	}
	return nil
}

func (p *Pipeline) fetchAsset(ctx context.Context, j *job, a *asset) {
	res, err := p.fetcher.Fetch(ctx, cloner.FetchRequest{
		JobID:      j.id,
		URL:        a.ref.URL,
		Referer:    a.ref.Parent,
		Timeout:    p.cfg.FetchTimeout,
		MaxRetries: p.cfg.MaxRetries,
		MaxBytes:   p.cfg.MaxAssetBytes,
	})
	a.attempts = res.Attempts
	var fe *cloner.FetchError
	if errors.As(err, &fe) && fe.Attempts > a.attempts {
		a.attempts = fe.Attempts
	}
	if err != nil {
		a.err = err
		metrics.ObserveAssetFetch(j.site, string(a.ref.Kind), "error", 0)
		p.logger.Warn("asset fetch failed",
			zap.String("job_id", j.id),
			zap.String("url", a.ref.URL),
			zap.String("kind", string(a.ref.Kind)),
			zap.Error(err),
		)
		return
	}
	a.data = res.Body
	if a.data == nil {
		a.data = []byte{}
	}
	a.contentType = res.ContentType
	if a.ref.Kind == cloner.AssetOther {
		a.ref.Kind = kindFromContentType(res.ContentType, a.ref.Kind)
	}
	metrics.ObserveAssetFetch(j.site, string(a.ref.Kind), "ok", int64(len(a.data)))

	if j.req.OptimizeImages && a.ref.Kind == cloner.AssetImage {
		p.optimize(j, a)
	}
}

func (p *Pipeline) optimize(j *job, a *asset) {
	out, ok, err := p.optimizer.Optimize(a.data)
	if err != nil {
		p.logger.Debug("image left as is", zap.String("job_id", j.id), zap.String("url", a.ref.URL), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	a.data = out.Data
	a.contentType = out.ContentType
	a.optimized = true
	metrics.ObserveImageOptimized()
}

// assignNames names every fetched asset in discovery order.
func (p *Pipeline) assignNames(j *job) {
	names := newNamer()
	for _, a := range j.order {
		if a.ok() {
			a.name = names.assign(a.ref.URL, a.ref.Kind, a.contentType, a.optimized)
		}
	}
}

// localizeStylesheets points each stylesheet's references at sibling names
// and applies the text-level rewrite rules. Stylesheets are published next
// to the document, so a bare name resolves.
func (p *Pipeline) localizeStylesheets(j *job) cloner.RewriteCounters {
	var counters cloner.RewriteCounters
	for _, a := range j.order {
		if !a.ok() || a.ref.Kind != cloner.AssetStylesheet {
			continue
		}
		cssURL, err := url.Parse(a.ref.URL)
		if err != nil {
			continue
		}
		css := extract.RewriteCSS(string(a.data), j.localizer(cssURL))
		css, c := p.rewriter.RewriteStylesheet(css, j.req.Rules)
		counters.ContactsReplaced += c.ContactsReplaced
		counters.TrackingReplaced += c.TrackingReplaced
		counters.CleanupRemovals += c.CleanupRemovals
		a.data = []byte(css)
	}
	return counters
}

// localizer maps references to local names. References to failed assets are
// made absolute so they still load from the origin once published.
func (j *job) localizer(base *url.URL) extract.Visitor {
	return func(_ cloner.AssetKind, raw string) (string, bool) {
		abs, ok := cloner.ResolveReference(base, raw)
		if !ok {
			return "", false
		}
		a, found := j.byURL[cloner.DedupKey(abs)]
		switch {
		case found && a.ok():
			return a.name, true
		case found:
			return abs, true
		default:
			return "", false
		}
	}
}

func (p *Pipeline) buildManifest(j *job, root cloner.FetchedResource, document []byte, rw rewrite.Result) cloner.Manifest {
	m := cloner.Manifest{
		Name:         j.req.Name,
		SourceURL:    j.req.URL,
		FinalURL:     firstNonEmpty(root.FinalURL, root.URL),
		Rendered:     root.UsedRenderer,
		DocumentName: DocumentName,
		DocumentSize: int64(len(document)),
		Rewrites:     rw.Counters,
		Warnings:     rw.Warnings,
		CreatedAt:    p.clock.Now(),
	}
	for _, a := range j.order {
		entry := cloner.ManifestEntry{
			Name:      a.name,
			URL:       a.ref.URL,
			Kind:      a.ref.Kind,
			Attempts:  a.attempts,
			Optimized: a.optimized,
		}
		if a.ok() {
			entry.ContentType = a.contentType
			entry.Size = int64(len(a.data))
			entry.SHA256 = hash.SHA256(a.data)
			m.Counts.Succeeded++
			if a.optimized {
				m.Counts.Optimized++
			}
		} else {
			entry.Error = errorText(a.err)
			m.Counts.Failed++
		}
		m.Resources = append(m.Resources, entry)
	}
	m.Counts.TotalAssets = len(j.order)
	m.Counts.Neutralized = rw.Counters.Neutralized
	m.Counts.Preserved = rw.Counters.Preserved
	if m.Counts.Failed > 0 {
		m.Warnings = append(m.Warnings, fmt.Sprintf("%d of %d assets failed and still point at the source site", m.Counts.Failed, m.Counts.TotalAssets))
	}
	return m
}

func errorText(err error) string {
	if err == nil {
		return "not fetched"
	}
	return err.Error()
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func kindFromContentType(contentType string, fallback cloner.AssetKind) cloner.AssetKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fallback
	}
	switch {
	case mediaType == "text/css":
		return cloner.AssetStylesheet
	case strings.Contains(mediaType, "javascript"):
		return cloner.AssetScript
	case strings.HasPrefix(mediaType, "image/"):
		return cloner.AssetImage
	case strings.HasPrefix(mediaType, "font/"), strings.Contains(mediaType, "font"):
		return cloner.AssetFont
	case strings.HasPrefix(mediaType, "video/"), strings.HasPrefix(mediaType, "audio/"):
		return cloner.AssetMedia
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
