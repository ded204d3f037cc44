package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/metrics"
)

// Render promotion outcomes reported to metrics.
const (
	renderSkipped  = "skipped"
	renderPromoted = "promoted"
	renderFallback = "fallback"
)

// fetchRoot obtains the root document. In auto mode a plain fetch is
// promoted to the renderer when the detector flags it; in always mode the
// renderer goes first. A failed render falls back to the plain document.
// A root host that resolves to a private address is refused in every mode.
func (p *Pipeline) fetchRoot(ctx context.Context, jobID string, req cloner.CloneRequest) (cloner.FetchedResource, error) {
	if err := p.guard.CheckURL(ctx, req.URL); err != nil {
		return cloner.FetchedResource{}, fmt.Errorf("fetch root: %w", err)
	}
	request := cloner.FetchRequest{
		JobID:      jobID,
		URL:        req.URL,
		Timeout:    p.cfg.FetchTimeout,
		MaxRetries: p.cfg.MaxRetries,
		MaxBytes:   p.cfg.MaxAssetBytes,
	}

	mode := req.RenderMode
	if mode == "" {
		mode = p.cfg.RenderMode
	}
	if p.renderer == nil {
		mode = cloner.RenderNever
	}

	switch mode {
	case cloner.RenderAlways:
		rendered, err := p.render(ctx, request)
		if err == nil {
			metrics.ObserveRenderPromotion(renderPromoted)
			return rendered, nil
		}
		metrics.ObserveRenderPromotion(renderFallback)
		return p.fetchPlain(ctx, request)
	case cloner.RenderAuto:
		plain, err := p.fetchPlain(ctx, request)
		if err != nil {
			return cloner.FetchedResource{}, err
		}
		return p.maybePromote(ctx, request, plain), nil
	default:
		return p.fetchPlain(ctx, request)
	}
}

func (p *Pipeline) fetchPlain(ctx context.Context, request cloner.FetchRequest) (cloner.FetchedResource, error) {
	res, err := p.fetcher.Fetch(ctx, request)
	if err != nil {
		return cloner.FetchedResource{}, fmt.Errorf("fetch root: %w", err)
	}
	return res, nil
}

func (p *Pipeline) maybePromote(ctx context.Context, request cloner.FetchRequest, plain cloner.FetchedResource) cloner.FetchedResource {
	if p.detector == nil || !p.detector.ShouldPromote(plain) {
		metrics.ObserveRenderPromotion(renderSkipped)
		return plain
	}
	rendered, err := p.render(ctx, request)
	if err != nil {
		metrics.ObserveRenderPromotion(renderFallback)
		return plain
	}
	metrics.ObserveRenderPromotion(renderPromoted)
	p.logger.Info("headless promotion applied", zap.String("job_id", request.JobID), zap.String("url", request.URL))
	return rendered
}

func (p *Pipeline) render(ctx context.Context, request cloner.FetchRequest) (cloner.FetchedResource, error) {
	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	res, err := p.renderer.Fetch(renderCtx, request)
	if err != nil {
		p.logger.Warn("headless render failed",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return cloner.FetchedResource{}, err
	}
	res.UsedRenderer = true
	return res, nil
}
