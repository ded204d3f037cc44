package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// ErrRendererDisabled is returned by Noop.
var ErrRendererDisabled = errors.New("headless renderer not configured")

// Noop stands in for the renderer when headless rendering is disabled. The
// pipeline treats its error like any renderer failure and keeps the plain fetch.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrRendererDisabled.
func (Noop) Fetch(_ context.Context, request cloner.FetchRequest) (cloner.FetchedResource, error) {
	return cloner.FetchedResource{}, &cloner.FetchError{URL: request.URL, Kind: cloner.FetchClient, Err: ErrRendererDisabled}
}
