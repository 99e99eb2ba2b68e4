package headless

import (
	"context"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
)

// Noop implements crawler.Renderer for runs with rendering disabled.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always fails with crawler.ErrRendererDisabled.
func (Noop) Render(context.Context, string) ([]byte, error) {
	return nil, crawler.ErrRendererDisabled
}
