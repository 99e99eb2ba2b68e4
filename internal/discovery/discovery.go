// Package discovery finds product pages on a vendor site with a bounded,
// keyword-guided depth-first crawl.
package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/metrics"
)

const (
	// DefaultMaxDepth bounds link hops from a seed.
	DefaultMaxDepth = 2
	// DefaultMaxPages bounds the collected set per Discover call.
	DefaultMaxPages = 30
)

// Engine runs discovery crawls. An Engine holds no per-crawl state and may
// be reused, but each Discover call runs sequentially.
type Engine struct {
	fetcher PageFetcher
	filter  Filter
	logger  *zap.Logger
}

// New builds an Engine.
func New(fetcher PageFetcher, filter Filter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{fetcher: fetcher, filter: filter, logger: logger}
}

type crawlState struct {
	domain    string
	maxDepth  int
	maxPages  int
	visited   map[string]struct{}
	collected map[string]struct{}
}

// Discover crawls from each seed in order and returns the candidate pages
// found within domain. Non-positive limits fall back to the defaults.
func (e *Engine) Discover(ctx context.Context, seeds []string, domain string, maxDepth, maxPages int) map[string]struct{} {
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	st := &crawlState{
		domain:    domain,
		maxDepth:  maxDepth,
		maxPages:  maxPages,
		visited:   make(map[string]struct{}),
		collected: make(map[string]struct{}),
	}
	for _, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		e.crawl(ctx, st, seed, 0)
	}
	e.logger.Info("discovery finished",
		zap.String("domain", domain),
		zap.Int("visited", len(st.visited)),
		zap.Int("pages", len(st.collected)))
	metrics.ObserveDiscovered(domain, len(st.collected))
	return st.collected
}

func (e *Engine) crawl(ctx context.Context, st *crawlState, rawURL string, depth int) {
	if ctx.Err() != nil {
		return
	}
	if _, seen := st.visited[rawURL]; seen || depth > st.maxDepth || len(st.collected) >= st.maxPages {
		return
	}
	st.visited[rawURL] = struct{}{}

	html := e.fetcher.FetchHTML(ctx, rawURL)
	if html == "" {
		return
	}
	if e.filter.Candidate(rawURL) {
		st.collected[rawURL] = struct{}{}
		e.logger.Debug("candidate page", zap.String("url", rawURL), zap.Int("depth", depth))
	}
	for _, link := range ExtractLinks(html, rawURL) {
		if !WithinDomain(link, st.domain) {
			continue
		}
		if _, seen := st.visited[link]; seen {
			continue
		}
		if e.filter.Candidate(link) {
			e.crawl(ctx, st, link, depth+1)
		}
	}
}
