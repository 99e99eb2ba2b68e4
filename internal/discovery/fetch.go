package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
)

// PageFetcher returns the HTML of a page, or "" when it cannot be fetched.
type PageFetcher interface {
	FetchHTML(ctx context.Context, rawURL string) string
}

// HTTPPageFetcher adapts a crawler.Fetcher to PageFetcher.
type HTTPPageFetcher struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewHTTPPageFetcher wraps fetcher.
func NewHTTPPageFetcher(fetcher crawler.Fetcher, logger *zap.Logger) *HTTPPageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPPageFetcher{fetcher: fetcher, logger: logger}
}

// FetchHTML fetches rawURL once. Status >= 400 and transport errors yield "".
func (f *HTTPPageFetcher) FetchHTML(ctx context.Context, rawURL string) string {
	resp, err := f.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL})
	if err != nil {
		f.logger.Warn("page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	if resp.StatusCode >= 400 {
		f.logger.Warn("page fetch failed", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return ""
	}
	return string(resp.Body)
}
