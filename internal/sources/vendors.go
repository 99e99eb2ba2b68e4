package sources

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/discovery"
	"github.com/JakeFAU/nidus-scraper/internal/dispatcher"
)

// VendorsConfig lists the vendor pages scanned for PDF links.
type VendorsConfig struct {
	Pages   []string `mapstructure:"pages"`
	Workers int      `mapstructure:"workers"`
}

// DefaultVendorPages are public pages that link vendor manuals.
var DefaultVendorPages = []string{
	"https://www.maxongroup.com/en-us/news-and-events/media-center",
	"https://www.tmotor.com/html/download/",
	"https://www.robotis.us/dynamixel-ax-12a/",
	"https://www.robotis.us/dynamixel-xm540-w270-r/",
	"https://www.ghostrobotics.io/vision-60",
	"https://www.maritimerobotics.com/",
}

// Vendors downloads PDF documents linked from vendor pages.
type Vendors struct {
	env    Env
	cfg    VendorsConfig
	pages  discovery.PageFetcher
	logger *zap.Logger
}

// NewVendors builds the driver.
func NewVendors(env Env, cfg VendorsConfig) *Vendors {
	env = env.withDefaults()
	if cfg.Pages == nil {
		cfg.Pages = DefaultVendorPages
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 32
	}
	logger := env.Logger.Named(NameVendors)
	return &Vendors{
		env:    env,
		cfg:    cfg,
		pages:  discovery.NewHTTPPageFetcher(env.Fetcher, logger),
		logger: logger,
	}
}

// Name implements Source.
func (v *Vendors) Name() string { return NameVendors }

// Run implements Source. Failed pages and downloads are logged and skipped.
func (v *Vendors) Run(ctx context.Context, workers int) (dispatcher.Summary, error) {
	var items []crawler.WorkItem
	for _, page := range v.cfg.Pages {
		html := v.pages.FetchHTML(ctx, page)
		if html == "" {
			continue
		}
		for _, pdf := range ExtractPDFLinks(html, page) {
			name := crawler.LastSegment(pdf)
			if name == "" {
				continue
			}
			items = append(items, crawler.WorkItem{
				URL:         pdf,
				Destination: filepath.Join(v.env.DataDir, "vendors", name),
			})
		}
	}
	p, err := v.env.pipeline(NameVendors, v.logger)
	if err != nil {
		return dispatcher.Summary{}, err
	}
	pool := dispatcher.New(dispatcher.Config{MaxConcurrency: workerCount(workers, v.cfg.Workers)}, v.logger)
	return pool.Run(ctx, items, p.DownloadHandler(nil))
}

// ExtractPDFLinks returns the absolute URLs of links whose href ends in
// ".pdf" (any case), in document order.
func ExtractPDFLinks(html, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			return
		}
		if abs, ok := discovery.ResolveLink(base, href); ok {
			links = append(links, abs)
		}
	})
	return links
}
