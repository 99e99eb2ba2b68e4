package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/discovery"
	"github.com/JakeFAU/nidus-scraper/internal/dispatcher"
)

// PagesConfig controls product page discovery and rendering.
type PagesConfig struct {
	DomainsFile string   `mapstructure:"domains_file"`
	MaxDepth    int      `mapstructure:"max_depth"`
	MaxPages    int      `mapstructure:"max_pages"`
	Keywords    []string `mapstructure:"keywords"`
	Exclude     []string `mapstructure:"exclude"`
	Workers     int      `mapstructure:"workers"`
}

// Pages discovers product pages per vendor domain and renders each to PDF.
type Pages struct {
	env    Env
	cfg    PagesConfig
	engine *discovery.Engine
	logger *zap.Logger
}

// NewPages builds the driver.
func NewPages(env Env, cfg PagesConfig) *Pages {
	env = env.withDefaults()
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = discovery.DefaultMaxDepth
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = discovery.DefaultMaxPages
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	filter := discovery.DefaultFilter()
	if len(cfg.Keywords) > 0 {
		filter.Keywords = cfg.Keywords
	}
	if len(cfg.Exclude) > 0 {
		filter.Exclude = cfg.Exclude
	}
	logger := env.Logger.Named(NamePages)
	return &Pages{
		env:    env,
		cfg:    cfg,
		engine: discovery.New(discovery.NewHTTPPageFetcher(env.Fetcher, logger), filter, logger),
		logger: logger,
	}
}

// Name implements Source.
func (p *Pages) Name() string { return NamePages }

// Run implements Source. Discovery is sequential per domain; rendering runs
// on the pool and failures are logged and skipped.
func (p *Pages) Run(ctx context.Context, workers int) (dispatcher.Summary, error) {
	domains := LoadDomains(p.cfg.DomainsFile, p.logger)
	names := make([]string, 0, len(domains))
	for d := range domains {
		names = append(names, d)
	}
	sort.Strings(names)

	var items []crawler.WorkItem
	for _, domain := range names {
		found := p.engine.Discover(ctx, domains[domain], domain, p.cfg.MaxDepth, p.cfg.MaxPages)
		urls := make([]string, 0, len(found))
		for u := range found {
			urls = append(urls, u)
		}
		sort.Strings(urls)
		for _, u := range urls {
			items = append(items, crawler.WorkItem{
				URL:         u,
				Destination: PagePath(p.env.DataDir, domain, u),
			})
		}
	}
	pl, err := p.env.pipeline(NamePages, p.logger)
	if err != nil {
		return dispatcher.Summary{}, err
	}
	pool := dispatcher.New(dispatcher.Config{MaxConcurrency: workerCount(workers, p.cfg.Workers)}, p.logger)
	return pool.Run(ctx, items, pl.RenderHandler())
}

// PagePath is the PDF destination for a rendered product page.
func PagePath(dataDir, domain, rawURL string) string {
	return filepath.Join(dataDir, "html_product_pages", domain, crawler.PageFileName(rawURL))
}

// LoadDomains reads a JSON object mapping domain to seed URLs. A missing or
// malformed file is logged and yields no domains.
func LoadDomains(path string, logger *zap.Logger) map[string][]string {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		logger.Warn("vendor domains file not configured")
		return map[string][]string{}
	}
	// #nosec G304 -- the domains file path comes from configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("vendor domains file not readable", zap.String("path", path), zap.Error(err))
		return map[string][]string{}
	}
	var domains map[string][]string
	if err := json.Unmarshal(data, &domains); err != nil {
		logger.Warn("failed to parse vendor domains file", zap.String("path", path), zap.Error(err))
		return map[string][]string{}
	}
	out := make(map[string][]string, len(domains))
	for d, seeds := range domains {
		if d == "" {
			continue
		}
		var valid []string
		for _, s := range seeds {
			if u, err := url.Parse(s); err == nil && u.Host != "" {
				valid = append(valid, s)
			}
		}
		out[d] = valid
	}
	return out
}
