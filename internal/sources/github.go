package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/dispatcher"
)

// GitHubConfig controls the code search driver.
type GitHubConfig struct {
	SearchURL  string   `mapstructure:"search_url"`
	Token      string   `mapstructure:"token"`
	Extensions []string `mapstructure:"extensions"`
	MinStars   int      `mapstructure:"min_stars"`
	MaxPages   int      `mapstructure:"max_pages"`
	PerPage    int      `mapstructure:"per_page"`
	// ModifiedWithin sets If-Modified-Since to now minus this window.
	ModifiedWithin time.Duration `mapstructure:"modified_within"`
	Workers        int           `mapstructure:"workers"`
}

// DefaultGitHubConfig mirrors the public code search defaults.
func DefaultGitHubConfig() GitHubConfig {
	return GitHubConfig{
		SearchURL:      "https://api.github.com/search/code",
		Extensions:     []string{"urdf", "sdf", "xacro"},
		MinStars:       5,
		MaxPages:       10,
		PerPage:        100,
		ModifiedWithin: 24 * time.Hour,
		Workers:        32,
	}
}

type searchResult struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	HTMLURL string `json:"html_url"`
	Path    string `json:"path"`
}

// GitHub downloads robot description files found through code search.
// It is fail-fast: a search or download failure aborts the run.
type GitHub struct {
	env    Env
	cfg    GitHubConfig
	logger *zap.Logger
}

// NewGitHub builds the driver; zero config fields take their defaults.
func NewGitHub(env Env, cfg GitHubConfig) *GitHub {
	env = env.withDefaults()
	def := DefaultGitHubConfig()
	if cfg.SearchURL == "" {
		cfg.SearchURL = def.SearchURL
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = def.PerPage
	}
	if cfg.ModifiedWithin <= 0 {
		cfg.ModifiedWithin = def.ModifiedWithin
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &GitHub{env: env, cfg: cfg, logger: env.Logger.Named(NameGitHub)}
}

// Name implements Source.
func (g *GitHub) Name() string { return NameGitHub }

// Run implements Source.
func (g *GitHub) Run(ctx context.Context, workers int) (dispatcher.Summary, error) {
	items, err := g.collect(ctx)
	if err != nil {
		return dispatcher.Summary{}, err
	}
	p, err := g.env.pipeline(NameGitHub, g.logger)
	if err != nil {
		return dispatcher.Summary{}, err
	}
	pool := dispatcher.New(dispatcher.Config{
		MaxConcurrency: workerCount(workers, g.cfg.Workers),
		FailFast:       true,
	}, g.logger)
	return pool.Run(ctx, items, func(ctx context.Context, item crawler.WorkItem) error {
		return p.Download(ctx, item, g.conditionalHeaders())
	})
}

func (g *GitHub) collect(ctx context.Context) ([]crawler.WorkItem, error) {
	var items []crawler.WorkItem
	for _, ext := range g.cfg.Extensions {
		for page := 1; page <= g.cfg.MaxPages; page++ {
			found, err := g.searchPage(ctx, ext, page)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				break
			}
			for _, it := range found {
				items = append(items, crawler.WorkItem{
					URL:         RawURL(it.HTMLURL),
					Destination: filepath.Join(g.env.DataDir, "github", path.Base(it.Path)),
				})
			}
			g.logger.Debug("search page", zap.String("extension", ext), zap.Int("page", page), zap.Int("items", len(found)))
		}
	}
	return items, nil
}

func (g *GitHub) searchPage(ctx context.Context, ext string, page int) ([]searchItem, error) {
	resp, err := g.env.Fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     g.cfg.SearchURL,
		Headers: g.searchHeaders(),
		Query: map[string]string{
			"q":        fmt.Sprintf("extension:%s stars:>%d", ext, g.cfg.MinStars),
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(g.cfg.PerPage),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s page %d: %w", ext, page, err)
	}
	if err := crawler.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("search %s page %d: %w", ext, page, err)
	}
	var result searchResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("decode search %s page %d: %w", ext, page, err)
	}
	return result.Items, nil
}

func (g *GitHub) searchHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.github.v3+json")
	if g.cfg.Token != "" {
		h.Set("Authorization", "token "+g.cfg.Token)
	}
	return h
}

func (g *GitHub) conditionalHeaders() http.Header {
	h := http.Header{}
	h.Set("If-Modified-Since", g.env.Clock.Now().Add(-g.cfg.ModifiedWithin).UTC().Format(http.TimeFormat))
	return h
}

// RawURL converts a repository file page URL into its raw content URL.
func RawURL(htmlURL string) string {
	u := strings.Replace(htmlURL, "github.com/", "raw.githubusercontent.com/", 1)
	return strings.Replace(u, "/blob/", "/", 1)
}
