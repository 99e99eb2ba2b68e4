// Package sources implements the acquisition source drivers. Each driver
// builds a batch of work items and hands it to a bounded worker pool.
package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/clock/system"
	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/dispatcher"
	"github.com/JakeFAU/nidus-scraper/internal/retry"
)

// Source names accepted on the command line.
const (
	NameGitHub    = "urdf"
	NameVendors   = "vendor"
	NameStandards = "standards"
	NamePages     = "pages"
)

// Env carries the capabilities shared by every driver.
type Env struct {
	DataDir  string
	Fetcher  crawler.Fetcher
	Renderer crawler.Renderer
	Store    crawler.ContentStore
	Recorder crawler.Recorder
	Retry    retry.Policy
	Clock    crawler.Clock
	Logger   *zap.Logger
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Clock == nil {
		e.Clock = system.New()
	}
	if e.Retry.Attempts <= 0 {
		e.Retry = retry.DefaultPolicy()
	}
	return e
}

func (e Env) pipeline(source string, logger *zap.Logger) (*crawler.Pipeline, error) {
	p, err := crawler.NewPipeline(crawler.PipelineOptions{
		Source:   source,
		Fetcher:  e.Fetcher,
		Renderer: e.Renderer,
		Store:    e.Store,
		Recorder: e.Recorder,
		Retry:    e.Retry,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s pipeline: %w", source, err)
	}
	return p, nil
}

// Source is one acquisition driver.
type Source interface {
	Name() string
	// Run acquires everything the source knows about, with at most workers
	// items in flight. Per-item failures are only returned by fail-fast
	// sources.
	Run(ctx context.Context, workers int) (dispatcher.Summary, error)
}

// Config groups the per-source settings.
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Vendors   VendorsConfig   `mapstructure:"vendors"`
	Standards StandardsConfig `mapstructure:"standards"`
	Pages     PagesConfig     `mapstructure:"pages"`
}

// Registry maps source names to constructed drivers.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds every driver from cfg.
func NewRegistry(env Env, cfg Config) *Registry {
	env = env.withDefaults()
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range []Source{
		NewGitHub(env, cfg.GitHub),
		NewVendors(env, cfg.Vendors),
		NewStandards(env, cfg.Standards),
		NewPages(env, cfg.Pages),
	} {
		r.sources[s.Name()] = s
	}
	return r
}

// Lookup returns the driver registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Names lists registered sources in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.sources))
	for n := range r.sources {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func workerCount(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}
