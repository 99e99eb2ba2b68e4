package sources

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/dispatcher"
)

// StandardsConfig lists fixed standard documents to mirror.
type StandardsConfig struct {
	URLs    []string `mapstructure:"urls"`
	Workers int      `mapstructure:"workers"`
}

// DefaultStandardURLs are the interoperability schemas and specifications.
var DefaultStandardURLs = []string{
	"https://raw.githubusercontent.com/openjaus/openjaus-toolset/master/schema/jaus.xsd",
	"https://raw.githubusercontent.com/openjaus/openjaus-toolset/master/schema/jaus-mobility.xsd",
	"https://example.com/stanag-4586-rev-c.pdf",
}

// Standards downloads a fixed list of documents.
type Standards struct {
	env    Env
	cfg    StandardsConfig
	logger *zap.Logger
}

// NewStandards builds the driver.
func NewStandards(env Env, cfg StandardsConfig) *Standards {
	env = env.withDefaults()
	if cfg.URLs == nil {
		cfg.URLs = DefaultStandardURLs
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Standards{env: env, cfg: cfg, logger: env.Logger.Named(NameStandards)}
}

// Name implements Source.
func (s *Standards) Name() string { return NameStandards }

// Run implements Source. Failed downloads are logged and skipped.
func (s *Standards) Run(ctx context.Context, workers int) (dispatcher.Summary, error) {
	items := make([]crawler.WorkItem, 0, len(s.cfg.URLs))
	for _, u := range s.cfg.URLs {
		name := crawler.LastSegment(u)
		if name == "" {
			s.logger.Warn("skipping url without file name", zap.String("url", u))
			continue
		}
		items = append(items, crawler.WorkItem{
			URL:         u,
			Destination: filepath.Join(s.env.DataDir, "standards", name),
		})
	}
	p, err := s.env.pipeline(NameStandards, s.logger)
	if err != nil {
		return dispatcher.Summary{}, err
	}
	pool := dispatcher.New(dispatcher.Config{MaxConcurrency: workerCount(workers, s.cfg.Workers)}, s.logger)
	return pool.Run(ctx, items, p.DownloadHandler(nil))
}
