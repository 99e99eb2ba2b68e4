package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/clock/system"
	"github.com/JakeFAU/nidus-scraper/internal/config"
	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	collyfetcher "github.com/JakeFAU/nidus-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/nidus-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/nidus-scraper/internal/id/uuid"
	"github.com/JakeFAU/nidus-scraper/internal/logging"
	"github.com/JakeFAU/nidus-scraper/internal/manifest"
	"github.com/JakeFAU/nidus-scraper/internal/metrics"
	"github.com/JakeFAU/nidus-scraper/internal/sources"
	"github.com/JakeFAU/nidus-scraper/internal/storage"
	"github.com/JakeFAU/nidus-scraper/internal/storage/gcs"
	"github.com/JakeFAU/nidus-scraper/internal/storage/local"
	"github.com/JakeFAU/nidus-scraper/internal/storage/postgres"
)

// sourceOrder is the order sources run in, whatever order they were requested.
var sourceOrder = []string{
	sources.NameGitHub,
	sources.NameVendors,
	sources.NamePages,
	sources.NameStandards,
}

type sourceLookup interface {
	Lookup(name string) (sources.Source, bool)
}

func newCrawlCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the selected acquisition sources",
		Long: `Runs each selected source in turn (urdf, vendor, pages, standards).
Every saved file is appended to the manifest; failures of individual items
are logged and skipped, except for the urdf source which stops on the first
failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runCrawl(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("sources", nil, "comma separated sources to run: urdf, vendor, standards, pages")
	flags.Int("workers", 0, "worker count applied to every source; 0 keeps the per-source defaults (urdf 32, vendor 32, pages 4, standards 4)")
	flags.String("data-dir", "", "directory downloaded files are written under")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("headless", true, "render documentation pages to PDF with headless Chrome")
	flags.Bool("metrics", false, "serve Prometheus metrics while crawling")
	flags.String("metrics-addr", "", "listen address for the metrics endpoint")
	return cmd
}

func runCrawl(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	runID := uuid.NewUUIDGenerator().MustNewID()
	logger = logger.With(zap.String("run_id", runID))

	svc, err := buildServices(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	if cfg.Metrics.Enabled {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, logger)
		defer stopMetrics()
	}

	logger.Info("crawl started",
		zap.Strings("sources", cfg.Crawl.Sources),
		zap.String("data_dir", cfg.DataDir),
		zap.String("manifest", svc.recorder.Path()),
	)
	if err := runSources(ctx, svc.registry, cfg.Crawl.Sources, cfg.Crawl.Workers, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl interrupted")
			return nil
		}
		return err
	}
	logger.Info("crawl finished")
	return nil
}

// runSources runs each requested source in sourceOrder. Unknown names are
// ignored; a source error aborts the remaining sources.
func runSources(ctx context.Context, reg sourceLookup, requested []string, workers int, logger *zap.Logger) error {
	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		if _, ok := reg.Lookup(name); !ok {
			logger.Debug("ignoring unknown source", zap.String("source", name))
			continue
		}
		wanted[name] = true
	}

	for _, name := range sourceOrder {
		if !wanted[name] {
			continue
		}
		src, _ := reg.Lookup(name)
		start := time.Now()
		logger.Info("source started", zap.String("source", name))
		summary, err := src.Run(ctx, workers)
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		logger.Info("source finished",
			zap.String("source", name),
			zap.Int("submitted", summary.Submitted),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

type services struct {
	registry *sources.Registry
	recorder *manifest.Recorder
	closers  []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServices(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	primary, err := local.New(local.Config{BaseDir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	var mirrors []storage.Store
	if cfg.Storage.GCSBucket != "" {
		bucket, err := gcs.Dial(ctx, gcs.Config{
			Bucket:  cfg.Storage.GCSBucket,
			Prefix:  cfg.Storage.Prefix,
			BaseDir: primary.BaseDir(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if cerr := bucket.Close(); cerr != nil {
				logger.Warn("failed to close GCS client", zap.Error(cerr))
			}
		})
		mirrors = append(mirrors, bucket)
	}
	store, err := storage.NewTee(primary, logger, mirrors...)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	var sinks []manifest.Sink
	if cfg.DB.DSN != "" {
		db, err := postgres.NewManifestStore(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("init manifest database: %w", err)
		}
		svc.closers = append(svc.closers, db.Close)
		sinks = append(sinks, db)
	}
	clock := system.New()
	recorder, err := manifest.Open(cfg.ManifestPath, manifest.Options{
		Clock:  clock,
		RunID:  runID,
		Sinks:  sinks,
		Logger: logger.Named("manifest"),
	})
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	svc.recorder = recorder
	svc.closers = append(svc.closers, func() {
		if cerr := recorder.Close(); cerr != nil {
			logger.Warn("failed to close manifest", zap.Error(cerr))
		}
	})

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := renderer.(interface{ Close() }); ok {
		svc.closers = append(svc.closers, closer.Close)
	}

	svc.registry = sources.NewRegistry(sources.Env{
		DataDir:  primary.BaseDir(),
		Fetcher:  fetcher,
		Renderer: renderer,
		Store:    store,
		Recorder: recorder,
		Retry:    cfg.RetryPolicy(),
		Clock:    clock,
		Logger:   logger,
	}, cfg.Sources())
	return svc, nil
}

func buildRenderer(cfg config.Config, logger *zap.Logger) (crawler.Renderer, error) {
	if !cfg.Headless.Enabled {
		logger.Info("headless rendering disabled")
		return headlessfetcher.NewNoop(), nil
	}
	renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleMs) * time.Millisecond,
		HostQPS:           cfg.Headless.HostQPS,
		HostBurst:         cfg.Headless.HostBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	return renderer, nil
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
}
