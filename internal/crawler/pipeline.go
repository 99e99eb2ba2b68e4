package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/metrics"
	"github.com/JakeFAU/nidus-scraper/internal/retry"
)

// PipelineOptions wires a Pipeline. Fetcher is required for Download and
// Renderer for Render.
type PipelineOptions struct {
	Source   string
	Fetcher  Fetcher
	Renderer Renderer
	Store    ContentStore
	Recorder Recorder
	Retry    retry.Policy
	Logger   *zap.Logger
}

// Pipeline turns a WorkItem into a stored artifact plus a manifest record.
type Pipeline struct {
	source   string
	fetcher  Fetcher
	renderer Renderer
	store    ContentStore
	recorder Recorder
	policy   retry.Policy
	logger   *zap.Logger
}

// NewPipeline validates opts and builds a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if opts.Fetcher == nil && opts.Renderer == nil {
		return nil, fmt.Errorf("a fetcher or renderer is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Pipeline{
		source:   opts.Source,
		fetcher:  opts.Fetcher,
		renderer: opts.Renderer,
		store:    opts.Store,
		recorder: opts.Recorder,
		policy:   opts.Retry,
		logger:   opts.Logger,
	}, nil
}

// Download fetches item.URL with retries, stores the body at
// item.Destination and records it. A 304 response is not retried and skips
// the item without error.
func (p *Pipeline) Download(ctx context.Context, item WorkItem, headers http.Header) error {
	if p.fetcher == nil {
		return fmt.Errorf("download %s: no fetcher configured", item.URL)
	}
	body, err := retry.Do(ctx, p.policy, p.logger.With(zap.String("url", item.URL)),
		func(ctx context.Context) ([]byte, error) {
			resp, err := p.fetcher.Fetch(ctx, FetchRequest{URL: item.URL, Headers: headers})
			if err != nil {
				return nil, err //nolint:wrapcheck
			}
			if resp.StatusCode == http.StatusNotModified {
				return nil, retry.Permanent(ErrNotModified)
			}
			if err := CheckStatus(resp); err != nil {
				return nil, err
			}
			return resp.Body, nil
		})
	if errors.Is(err, ErrNotModified) {
		metrics.ObserveArtifact(p.source, metrics.OutcomeNotModified, 0)
		p.logger.Debug("not modified", zap.String("url", item.URL))
		return nil
	}
	if err != nil {
		metrics.ObserveArtifact(p.source, metrics.OutcomeFailed, 0)
		return fmt.Errorf("download %s: %w", item.URL, err)
	}
	return p.persist(ctx, item, body)
}

// Render prints item.URL to PDF with retries, stores it and records it.
func (p *Pipeline) Render(ctx context.Context, item WorkItem) error {
	if p.renderer == nil {
		return fmt.Errorf("render %s: %w", item.URL, ErrRendererDisabled)
	}
	pdf, err := retry.Do(ctx, p.policy, p.logger.With(zap.String("url", item.URL)),
		func(ctx context.Context) ([]byte, error) {
			data, err := p.renderer.Render(ctx, item.URL)
			if errors.Is(err, ErrRendererDisabled) {
				return nil, retry.Permanent(err)
			}
			return data, err //nolint:wrapcheck
		})
	if err != nil {
		metrics.ObserveArtifact(p.source, metrics.OutcomeFailed, 0)
		return fmt.Errorf("render %s: %w", item.URL, err)
	}
	return p.persist(ctx, item, pdf)
}

// DownloadHandler adapts Download for a worker pool.
func (p *Pipeline) DownloadHandler(headers http.Header) func(context.Context, WorkItem) error {
	return func(ctx context.Context, item WorkItem) error {
		return p.Download(ctx, item, headers)
	}
}

// RenderHandler adapts Render for a worker pool.
func (p *Pipeline) RenderHandler() func(context.Context, WorkItem) error {
	return p.Render
}

func (p *Pipeline) persist(ctx context.Context, item WorkItem, content []byte) error {
	if err := p.store.Put(ctx, item.Destination, content); err != nil {
		metrics.ObserveArtifact(p.source, metrics.OutcomeFailed, 0)
		return fmt.Errorf("store %s: %w", item.Destination, err)
	}
	if err := p.recorder.Record(ctx, item.Destination, item.URL); err != nil {
		metrics.ObserveArtifact(p.source, metrics.OutcomeFailed, 0)
		return fmt.Errorf("record %s: %w", item.Destination, err)
	}
	metrics.ObserveArtifact(p.source, metrics.OutcomeStored, len(content))
	p.logger.Info("saved", zap.String("path", item.Destination), zap.String("url", item.URL))
	return nil
}
