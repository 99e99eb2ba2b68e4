// Package dispatcher fans work items out to handlers under a concurrency cap.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
	"github.com/JakeFAU/nidus-scraper/internal/metrics"
)

// Handler processes a single work item.
type Handler func(ctx context.Context, item crawler.WorkItem) error

// Config controls Dispatcher behavior.
type Config struct {
	// MaxConcurrency caps how many handlers run at once. Values below one
	// are treated as one.
	MaxConcurrency int
	// FailFast makes Run return the first item failure instead of only
	// logging it. Siblings still run to completion.
	FailFast bool
}

// Summary describes the outcome of one Run.
type Summary struct {
	Submitted int
	Succeeded int
	Failed    int
}

// Dispatcher runs handlers for a batch of work items.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Run starts one goroutine per item and blocks until all of them finish.
// The semaphore, not submission, bounds how many handlers are in flight.
func (d *Dispatcher) Run(ctx context.Context, items []crawler.WorkItem, handler Handler) (Summary, error) {
	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrency))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		summary  = Summary{Submitted: len(items)}
		firstErr error
	)
	for _, item := range items {
		wg.Add(1)
		go func(it crawler.WorkItem) {
			defer wg.Done()
			err := d.admit(ctx, sem, it, handler)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				summary.Succeeded++
				return
			}
			summary.Failed++
			if firstErr == nil {
				firstErr = err
			}
			d.logger.Warn("work item failed",
				zap.String("url", it.URL),
				zap.String("path", it.Destination),
				zap.Error(err),
			)
		}(item)
	}
	wg.Wait()

	d.logger.Debug("dispatch finished",
		zap.Int("submitted", summary.Submitted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	if d.cfg.FailFast && firstErr != nil {
		return summary, firstErr
	}
	return summary, nil
}

func (d *Dispatcher) admit(ctx context.Context, sem *semaphore.Weighted, item crawler.WorkItem, handler Handler) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("acquire worker slot: %w", err)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker slot: %w", err)
	}
	defer sem.Release(1)

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("handler panic for %s: %v", item.URL, r))
		}
	}()
	return handler(ctx, item)
}
