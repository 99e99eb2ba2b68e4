// Package manifest records provenance for every stored artifact in an
// append-only CSV log.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/clock/system"
	"github.com/JakeFAU/nidus-scraper/internal/hash/sha256"
	"github.com/JakeFAU/nidus-scraper/internal/metrics"
)

// Header is the first line of every manifest log.
const Header = "filename,sha256,source_url,downloaded_at"

// ErrDelimiterInField is returned when a field would break the CSV row.
var ErrDelimiterInField = errors.New("manifest field contains a delimiter")

// Record is one provenance row.
type Record struct {
	Path       string
	Digest     string
	SourceURL  string
	RecordedAt time.Time
	RunID      string
}

// Line renders the record as a CSV row without the trailing newline.
func (r Record) Line() string {
	return strings.Join([]string{
		r.Path,
		r.Digest,
		r.SourceURL,
		r.RecordedAt.UTC().Format(time.RFC3339Nano),
	}, ",")
}

// Sink receives a copy of every record after it is appended to the log.
type Sink interface {
	WriteRecord(ctx context.Context, rec Record) error
}

// Clock supplies record timestamps.
type Clock interface {
	Now() time.Time
}

// Options configures a Recorder.
type Options struct {
	Clock  Clock
	RunID  string
	Sinks  []Sink
	Logger *zap.Logger
}

// Recorder appends records to the manifest log. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	hasher *sha256.Hasher
	clock  Clock
	runID  string
	sinks  []Sink
	logger *zap.Logger
}

// Open opens (or creates) the log at path for appending. The header is
// written when the log is new or empty.
func Open(path string, opts Options) (*Recorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	// #nosec G304 -- manifest path comes from configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat manifest: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(Header + "\n"); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write manifest header: %w", err)
		}
	}
	return &Recorder{
		path:   path,
		file:   f,
		hasher: sha256.New(),
		clock:  opts.Clock,
		runID:  opts.RunID,
		sinks:  opts.Sinks,
		logger: opts.Logger,
	}, nil
}

// Path returns the log location.
func (r *Recorder) Path() string {
	return r.path
}

// Record digests the file at path and appends a row for it.
func (r *Recorder) Record(ctx context.Context, path, sourceURL string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if err := checkField(path); err != nil {
		return err
	}
	if err := checkField(sourceURL); err != nil {
		return err
	}
	digest, err := r.hasher.HashFile(path)
	if err != nil {
		return fmt.Errorf("digest %s: %w", path, err)
	}
	rec := Record{
		Path:       path,
		Digest:     digest,
		SourceURL:  sourceURL,
		RecordedAt: r.clock.Now().UTC(),
		RunID:      r.runID,
	}
	if err := r.append(rec); err != nil {
		return err
	}
	metrics.ObserveManifestRecord()
	for _, sink := range r.sinks {
		if err := sink.WriteRecord(ctx, rec); err != nil {
			r.logger.Warn("manifest sink failed", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

func (r *Recorder) append(rec Record) error {
	line := rec.Line() + "\n"
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("manifest is closed")
	}
	if _, err := r.file.WriteString(line); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return nil
}

// Close flushes and closes the log. Further records fail.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

func checkField(v string) error {
	if strings.ContainsAny(v, ",\r\n") {
		return fmt.Errorf("%w: %q", ErrDelimiterInField, v)
	}
	return nil
}
