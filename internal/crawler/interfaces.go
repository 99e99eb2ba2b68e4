package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Renderer loads a live page and prints it to a PDF document.
type Renderer interface {
	Render(ctx context.Context, rawURL string) ([]byte, error)
}

// ContentStore persists a payload at a destination path.
type ContentStore interface {
	Put(ctx context.Context, path string, content []byte) error
}

// Recorder appends a provenance record for a stored artifact.
type Recorder interface {
	Record(ctx context.Context, path string, sourceURL string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
