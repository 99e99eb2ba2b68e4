// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// WorkItem pairs a remote resource with the local path it is persisted to.
// It is passed by value and never mutated once built.
type WorkItem struct {
	URL         string
	Destination string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Query   map[string]string
}

// FetchResponse is the result returned by a Fetcher implementation.
// Non-2xx statuses are reported here rather than as errors.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
