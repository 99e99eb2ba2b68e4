package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotModified is returned when a conditional fetch reports HTTP 304.
	ErrNotModified = errors.New("not modified")
	// ErrRendererDisabled indicates rendering has been disabled via configuration.
	ErrRendererDisabled = errors.New("renderer disabled")
)

// StatusError reports an HTTP response whose status is not acceptable.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// CheckStatus converts a non-2xx response into an error.
func CheckStatus(resp FetchResponse) error {
	if resp.OK() {
		return nil
	}
	return &StatusError{URL: resp.URL, StatusCode: resp.StatusCode}
}
