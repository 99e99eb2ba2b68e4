package crawler

import (
	"net/url"
	"path"
	"strings"
)

// LastSegment returns the final path segment of rawURL with backslashes
// treated as separators, or "" when there is none.
func LastSegment(rawURL string) string {
	p := strings.ReplaceAll(rawURL, `\`, "/")
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// PageFileName flattens the path of rawURL into a single file name:
// "/a/b/" becomes "a_b.pdf" and an empty path becomes "index.pdf".
func PageFileName(rawURL string) string {
	p := ""
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.ReplaceAll(strings.Trim(p, "/"), "/", "_")
	if p == "" {
		p = "index"
	}
	return p + ".pdf"
}
