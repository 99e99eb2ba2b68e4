package discovery

import "strings"

var (
	// DefaultKeywords mark a URL as a product page.
	DefaultKeywords = []string{"product", "system", "platform", "solution", "capability", "hardware"}
	// DefaultExclude disqualify a URL regardless of keywords.
	DefaultExclude = []string{"blog", "news", "careers", "privacy"}
)

// Filter decides whether a URL is a product page candidate.
type Filter struct {
	Keywords []string
	Exclude  []string
}

// DefaultFilter uses DefaultKeywords and DefaultExclude.
func DefaultFilter() Filter {
	return Filter{Keywords: DefaultKeywords, Exclude: DefaultExclude}
}

// Candidate is true when the lower-cased URL contains a keyword and no
// excluded term.
func (f Filter) Candidate(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ex := range f.Exclude {
		if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}
	for _, kw := range f.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
