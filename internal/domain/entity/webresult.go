package entity

import "strings"

// NoSourceURL is the well-known placeholder for results with no real URL,
// e.g. the synthetic search-suggestion result. It never counts as an
// absolute URL and is never cited.
const NoSourceURL = "no-source"

// WebResult is one external search hit.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
}

// HasAbsoluteURL reports whether the result points at a real HTTP(S) URL.
func (r WebResult) HasAbsoluteURL() bool {
	return strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://")
}
