package model

import "time"

// DiscoveryResult is the outcome of one discovery invocation for a domain.
// FailureNote is set when discovery ended early; the URLs found up to that
// point are still included.
type DiscoveryResult struct {
	Domain       string    `json:"domain"`
	URLs         []string  `json:"urls"`
	SitemapFound bool      `json:"sitemap_found"`
	FailureNote  string    `json:"failure_note,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
