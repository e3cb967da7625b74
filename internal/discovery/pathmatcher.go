package discovery

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns drop paths that never carry company
// intelligence: auth and commerce flows, admin consoles, binary assets.
var defaultExcludePatterns = []string{
	"/login/*",
	"/signin/*",
	"/signup/*",
	"/cart/*",
	"/checkout/*",
	"/wp-admin/*",
	"/cdn-cgi/*",
	"/*.pdf",
	"/*.zip",
	"/*.jpg",
	"/*.png",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Uses path.Match from stdlib for proper glob matching, plus a segmented
// match so "/cart/*" matches multi-level paths like "/cart/deep/path".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/cart/*",
// "/*.pdf"). Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathExcluded(u.Path)
}

func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/cart/*"
// matches both "/cart/item" and "/cart/deep/nested/path".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	// For patterns ending in "/*", also match any deeper path under the
	// pattern's directory.
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
