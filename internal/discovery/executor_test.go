package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/stream"
)

// collectEmitter records every event it receives.
type collectEmitter struct {
	mu     sync.Mutex
	events []stream.Event
}

func (c *collectEmitter) Emit(ev stream.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collectEmitter) byType(t stream.EventType) []stream.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []stream.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestDiscover_SitemapSufficient(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/about</loc></url>
  <url><loc>%[1]s/pricing</loc></url>
  <url><loc>%[1]s/team</loc></url>
  <url><loc>%[1]s/products</loc></url>
  <url><loc>%[1]s/contact</loc></url>
  <url><loc>https://elsewhere.example/page</loc></url>
</urlset>`, srv.URL)
	}))
	defer srv.Close()

	e := NewExecutor(Options{MaxURLs: 50, SitemapThreshold: 5})
	emit := &collectEmitter{}

	result, err := e.Discover(context.Background(), srv.URL, emit)
	require.NoError(t, err)

	assert.True(t, result.SitemapFound)
	assert.Len(t, result.URLs, 5, "cross-host sitemap entries dropped")
	assert.Equal(t, StateCompleted, e.State())
	assert.NotEmpty(t, emit.byType(stream.EventProgress))
}

func TestDiscover_ValidateURLsDropsDead(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/about</loc></url>
  <url><loc>%[1]s/pricing</loc></url>
  <url><loc>%[1]s/removed-page</loc></url>
</urlset>`, srv.URL)
		case "/about", "/pricing":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewExecutor(Options{MaxURLs: 50, SitemapThreshold: 2, ValidateURLs: true})

	result, err := e.Discover(context.Background(), srv.URL, &collectEmitter{})
	require.NoError(t, err)

	assert.True(t, result.SitemapFound)
	assert.Equal(t, []string{srv.URL + "/about", srv.URL + "/pricing"}, result.URLs,
		"dead sitemap entry dropped, order preserved")
	assert.Equal(t, StateCompleted, e.State())
}

func TestDiscover_SitemapIndexHop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`, srv.URL)
		case "/sitemap-pages.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/about</loc></url>
  <url><loc>%[1]s/pricing</loc></url>
  <url><loc>%[1]s/team</loc></url>
  <url><loc>%[1]s/careers</loc></url>
  <url><loc>%[1]s/blog</loc></url>
</urlset>`, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewExecutor(Options{MaxURLs: 50, SitemapThreshold: 5})
	result, err := e.Discover(context.Background(), srv.URL, stream.Nop)
	require.NoError(t, err)

	assert.True(t, result.SitemapFound)
	assert.Len(t, result.URLs, 5)
}

func TestDiscover_CrawlFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<a href="/about">About</a>
<a href="/pricing">Pricing</a>
<a href="/login/portal">Login</a>
<a href="https://external.example/x">External</a>
<a href="#section">Anchor</a>
</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/team">Team</a></body></html>`)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	mux.HandleFunc("/team", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExecutor(Options{MaxURLs: 50, SitemapThreshold: 5, MaxDepth: 3})
	emit := &collectEmitter{}

	result, err := e.Discover(context.Background(), srv.URL, emit)
	require.NoError(t, err)

	assert.False(t, result.SitemapFound)
	assert.Contains(t, result.URLs, srv.URL+"/about")
	assert.Contains(t, result.URLs, srv.URL+"/pricing")
	assert.Contains(t, result.URLs, srv.URL+"/team")
	for _, u := range result.URLs {
		assert.NotContains(t, u, "/login/")
		assert.NotContains(t, u, "external.example")
	}
	assert.Empty(t, result.FailureNote)
	assert.Equal(t, StateCompleted, e.State())
}

func TestDiscover_MaxURLsCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < 30; i++ {
			fmt.Fprintf(w, `<a href="/page-%d">p</a>`, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExecutor(Options{MaxURLs: 10, SitemapThreshold: 5, MaxDepth: 2})
	result, err := e.Discover(context.Background(), srv.URL, stream.Nop)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.URLs), 10)
}

func TestDiscover_CancelledReturnsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(Options{MaxURLs: 50, SitemapThreshold: 5})
	result, err := e.Discover(ctx, srv.URL, stream.Nop)

	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.FailureNote)
	assert.Equal(t, StateFailed, e.State())
}

func TestDiscover_BadDomain(t *testing.T) {
	e := NewExecutor(DefaultOptions())
	_, err := e.Discover(context.Background(), "", stream.Nop)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, e.State())
}

func TestPathMatcher(t *testing.T) {
	m := NewPathMatcher(nil)

	tests := []struct {
		url      string
		excluded bool
	}{
		{"https://acme.com/about", false},
		{"https://acme.com/login/sso", true},
		{"https://acme.com/cart/item/42", true},
		{"https://acme.com/whitepaper.pdf", true},
		{"https://acme.com/pricing", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.excluded, m.IsExcluded(tt.url), tt.url)
	}

	custom := NewPathMatcher([]string{"/docs/*"})
	assert.True(t, custom.IsExcluded("https://acme.com/docs/v2/api"))
	assert.False(t, custom.IsExcluded("https://acme.com/login/sso"))
}
