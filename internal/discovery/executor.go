// Package discovery finds the pages worth scraping on a target domain.
// The executor tries the sitemap first and falls back to a bounded
// same-domain crawl, emitting incremental progress so long runs stay
// observable and cancellable.
package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/session"
	"github.com/sells-group/company-intel/internal/stream"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; CompanyIntelBot/1.0)"
	crawlWindow  = 5
	maxPageBytes = 512 * 1024
)

// State tracks the executor through one discovery run.
type State string

const (
	StateIdle      State = "idle"
	StateSitemap   State = "discovering_sitemap"
	StateCrawl     State = "discovering_crawl"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Options bounds a discovery run.
type Options struct {
	// MaxURLs caps the total URLs returned.
	MaxURLs int
	// SitemapThreshold is the minimum sitemap URL count that makes the
	// crawl fallback unnecessary.
	SitemapThreshold int
	// MaxDepth bounds the crawl's link-following depth.
	MaxDepth int
	// ExcludePatterns are glob-style paths to skip.
	ExcludePatterns []string
	// ValidateURLs HEAD-checks sitemap URLs and drops dead ones before
	// they are returned. Crawled URLs are already fetched and need no
	// extra check.
	ValidateURLs bool
}

// DefaultOptions returns the standard discovery bounds.
func DefaultOptions() Options {
	return Options{
		MaxURLs:          50,
		SitemapThreshold: 5,
		MaxDepth:         2,
	}
}

// Executor runs discovery for one domain at a time.
type Executor struct {
	http    *http.Client
	matcher *PathMatcher
	opts    Options

	mu    sync.Mutex
	state State
}

// NewExecutor creates an Executor with a sensible default HTTP client.
func NewExecutor(opts Options) *Executor {
	if opts.MaxURLs <= 0 {
		opts.MaxURLs = DefaultOptions().MaxURLs
	}
	if opts.SitemapThreshold <= 0 {
		opts.SitemapThreshold = DefaultOptions().SitemapThreshold
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	return &Executor{
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		matcher: NewPathMatcher(opts.ExcludePatterns),
		opts:    opts,
		state:   StateIdle,
	}
}

// State returns the executor's current state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Discover finds URLs for the domain. Progress is emitted incrementally.
// On mid-crawl failure the URLs found so far are still returned, tagged
// with a failure note, alongside the error.
func (e *Executor) Discover(ctx context.Context, domain string, emit stream.Emitter) (*model.DiscoveryResult, error) {
	base, err := parseDomain(domain)
	if err != nil {
		e.setState(StateFailed)
		return nil, eris.Wrapf(err, "discovery: parsing domain %s", domain)
	}

	result := &model.DiscoveryResult{
		Domain:       domain,
		DiscoveredAt: time.Now().UTC(),
	}

	e.setState(StateSitemap)
	stream.Progress(emit, 0, e.opts.MaxURLs, "checking sitemap")

	seeds := e.filterURLs(e.fetchSitemap(ctx, base))
	result.SitemapFound = len(seeds) > 0
	if e.opts.ValidateURLs && len(seeds) > 0 {
		seeds = e.validateURLs(ctx, seeds)
	}
	stream.Progress(emit, min(len(seeds), e.opts.MaxURLs), e.opts.MaxURLs, "sitemap checked")

	if len(seeds) >= e.opts.SitemapThreshold {
		if len(seeds) > e.opts.MaxURLs {
			seeds = seeds[:e.opts.MaxURLs]
		}
		result.URLs = seeds
		e.setState(StateCompleted)
		return result, nil
	}

	e.setState(StateCrawl)
	urls, crawlErr := e.crawl(ctx, base, seeds, emit)
	result.URLs = urls

	if crawlErr != nil {
		result.FailureNote = crawlErr.Error()
		e.setState(StateFailed)
		return result, eris.Wrap(crawlErr, "discovery: crawl")
	}

	e.setState(StateCompleted)
	return result, nil
}

// crawl runs a bounded same-domain BFS seeded from the homepage and any
// sitemap URLs. Per-page fetch errors are logged and skipped; only
// cancellation aborts the crawl.
func (e *Executor) crawl(ctx context.Context, base *url.URL, seeds []string, emit stream.Emitter) ([]string, error) {
	type crawlItem struct {
		url   string
		depth int
	}

	home := base.String()
	seen := map[string]bool{home: true}
	queue := []crawlItem{{url: home}}
	var urls []string

	for _, s := range seeds {
		if seen[s] || len(queue) >= e.opts.MaxURLs {
			continue
		}
		seen[s] = true
		queue = append(queue, crawlItem{url: s, depth: 1})
	}

	var mu sync.Mutex

	for {
		if err := ctx.Err(); err != nil {
			return urls, err
		}

		mu.Lock()
		if len(queue) == 0 || len(urls) >= e.opts.MaxURLs {
			mu.Unlock()
			break
		}

		var batch []crawlItem
		for len(batch) < crawlWindow && len(queue) > 0 && len(urls) < e.opts.MaxURLs {
			item := queue[0]
			queue = queue[1:]
			urls = append(urls, item.url)
			if item.depth < e.opts.MaxDepth {
				batch = append(batch, item)
			}
		}
		found := len(urls)
		mu.Unlock()

		stream.Progress(emit, found, e.opts.MaxURLs, "crawling")

		if len(batch) == 0 {
			continue
		}

		// Fresh errgroup per batch so the derived context is not
		// cancelled between iterations.
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(crawlWindow)

		for _, item := range batch {
			g.Go(func() error {
				select {
				case <-gCtx.Done():
					return nil
				default:
				}

				links, err := e.extractLinks(gCtx, item.url, base)
				if err != nil {
					zap.L().Debug("discovery: link extraction failed",
						zap.String("url", item.url),
						zap.Error(err),
					)
					return nil
				}

				mu.Lock()
				for _, link := range links {
					if seen[link] || len(urls)+len(queue) >= e.opts.MaxURLs {
						continue
					}
					if e.matcher.IsExcluded(link) {
						continue
					}
					seen[link] = true
					queue = append(queue, crawlItem{url: link, depth: item.depth + 1})
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	return urls, nil
}

// extractLinks fetches a page and returns its same-host links.
func (e *Executor) extractLinks(ctx context.Context, pageURL string, base *url.URL) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved, err := url.Parse(href)
		if err != nil {
			return
		}
		absolute := base.ResolveReference(resolved)
		if absolute.Host != base.Host {
			return
		}
		absolute.Fragment = ""
		normalized := absolute.String()
		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	})
	return links, nil
}

// validateURLs HEAD-checks each URL concurrently and keeps the ones
// that answer below 400. Sitemaps go stale; a listed page is no promise
// it still exists. Order is preserved.
func (e *Executor) validateURLs(ctx context.Context, urls []string) []string {
	alive := make([]bool, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(crawlWindow)
	for i, u := range urls {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gCtx, http.MethodHead, u, nil)
			if err != nil {
				return nil
			}
			req.Header.Set("User-Agent", userAgent)

			resp, err := e.http.Do(req)
			if err != nil {
				zap.L().Debug("discovery: url validation failed",
					zap.String("url", u),
					zap.Error(err),
				)
				return nil
			}
			resp.Body.Close() //nolint:errcheck
			alive[i] = resp.StatusCode < http.StatusBadRequest
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for i, ok := range alive {
		if ok {
			out = append(out, urls[i])
		}
	}
	return out
}

// filterURLs drops excluded URLs.
func (e *Executor) filterURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if !e.matcher.IsExcluded(u) {
			out = append(out, u)
		}
	}
	return out
}

// PersistResult merges the discovery result into the session's data blob
// under the "discovery" key, preserving unrelated keys.
func PersistResult(ctx context.Context, store session.Store, sessionID string, result *model.DiscoveryResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "discovery: encoding result")
	}
	_, err = session.MergeData(ctx, store, sessionID, map[string]json.RawMessage{
		"discovery": blob,
	})
	return err
}

func parseDomain(domain string) (*url.URL, error) {
	raw := domain
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, eris.Errorf("no host in %q", domain)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}
