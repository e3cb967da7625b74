// Package scraper defines the plugin interface over heterogeneous scraping
// backends (static HTTP, headless browser, hosted APIs) and a registry
// that routes URLs to plugins by capability and priority.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/company-intel/internal/model"
)

// Capabilities declares what a scraping backend can do.
type Capabilities struct {
	JavaScript      bool `json:"javascript"`
	Authentication  bool `json:"authentication"`
	Proxies         bool `json:"proxies"`
	Cookies         bool `json:"cookies"`
	MaxConcurrency  int  `json:"max_concurrency"`
	RateLimitPerMin int  `json:"rate_limit_per_min"`
}

// Cost estimates what a backend charges.
type Cost struct {
	PerPageUSD float64 `json:"per_page_usd"`
	PerMBUSD   float64 `json:"per_mb_usd"`
	SetupUSD   float64 `json:"setup_usd"`
	MinimumUSD float64 `json:"minimum_usd"`
}

// Requirements lists what a backend needs before it can run.
type Requirements struct {
	APIKey        bool `json:"api_key"`
	Browser       bool `json:"browser"`
	Proxy         bool `json:"proxy"`
	CaptchaSolver bool `json:"captcha_solver"`
}

// Options tunes a single scrape invocation.
type Options struct {
	Timeout  time.Duration
	Strategy string // tag recorded on the resulting pass
	WantHTML bool
}

// Scraper is the uniform plugin interface. A plugin that lacks a required
// credential reports Enabled() == false instead of failing at call time;
// callers filter on Enabled before dispatch.
type Scraper interface {
	Name() string
	// Priority orders dispatch when multiple plugins can handle a URL.
	// Static 1–100, higher first.
	Priority() int
	Enabled() bool
	Capabilities() Capabilities
	Cost() Cost
	Requirements() Requirements
	CanHandle(url string) bool
	Scrape(ctx context.Context, url string, opts Options) (*model.ScrapingPass, error)
}

// BatchScraper is implemented by plugins with a native batch endpoint.
type BatchScraper interface {
	Scraper
	ScrapeBatch(ctx context.Context, urls []string, opts Options) (*BatchResult, error)
}

// Enhancer is implemented by plugins that can improve an existing merged
// record with a follow-up pass.
type Enhancer interface {
	Scraper
	Enhance(ctx context.Context, existing *model.MergedScrapingData, url string, opts Options) (*model.ScrapingPass, error)
}

// BatchFailure records one URL that could not be scraped in a batch.
type BatchFailure struct {
	URL       string `json:"url"`
	Error     string `json:"error"`
	Retriable bool   `json:"retriable"`
}

// BatchMetrics summarizes a batch run.
type BatchMetrics struct {
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// BatchResult carries per-URL outcomes of a batch scrape. A per-URL
// failure never aborts the remaining batch.
type BatchResult struct {
	Successful []model.ScrapingPass `json:"successful"`
	Failed     []BatchFailure       `json:"failed"`
	Metrics    BatchMetrics         `json:"metrics"`
}

// newPass assembles a ScrapingPass for a completed scrape.
func newPass(scraperName, strategy, url string, started time.Time, result model.ScrapeResult) *model.ScrapingPass {
	elapsed := time.Since(started).Milliseconds()
	result.Metadata.DurationMS = elapsed
	return &model.ScrapingPass{
		ID:        uuid.New().String(),
		Scraper:   scraperName,
		Strategy:  strategy,
		Timestamp: started.UTC(),
		URL:       url,
		Duration:  elapsed,
		Result:    result,
	}
}

// isWebURL reports whether the URL uses a scheme the plugins understand.
func isWebURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
