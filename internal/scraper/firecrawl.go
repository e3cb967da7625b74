package scraper

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/pkg/firecrawl"
)

// FirecrawlScraper wraps the Firecrawl API as a plugin. Lowest priority:
// it can attempt any URL but costs real money, so it runs after the free
// and cheaper plugins have failed. Implements BatchScraper via Firecrawl's
// native batch endpoint and Enhancer for HTML top-up passes.
type FirecrawlScraper struct {
	client firecrawl.Client
}

// NewFirecrawlScraper creates the plugin. A nil client (no API key
// configured) produces a disabled plugin.
func NewFirecrawlScraper(client firecrawl.Client) *FirecrawlScraper {
	return &FirecrawlScraper{client: client}
}

func (f *FirecrawlScraper) Name() string  { return "firecrawl" }
func (f *FirecrawlScraper) Priority() int { return 30 }
func (f *FirecrawlScraper) Enabled() bool { return f.client != nil }

func (f *FirecrawlScraper) Capabilities() Capabilities {
	return Capabilities{
		JavaScript:      true,
		Proxies:         true,
		Cookies:         true,
		MaxConcurrency:  5,
		RateLimitPerMin: 30,
	}
}

func (f *FirecrawlScraper) Cost() Cost {
	return Cost{PerPageUSD: 0.006, MinimumUSD: 0.006}
}

func (f *FirecrawlScraper) Requirements() Requirements {
	return Requirements{APIKey: true}
}

func (f *FirecrawlScraper) CanHandle(url string) bool { return isWebURL(url) }

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlScraper) Scrape(ctx context.Context, targetURL string, opts Options) (*model.ScrapingPass, error) {
	if f.client == nil {
		return nil, eris.New("firecrawl: plugin disabled, no api key")
	}

	started := time.Now()
	formats := []string{"markdown"}
	if opts.WantHTML {
		formats = append(formats, "html")
	}

	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: formats,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("firecrawl: scrape not successful")
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = "hosted_api"
	}
	return newPass(f.Name(), strategy, targetURL, started, model.ScrapeResult{
		URL:     resp.Data.URL,
		Title:   resp.Data.Title,
		Content: resp.Data.Markdown,
		HTML:    resp.Data.HTML,
		Metadata: model.ResultMetadata{
			StatusCode: resp.Data.StatusCode,
		},
	}), nil
}

// ScrapeBatch submits all URLs in one call to Firecrawl's batch endpoint
// and polls for results. URLs missing from the response are reported in
// Failed; a partial response never fails the batch.
func (f *FirecrawlScraper) ScrapeBatch(ctx context.Context, urls []string, opts Options) (*BatchResult, error) {
	if f.client == nil {
		return nil, eris.New("firecrawl: plugin disabled, no api key")
	}

	started := time.Now()
	resp, err := f.client.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs:    urls,
		Formats: []string{"markdown"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: start batch scrape")
	}

	status, err := firecrawl.PollBatchScrape(ctx, f.client, resp.ID)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: poll batch scrape")
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = "hosted_api_batch"
	}

	result := &BatchResult{}
	received := make(map[string]bool, len(status.Data))
	for _, d := range status.Data {
		if d.Markdown == "" {
			continue
		}
		received[d.URL] = true
		result.Successful = append(result.Successful, *newPass(f.Name(), strategy, d.URL, started, model.ScrapeResult{
			URL:      d.URL,
			Title:    d.Title,
			Content:  d.Markdown,
			Metadata: model.ResultMetadata{StatusCode: d.StatusCode},
		}))
	}
	for _, u := range urls {
		if !received[u] {
			result.Failed = append(result.Failed, BatchFailure{
				URL:       u,
				Error:     "no content returned",
				Retriable: true,
			})
		}
	}

	result.Metrics = BatchMetrics{
		Requested: len(urls),
		Succeeded: len(result.Successful),
		Failed:    len(result.Failed),
		Duration:  time.Since(started),
	}

	zap.L().Info("firecrawl: batch scrape complete",
		zap.Int("requested", len(urls)),
		zap.Int("received", len(result.Successful)),
	)
	return result, nil
}

// Enhance re-scrapes a URL asking for HTML when the existing merged record
// has none, giving the merger a richer pass to fold in.
func (f *FirecrawlScraper) Enhance(ctx context.Context, existing *model.MergedScrapingData, url string, opts Options) (*model.ScrapingPass, error) {
	opts.WantHTML = existing == nil || existing.HTML == ""
	opts.Strategy = "enhance"
	return f.Scrape(ctx, url, opts)
}
