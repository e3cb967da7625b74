package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/pkg/firecrawl"
)

// mockFirecrawl implements firecrawl.Client.
type mockFirecrawl struct {
	scrapeResp *firecrawl.ScrapeResponse
	scrapeErr  error
	batchData  []firecrawl.PageData
}

func (m *mockFirecrawl) Scrape(_ context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	return m.scrapeResp, m.scrapeErr
}

func (m *mockFirecrawl) BatchScrape(_ context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	return &firecrawl.BatchScrapeResponse{Success: true, ID: "job-1"}, nil
}

func (m *mockFirecrawl) GetBatchScrapeStatus(_ context.Context, id string) (*firecrawl.BatchScrapeStatusResponse, error) {
	return &firecrawl.BatchScrapeStatusResponse{
		Status: "completed",
		Total:  len(m.batchData),
		Data:   m.batchData,
	}, nil
}

func TestFirecrawlScraper_Scrape(t *testing.T) {
	f := NewFirecrawlScraper(&mockFirecrawl{
		scrapeResp: &firecrawl.ScrapeResponse{
			Success: true,
			Data: firecrawl.PageData{
				URL:        "https://acme.com/pricing",
				Markdown:   "# Pricing\n\nStarter: $10/mo",
				Title:      "Pricing",
				StatusCode: 200,
			},
		},
	})

	pass, err := f.Scrape(context.Background(), "https://acme.com/pricing", Options{})
	require.NoError(t, err)
	assert.Equal(t, "firecrawl", pass.Scraper)
	assert.Contains(t, pass.Result.Content, "Starter")
	assert.Equal(t, 200, pass.Result.Metadata.StatusCode)
}

func TestFirecrawlScraper_DisabledWithoutKey(t *testing.T) {
	f := NewFirecrawlScraper(nil)
	assert.False(t, f.Enabled())

	_, err := f.Scrape(context.Background(), "https://acme.com", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestFirecrawlScraper_ScrapeBatch_ReportsMissingURLs(t *testing.T) {
	f := NewFirecrawlScraper(&mockFirecrawl{
		batchData: []firecrawl.PageData{
			{URL: "https://acme.com/a", Markdown: "# A", StatusCode: 200},
			{URL: "https://acme.com/b", Markdown: "# B", StatusCode: 200},
		},
	})

	result, err := f.ScrapeBatch(context.Background(),
		[]string{"https://acme.com/a", "https://acme.com/b", "https://acme.com/c"},
		Options{},
	)

	require.NoError(t, err)
	assert.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "https://acme.com/c", result.Failed[0].URL)
	assert.True(t, result.Failed[0].Retriable)
	assert.Equal(t, 3, result.Metrics.Requested)
}

func TestFirecrawlScraper_Enhance_RequestsHTMLWhenMissing(t *testing.T) {
	f := NewFirecrawlScraper(&mockFirecrawl{
		scrapeResp: &firecrawl.ScrapeResponse{
			Success: true,
			Data: firecrawl.PageData{
				URL:        "https://acme.com",
				Markdown:   "# Home",
				HTML:       "<html><body><h1>Home</h1></body></html>",
				StatusCode: 200,
			},
		},
	})

	pass, err := f.Enhance(context.Background(), nil, "https://acme.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, "enhance", pass.Strategy)
	assert.NotEmpty(t, pass.Result.HTML)
}
