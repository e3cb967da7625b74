package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://acme.com/about", req.URL)

		_ = json.NewEncoder(w).Encode(ScrapeResponse{
			Success: true,
			Data: PageData{
				URL:        req.URL,
				Markdown:   "# About",
				Title:      "About Us",
				StatusCode: 200,
			},
		})
	}))
	defer srv.Close()

	client := NewClient("fc-key", WithBaseURL(srv.URL))
	resp, err := client.Scrape(context.Background(), ScrapeRequest{
		URL:     "https://acme.com/about",
		Formats: []string{"markdown"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "About Us", resp.Data.Title)
}

func TestClient_Scrape_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient("fc-key", WithBaseURL(srv.URL))
	_, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://acme.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestPollBatchScrape_CompletesAfterPending(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		status := "scraping"
		var data []PageData
		if n >= 3 {
			status = "completed"
			data = []PageData{{URL: "https://acme.com", Markdown: "# Home", StatusCode: 200}}
		}
		_ = json.NewEncoder(w).Encode(BatchScrapeStatusResponse{
			Status: status,
			Total:  1,
			Data:   data,
		})
	}))
	defer srv.Close()

	client := NewClient("fc-key", WithBaseURL(srv.URL))
	status, err := PollBatchScrape(context.Background(), client, "job-1",
		WithPollInterval(5*time.Millisecond),
		WithPollCap(10*time.Millisecond),
	)

	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Len(t, status.Data, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestPollBatchScrape_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(BatchScrapeStatusResponse{Status: "failed"})
	}))
	defer srv.Close()

	client := NewClient("fc-key", WithBaseURL(srv.URL))
	_, err := PollBatchScrape(context.Background(), client, "job-2",
		WithPollInterval(time.Millisecond))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}
