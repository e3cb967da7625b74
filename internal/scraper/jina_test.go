package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/pkg/jina"
)

// mockJina implements jina.Client.
type mockJina struct {
	resp *jina.ReadResponse
	err  error
}

func (m *mockJina) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return m.resp, m.err
}

func goodJinaResponse() *jina.ReadResponse {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Acme",
			URL:     "https://acme.com",
			Content: strings.Repeat("Acme builds useful things. ", 10),
		},
	}
}

func TestJinaScraper_Scrape(t *testing.T) {
	j := NewJinaScraper(&mockJina{resp: goodJinaResponse()})

	pass, err := j.Scrape(context.Background(), "https://acme.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, "jina", pass.Scraper)
	assert.Equal(t, "hosted_api", pass.Strategy)
	assert.Equal(t, "Acme", pass.Result.Title)
	assert.NotEmpty(t, pass.ID)
}

func TestJinaScraper_DisabledWithoutClient(t *testing.T) {
	j := NewJinaScraper(nil)

	assert.False(t, j.Enabled())

	// Calling anyway reports the disabled state instead of panicking.
	_, err := j.Scrape(context.Background(), "https://acme.com", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestJinaScraper_CircuitBreakerOpensAfterFailures(t *testing.T) {
	j := NewJinaScraper(&mockJina{err: errors.New("timeout")})

	for range 3 {
		_, err := j.Scrape(context.Background(), "https://acme.com", Options{})
		assert.Error(t, err)
	}

	// Breaker now open: the plugin reports itself unavailable so the
	// registry routes around it.
	assert.False(t, j.Enabled())
	_, err := j.Scrape(context.Background(), "https://acme.com", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestNeedsFallback(t *testing.T) {
	tests := []struct {
		name string
		resp *jina.ReadResponse
		want bool
	}{
		{"nil response", nil, true},
		{"error code", &jina.ReadResponse{Code: 451}, true},
		{"tiny content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "hi"}}, true},
		{
			"short challenge page",
			&jina.ReadResponse{Code: 200, Data: jina.ReadData{
				Content: strings.Repeat("x", 150) + " checking your browser",
			}},
			true,
		},
		{"healthy response", goodJinaResponse(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsFallback(tt.resp))
		})
	}
}
