package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aboutPageHTML = `<!DOCTYPE html>
<html>
<head><title>About Acme</title></head>
<body>
<nav><a href="/">Home</a></nav>
<h1>About Us</h1>
<p>Acme Corporation has been building widgets since 1947. Our mission is
to make widgets accessible to everyone, everywhere.</p>
<script>console.log("tracking")</script>
<footer>© Acme</footer>
</body>
</html>`

func TestStaticScraper_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(aboutPageHTML))
	}))
	defer srv.Close()

	s := NewStaticScraper()
	pass, err := s.Scrape(context.Background(), srv.URL+"/about", Options{WantHTML: true})

	require.NoError(t, err)
	assert.Equal(t, "static_http", pass.Scraper)
	assert.Equal(t, "About Acme", pass.Result.Title)
	assert.Contains(t, pass.Result.Content, "About Us")
	assert.Contains(t, pass.Result.Content, "since 1947")
	assert.Contains(t, pass.Result.Text, "mission")
	assert.NotContains(t, pass.Result.Text, "tracking")
	assert.NotEmpty(t, pass.Result.HTML)
	assert.Equal(t, 200, pass.Result.Metadata.StatusCode)
}

func TestStaticScraper_BlockedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("cf-ray", "8abc")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body>Checking your browser before accessing</body></html>"))
	}))
	defer srv.Close()

	s := NewStaticScraper()
	_, err := s.Scrape(context.Background(), srv.URL, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
	assert.Contains(t, err.Error(), "cloudflare")
}

func TestStaticScraper_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("server error ", 20)))
	}))
	defer srv.Close()

	s := NewStaticScraper()
	_, err := s.Scrape(context.Background(), srv.URL, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestStaticScraper_TinyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	s := NewStaticScraper()
	_, err := s.Scrape(context.Background(), srv.URL, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty page")
}

func TestStaticScraper_CanHandle(t *testing.T) {
	s := NewStaticScraper()
	assert.True(t, s.CanHandle("https://acme.com"))
	assert.True(t, s.CanHandle("http://acme.com"))
	assert.False(t, s.CanHandle("ftp://acme.com"))
	assert.True(t, s.Enabled())
}

func TestDetectBlock(t *testing.T) {
	captchaResp := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, kind := DetectBlock(captchaResp, []byte("<html>please solve this recaptcha</html>"))
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, kind)

	jsShell := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, kind = DetectBlock(jsShell, []byte(`<html><noscript>enable javascript</noscript></html>`))
	assert.True(t, blocked)
	assert.Equal(t, BlockJSShell, kind)

	challenge := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, kind = DetectBlock(challenge, []byte("<html>Just a moment...</html>"))
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)

	clean := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, _ = DetectBlock(clean, []byte(strings.Repeat("<p>regular content</p>", 200)))
	assert.False(t, blocked)
}
