package scraper

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
)

const staticUserAgent = "Mozilla/5.0 (compatible; CompanyIntelBot/1.0)"

// maxStaticBody caps how much of a response body is read.
const maxStaticBody = 1 << 20

// StaticScraper fetches HTML via net/http and converts it to markdown and
// plaintext. Free, no JS rendering; blocked pages fall through to the
// browser or hosted-API plugins.
type StaticScraper struct {
	client *http.Client
}

// NewStaticScraper creates a StaticScraper with sensible timeouts.
func NewStaticScraper() *StaticScraper {
	return &StaticScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (s *StaticScraper) Name() string     { return "static_http" }
func (s *StaticScraper) Priority() int    { return 50 }
func (s *StaticScraper) Enabled() bool    { return true }

func (s *StaticScraper) Capabilities() Capabilities {
	return Capabilities{MaxConcurrency: 10, RateLimitPerMin: 120}
}

func (s *StaticScraper) Cost() Cost { return Cost{} }

func (s *StaticScraper) Requirements() Requirements { return Requirements{} }

func (s *StaticScraper) CanHandle(url string) bool { return isWebURL(url) }

// Scrape fetches a URL, detects blocks, and extracts markdown, text and
// title from the HTML.
func (s *StaticScraper) Scrape(ctx context.Context, targetURL string, opts Options) (*model.ScrapingPass, error) {
	started := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "static_http: create request")
	}
	req.Header.Set("User-Agent", staticUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "static_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticBody))
	if err != nil {
		return nil, eris.Wrap(err, "static_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("static_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("static_http: status %d", resp.StatusCode)
	}
	if len(body) < 100 {
		return nil, eris.New("static_http: empty page")
	}

	result := buildResult(targetURL, string(body), resp.StatusCode, opts.WantHTML)
	strategy := opts.Strategy
	if strategy == "" {
		strategy = "static"
	}
	return newPass(s.Name(), strategy, targetURL, started, result), nil
}

// buildResult converts raw HTML into a ScrapeResult with markdown, text
// and title. Conversion failures degrade to the raw fallback rather than
// failing the scrape.
func buildResult(url, html string, statusCode int, wantHTML bool) model.ScrapeResult {
	result := model.ScrapeResult{
		URL:      url,
		Metadata: model.ResultMetadata{StatusCode: statusCode},
	}
	if wantHTML {
		result.HTML = html
	}

	if md, err := htmltomarkdown.ConvertString(html); err == nil {
		result.Content = strings.TrimSpace(md)
	} else {
		result.Content = collapseWhitespace(stripTags(html))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		result.Text = collapseWhitespace(stripTags(html))
		return result
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, footer").Remove()
	result.Text = collapseWhitespace(doc.Find("body").Text())
	return result
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

func stripTags(html string) string {
	return tagRe.ReplaceAllString(html, " ")
}

func collapseWhitespace(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = nlRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
