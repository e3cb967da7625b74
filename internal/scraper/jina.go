package scraper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/pkg/jina"
)

// circuitBreaker tracks consecutive failures to skip a flaky upstream.
type circuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openUntil   time.Time
	threshold   int           // consecutive failures to trip
	window      time.Duration // failures must occur within this window
	cooldown    time.Duration // how long the circuit stays open
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, window: window, cooldown: cooldown}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.openUntil)
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	if now.Sub(cb.lastFailure) > cb.window {
		cb.failures = 0
	}
	cb.failures++
	cb.lastFailure = now
	if cb.failures >= cb.threshold {
		cb.openUntil = now.Add(cb.cooldown)
		zap.L().Warn("scraper: jina circuit breaker opened",
			zap.Int("failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown),
		)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// JinaScraper wraps the Jina Reader API as a plugin. A circuit breaker
// (3 consecutive failures within 30s opens the circuit for 60s) makes the
// registry route around it while the upstream misbehaves.
type JinaScraper struct {
	client  jina.Client
	breaker *circuitBreaker
}

// NewJinaScraper creates the plugin. A nil client (no API key configured)
// produces a disabled plugin.
func NewJinaScraper(client jina.Client) *JinaScraper {
	return &JinaScraper{
		client:  client,
		breaker: newCircuitBreaker(3, 30*time.Second, 60*time.Second),
	}
}

func (j *JinaScraper) Name() string  { return "jina" }
func (j *JinaScraper) Priority() int { return 60 }

// Enabled reports false when the required API key was never configured or
// the circuit breaker is currently open.
func (j *JinaScraper) Enabled() bool {
	return j.client != nil && !j.breaker.isOpen()
}

func (j *JinaScraper) Capabilities() Capabilities {
	return Capabilities{JavaScript: true, Proxies: true, MaxConcurrency: 5, RateLimitPerMin: 60}
}

func (j *JinaScraper) Cost() Cost {
	return Cost{PerPageUSD: 0.002}
}

func (j *JinaScraper) Requirements() Requirements {
	return Requirements{APIKey: true}
}

func (j *JinaScraper) CanHandle(url string) bool { return isWebURL(url) }

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaScraper) Scrape(ctx context.Context, targetURL string, opts Options) (*model.ScrapingPass, error) {
	if j.client == nil {
		return nil, eris.New("jina: plugin disabled, no api key")
	}
	if j.breaker.isOpen() {
		return nil, eris.New("jina: circuit breaker open")
	}

	started := time.Now()
	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		j.breaker.recordFailure()
		return nil, err
	}

	if needsFallback(resp) {
		j.breaker.recordFailure()
		return nil, eris.New("jina: response needs fallback")
	}

	j.breaker.recordSuccess()
	strategy := opts.Strategy
	if strategy == "" {
		strategy = "hosted_api"
	}
	return newPass(j.Name(), strategy, targetURL, started, model.ScrapeResult{
		URL:     resp.Data.URL,
		Title:   resp.Data.Title,
		Content: resp.Data.Content,
		Metadata: model.ResultMetadata{
			StatusCode: resp.Code,
		},
	}), nil
}

// needsFallback checks whether a Jina response contains usable content or
// indicates the page is blocked/empty.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	// Short bodies carrying a challenge phrase are interstitials, not
	// pages. Long bodies may mention these phrases legitimately.
	if len(content) < 1000 && containsChallenge(strings.ToLower(content)) {
		return true
	}
	return false
}
