package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

// BrowserConfig configures the headless-browser plugin.
type BrowserConfig struct {
	// Enabled gates the plugin; a browser is an external requirement the
	// deployment must opt into.
	Enabled bool
	// RemoteURL is the WebSocket URL of an external Chrome. Empty = launch
	// a local headless Chrome.
	RemoteURL  string
	NavTimeout time.Duration
	Limits     PaginationLimits
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
}

// BrowserScraper renders pages in headless Chrome via rod. It is the
// highest-priority plugin when enabled: JS-rendered sites produce empty
// shells under static fetch, and pagination handlers need a live DOM.
type BrowserScraper struct {
	cfg      BrowserConfig
	handlers []PaginationHandler

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserScraper creates the plugin. Chrome is launched lazily on the
// first scrape, not at construction.
func NewBrowserScraper(cfg BrowserConfig) *BrowserScraper {
	cfg.defaults()
	return &BrowserScraper{
		cfg:      cfg,
		handlers: DefaultPaginationHandlers(),
	}
}

func (b *BrowserScraper) Name() string  { return "browser" }
func (b *BrowserScraper) Priority() int { return 70 }
func (b *BrowserScraper) Enabled() bool { return b.cfg.Enabled }

func (b *BrowserScraper) Capabilities() Capabilities {
	return Capabilities{JavaScript: true, Cookies: true, MaxConcurrency: 3, RateLimitPerMin: 30}
}

func (b *BrowserScraper) Cost() Cost {
	// Compute cost only; no per-page API charge.
	return Cost{SetupUSD: 0.01}
}

func (b *BrowserScraper) Requirements() Requirements {
	return Requirements{Browser: true}
}

func (b *BrowserScraper) CanHandle(url string) bool { return isWebURL(url) }

// Scrape renders a URL, drives any detected pagination mechanism, and
// returns the fully expanded DOM as a pass.
func (b *BrowserScraper) Scrape(ctx context.Context, targetURL string, opts Options) (*model.ScrapingPass, error) {
	if !b.cfg.Enabled {
		return nil, eris.New("browser: plugin disabled")
	}

	started := time.Now()

	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	defer func() { _ = page.Close() }()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(targetURL); err != nil {
		return nil, eris.Wrapf(err, "browser: navigate %s", targetURL)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		zap.L().Warn("browser: wait load timeout", zap.String("url", targetURL), zap.Error(err))
	}

	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return nil, eris.Wrap(err, "browser: read dom")
	}

	// Drive the first pagination mechanism that matches; a handler error
	// degrades to the content collected so far.
	extraDocs := b.paginate(ctx, page, html)

	expanded, err := page.Context(navCtx).HTML()
	if err != nil {
		expanded = html
	}

	result := buildResult(targetURL, expanded, 200, opts.WantHTML)
	for _, doc := range extraDocs {
		sub := buildResult(targetURL, doc, 200, false)
		if sub.Content != "" {
			result.Content += "\n\n" + sub.Content
		}
		if sub.Text != "" {
			result.Text += "\n" + sub.Text
		}
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = "browser"
	}
	return newPass(b.Name(), strategy, targetURL, started, result), nil
}

func (b *BrowserScraper) paginate(ctx context.Context, page *rod.Page, html string) []string {
	for _, h := range b.handlers {
		if !h.Detect(html) {
			continue
		}
		zap.L().Debug("browser: pagination detected", zap.String("kind", string(h.Kind())))
		docs, err := h.Drive(ctx, page, b.cfg.Limits)
		if err != nil {
			zap.L().Warn("browser: pagination aborted",
				zap.String("kind", string(h.Kind())),
				zap.Error(err),
			)
		}
		return docs
	}
	return nil
}

// connect returns the shared browser, launching Chrome on first use.
func (b *BrowserScraper) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "browser: launch chrome")
		}
		b.lnch = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, eris.Wrap(err, "browser: connect")
	}
	b.browser = browser
	return browser, nil
}

// Close shuts down the launched Chrome, if any.
func (b *BrowserScraper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return eris.Wrap(err, "browser: close")
		}
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}
