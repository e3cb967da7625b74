package scraper

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

// Dispatch routes a URL through the registry's handlers in priority order,
// returning the first successful pass. Failures fall through to the next
// plugin; the last error is wrapped when every plugin fails.
func Dispatch(ctx context.Context, reg *Registry, url string, opts Options) (*model.ScrapingPass, error) {
	handlers := reg.HandlersFor(url)
	if len(handlers) == 0 {
		return nil, eris.Errorf("scraper: no enabled plugin can handle url: %s", url)
	}

	var lastErr error
	for _, s := range handlers {
		pass, err := s.Scrape(ctx, url, opts)
		if err == nil && pass != nil {
			return pass, nil
		}
		if err != nil {
			zap.L().Debug("scraper: plugin failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scraper: dispatch cancelled")
		}
	}
	return nil, eris.Wrap(lastErr, "scraper: all plugins failed")
}

// dispatchScraper adapts Dispatch to the Scraper interface so RunBatch can
// fan a URL set across the whole registry.
type dispatchScraper struct {
	reg *Registry
}

// ViaRegistry returns a Scraper that routes every URL through the registry.
func ViaRegistry(reg *Registry) Scraper {
	return &dispatchScraper{reg: reg}
}

func (d *dispatchScraper) Name() string               { return "registry" }
func (d *dispatchScraper) Priority() int              { return 1 }
func (d *dispatchScraper) Enabled() bool              { return true }
func (d *dispatchScraper) Capabilities() Capabilities { return Capabilities{MaxConcurrency: 5} }
func (d *dispatchScraper) Cost() Cost                 { return Cost{} }
func (d *dispatchScraper) Requirements() Requirements { return Requirements{} }
func (d *dispatchScraper) CanHandle(url string) bool  { return len(d.reg.HandlersFor(url)) > 0 }

func (d *dispatchScraper) Scrape(ctx context.Context, url string, opts Options) (*model.ScrapingPass, error) {
	return Dispatch(ctx, d.reg, url, opts)
}
