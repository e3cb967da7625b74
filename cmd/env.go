package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/discovery"
	"github.com/sells-group/company-intel/internal/extract"
	"github.com/sells-group/company-intel/internal/merge"
	"github.com/sells-group/company-intel/internal/pipeline"
	"github.com/sells-group/company-intel/internal/scraper"
	"github.com/sells-group/company-intel/internal/session"
	"github.com/sells-group/company-intel/pkg/firecrawl"
	"github.com/sells-group/company-intel/pkg/jina"
)

// env holds the wired pipeline dependencies for one command invocation.
type env struct {
	Store    session.Store
	Registry *scraper.Registry
	Pipeline *pipeline.Pipeline

	closers []func()
}

func (e *env) Close() {
	for _, fn := range e.closers {
		fn()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("closing store failed", zap.Error(err))
		}
	}
}

// initEnv builds the session store, plugin registry, extractor, and
// pipeline from configuration.
func initEnv(ctx context.Context) (*env, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "migrating store")
	}

	reg := scraper.NewRegistry()
	reg.Register(scraper.NewStaticScraper())

	var jinaClient jina.Client
	if cfg.Jina.Key != "" {
		jinaClient = jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	reg.Register(scraper.NewJinaScraper(jinaClient))

	var fcClient firecrawl.Client
	if cfg.Firecrawl.Key != "" {
		fcClient = firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	}
	reg.Register(scraper.NewFirecrawlScraper(fcClient))

	e := &env{Store: store, Registry: reg}

	browser := scraper.NewBrowserScraper(scraper.BrowserConfig{
		Enabled:    cfg.Browser.Enabled,
		RemoteURL:  cfg.Browser.RemoteURL,
		NavTimeout: time.Duration(cfg.Browser.NavTimeout) * time.Second,
		Limits: scraper.PaginationLimits{
			MaxScrolls:  cfg.Browser.MaxScrolls,
			MaxSubPages: cfg.Browser.MaxSubPages,
		},
	})
	reg.Register(browser)
	e.closers = append(e.closers, func() {
		if err := browser.Close(); err != nil {
			zap.L().Warn("closing browser failed", zap.Error(err))
		}
	})

	extractor, err := buildExtractor()
	if err != nil {
		e.Close()
		return nil, err
	}

	e.Pipeline = pipeline.New(reg, extractor, store, pipelineOptions())
	return e, nil
}

func openStore(ctx context.Context) (session.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return session.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "", "sqlite":
		return session.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildExtractor() (*extract.Extractor, error) {
	var taxonomy *extract.Taxonomy
	if cfg.Extract.TaxonomyPath != "" {
		t, err := extract.LoadTaxonomy(cfg.Extract.TaxonomyPath)
		if err != nil {
			return nil, eris.Wrap(err, "loading taxonomy")
		}
		taxonomy = t
	}
	return extract.New(taxonomy, extract.Config{
		MaxMatchesPerRule:  cfg.Extract.MaxMatchesPerRule,
		ContextWindowChars: cfg.Extract.ContextWindowChars,
	}), nil
}

func discoveryOptions() discovery.Options {
	return discovery.Options{
		MaxURLs:          cfg.Discovery.MaxURLs,
		SitemapThreshold: cfg.Discovery.SitemapThreshold,
		MaxDepth:         cfg.Discovery.MaxDepth,
		ExcludePatterns:  cfg.Scrape.ExcludePaths,
		ValidateURLs:     cfg.Discovery.ValidateURLs,
	}
}

func pipelineOptions() pipeline.Options {
	passes := 1
	if cfg.Scrape.MultiPass {
		passes = cfg.Scrape.PassesPerTarget
	}
	return pipeline.Options{
		Discovery:  discoveryOptions(),
		BatchSize:  cfg.Scrape.BatchSize,
		BatchDelay: time.Duration(cfg.Scrape.BatchDelayMS) * time.Millisecond,
		Merge: merge.Options{
			Strategy:        merge.Strategy(cfg.Merge.Strategy),
			Deduplicate:     cfg.Merge.Deduplicate,
			PreserveAllHTML: cfg.Merge.PreserveAllHTML,
		},
		Passes: passes,
	}
}
