// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BrowserConfig configures the headless-browser scraper.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	RemoteURL   string `yaml:"remote_url" mapstructure:"remote_url"`
	NavTimeout  int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	MaxScrolls  int    `yaml:"max_scrolls" mapstructure:"max_scrolls"`
	MaxSubPages int    `yaml:"max_sub_pages" mapstructure:"max_sub_pages"`
}

// ScrapeConfig configures batch scraping behavior.
type ScrapeConfig struct {
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelayMS    int      `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExcludePaths    []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	MultiPass       bool     `yaml:"multi_pass" mapstructure:"multi_pass"`
	PassesPerTarget int      `yaml:"passes_per_target" mapstructure:"passes_per_target"`
}

// DiscoveryConfig configures domain discovery.
type DiscoveryConfig struct {
	MaxURLs          int  `yaml:"max_urls" mapstructure:"max_urls"`
	MaxDepth         int  `yaml:"max_depth" mapstructure:"max_depth"`
	SitemapThreshold int  `yaml:"sitemap_threshold" mapstructure:"sitemap_threshold"`
	ValidateURLs     bool `yaml:"validate_urls" mapstructure:"validate_urls"`
}

// ExtractConfig configures category extraction.
type ExtractConfig struct {
	TaxonomyPath       string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	MaxMatchesPerRule  int    `yaml:"max_matches_per_rule" mapstructure:"max_matches_per_rule"`
	ContextWindowChars int    `yaml:"context_window_chars" mapstructure:"context_window_chars"`
}

// MergeConfig configures multi-pass merging.
type MergeConfig struct {
	Strategy        string `yaml:"strategy" mapstructure:"strategy"`
	Deduplicate     bool   `yaml:"deduplicate" mapstructure:"deduplicate"`
	PreserveAllHTML bool   `yaml:"preserve_all_html" mapstructure:"preserve_all_html"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPANYINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "company-intel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.nav_timeout_secs", 30)
	v.SetDefault("browser.max_scrolls", 10)
	v.SetDefault("browser.max_sub_pages", 5)
	v.SetDefault("scrape.batch_size", 5)
	v.SetDefault("scrape.batch_delay_ms", 1000)
	v.SetDefault("scrape.timeout_secs", 60)
	v.SetDefault("scrape.exclude_paths", []string{"/wp-admin/*", "/cart/*", "/login/*"})
	v.SetDefault("scrape.multi_pass", false)
	v.SetDefault("scrape.passes_per_target", 2)
	v.SetDefault("discovery.max_urls", 50)
	v.SetDefault("discovery.max_depth", 2)
	v.SetDefault("discovery.sitemap_threshold", 5)
	v.SetDefault("discovery.validate_urls", false)
	v.SetDefault("extract.max_matches_per_rule", 10)
	v.SetDefault("extract.context_window_chars", 200)
	v.SetDefault("merge.strategy", "highest_quality")
	v.SetDefault("merge.deduplicate", true)
	v.SetDefault("merge.preserve_all_html", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
