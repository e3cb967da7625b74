// Package model defines the core data types shared across the
// company-intel pipeline: scraping passes, merged records, extracted
// intelligence, discovery results, and sessions.
package model

import "time"

// ScrapeResult is the raw output of one scraper run against one URL.
type ScrapeResult struct {
	URL            string         `json:"url"`
	Title          string         `json:"title,omitempty"`
	Content        string         `json:"content,omitempty"`
	HTML           string         `json:"html,omitempty"`
	Text           string         `json:"text,omitempty"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Metadata       ResultMetadata `json:"metadata"`
	Errors         []string       `json:"errors,omitempty"`
}

// ResultMetadata carries transport-level facts about a scrape.
type ResultMetadata struct {
	StatusCode  int            `json:"status_code,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Screenshots []string       `json:"screenshots,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ScrapingPass records one execution of one scraper against one URL.
// Immutable once recorded.
type ScrapingPass struct {
	ID        string       `json:"id"`
	Scraper   string       `json:"scraper"`
	Strategy  string       `json:"strategy"`
	Timestamp time.Time    `json:"timestamp"`
	URL       string       `json:"url"`
	Duration  int64        `json:"duration_ms"`
	Result    ScrapeResult `json:"result"`
}

// Succeeded reports whether the pass produced usable data.
func (p ScrapingPass) Succeeded() bool {
	return len(p.Result.Errors) == 0
}

// SourceRecord is the provenance entry for one pass inside a merged record.
type SourceRecord struct {
	Scraper    string    `json:"scraper"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp"`
	DataPoints []string  `json:"data_points"`
	Confidence float64   `json:"confidence"`
}

// QualityMetrics scores a merged record. All values are 0–100.
type QualityMetrics struct {
	Score        float64 `json:"score"`
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Freshness    float64 `json:"freshness"`
}

// MergeStatistics counts passes and data points observed during a merge.
type MergeStatistics struct {
	TotalPasses           int `json:"total_passes"`
	SuccessfulPasses      int `json:"successful_passes"`
	FailedPasses          int `json:"failed_passes"`
	UniqueDataPoints      int `json:"unique_data_points"`
	DuplicateDataPoints   int `json:"duplicate_data_points"`
	ConflictingDataPoints int `json:"conflicting_data_points"`
}

// MergedScrapingData is the fused view of N passes for one URL.
// Never mutated after creation; re-merging produces a new instance.
type MergedScrapingData struct {
	URL            string          `json:"url"`
	Content        string          `json:"content,omitempty"`
	HTML           string          `json:"html,omitempty"`
	Text           string          `json:"text,omitempty"`
	Title          string          `json:"title,omitempty"`
	StructuredData map[string]any  `json:"structured_data,omitempty"`
	Metadata       ResultMetadata  `json:"metadata"`
	Sources        []SourceRecord  `json:"sources"`
	Quality        QualityMetrics  `json:"quality"`
	Statistics     MergeStatistics `json:"statistics"`
}
