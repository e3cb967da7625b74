// Package merge fuses multiple scraping passes of the same resource into
// one deduplicated, quality-scored, provenance-tracked record. Merging is
// a pure in-memory transform: no I/O, deterministic for a given pass list,
// and internal errors degrade the affected sub-merge instead of aborting
// the whole record.
package merge

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
)

// ErrNoPasses is returned when Merge is called with an empty pass list.
var ErrNoPasses = eris.New("merge: no passes to merge")

// Strategy selects how conflicting values are resolved when deduplication
// cannot decide.
type Strategy string

const (
	StrategyLatest         Strategy = "latest"
	StrategyHighestQuality Strategy = "highest_quality"
	StrategyCombine        Strategy = "combine"
	StrategyManual         Strategy = "manual"
)

// MergeFunc resolves one structured-data key from the values each pass
// contributed, in pass order.
type MergeFunc func(values []any) any

// Options configures a merge.
type Options struct {
	Strategy        Strategy
	Deduplicate     bool
	PreserveAllHTML bool
	// CustomMergers overrides the default structured-data resolution for
	// specific keys.
	CustomMergers map[string]MergeFunc
}

// DefaultOptions returns the standard merge configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:    StrategyHighestQuality,
		Deduplicate: true,
	}
}

// Merge fuses the passes into a single record. The input list must be
// non-empty; passes are sorted by timestamp (ties broken by ID) before
// merging so repeated invocations produce identical output.
func Merge(passes []model.ScrapingPass, opts Options) (*model.MergedScrapingData, error) {
	if len(passes) == 0 {
		return nil, ErrNoPasses
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyHighestQuality
	}

	sorted := make([]model.ScrapingPass, len(passes))
	copy(sorted, passes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var conflicts int
	structured := mergeStructured(sorted, opts, &conflicts)

	merged := &model.MergedScrapingData{
		URL:            sorted[0].URL,
		Content:        mergeContent(sorted, opts),
		HTML:           mergeHTML(sorted, opts),
		Text:           mergeText(sorted),
		Title:          mergeTitle(sorted),
		StructuredData: structured,
		Metadata:       mergeMetadata(sorted),
		Sources:        buildSources(sorted),
		Quality:        computeQuality(sorted),
	}
	merged.Statistics = computeStatistics(sorted, conflicts)

	return merged, nil
}
