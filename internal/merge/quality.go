package merge

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/company-intel/internal/model"
)

// buildSources records per-pass provenance: which fields each pass
// contributed and a heuristic confidence for the pass as a whole.
func buildSources(passes []model.ScrapingPass) []model.SourceRecord {
	sources := make([]model.SourceRecord, 0, len(passes))
	for _, p := range passes {
		sources = append(sources, model.SourceRecord{
			Scraper:    p.Scraper,
			Strategy:   p.Strategy,
			Timestamp:  p.Timestamp,
			DataPoints: dataPoints(p),
			Confidence: passConfidence(p),
		})
	}
	return sources
}

// dataPoints lists the fields a pass actually populated.
func dataPoints(p model.ScrapingPass) []string {
	var points []string
	if strings.TrimSpace(p.Result.Title) != "" {
		points = append(points, "title")
	}
	if p.Result.Metadata.StatusCode != 0 {
		points = append(points, "status_code")
	}
	keys := make([]string, 0, len(p.Result.StructuredData))
	for k := range p.Result.StructuredData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append(points, keys...)
}

// passConfidence scores a single pass. Starts at 0.5, rewarded for
// substantial content, structured data and fast responses, penalized for
// recorded errors, clamped to [0, 1].
func passConfidence(p model.ScrapingPass) float64 {
	c := 0.5
	if len(p.Result.Content) > 100 {
		c += 0.2
	}
	if len(p.Result.StructuredData) > 0 {
		c += 0.2
	}
	if len(p.Result.Errors) > 0 {
		c -= 0.3
	}
	if p.Duration > 0 && p.Duration < 1000 {
		c += 0.1
	}
	return clamp(c, 0, 1)
}

// computeQuality scores the merged record on a 0..100 scale from three
// components: completeness (share of passes that succeeded), consistency
// (pairwise word-set overlap between pass contents) and freshness (age of
// the newest pass). Weighted 0.4 / 0.3 / 0.3.
func computeQuality(passes []model.ScrapingPass) model.QualityMetrics {
	q := model.QualityMetrics{
		Completeness: completeness(passes),
		Consistency:  consistency(passes),
		Freshness:    freshness(passes, time.Now()),
	}
	q.Score = round1(q.Completeness*0.4 + q.Consistency*0.3 + q.Freshness*0.3)
	return q
}

func completeness(passes []model.ScrapingPass) float64 {
	if len(passes) == 0 {
		return 0
	}
	ok := 0
	for _, p := range passes {
		if p.Succeeded() {
			ok++
		}
	}
	return round1(float64(ok) / float64(len(passes)) * 100)
}

// consistency averages the Jaccard similarity of the word sets of every
// pair of non-empty pass contents. Fewer than two comparable contents
// means there is nothing to disagree about, which counts as fully
// consistent.
func consistency(passes []model.ScrapingPass) float64 {
	var sets []map[string]bool
	for _, p := range passes {
		if s := wordSet(p.Result.Content); len(s) > 0 {
			sets = append(sets, s)
		}
	}
	if len(sets) < 2 {
		return 100
	}

	var total, pairs float64
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return round1(total / pairs * 100)
}

func wordSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// freshness decays 2 points per hour since the newest pass. The result
// is clamped to [0,100]; a future timestamp from clock skew must not
// score above 100.
func freshness(passes []model.ScrapingPass, now time.Time) float64 {
	var latest time.Time
	for _, p := range passes {
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}
	if latest.IsZero() {
		return 0
	}
	hours := now.Sub(latest).Hours()
	return round1(clamp(100-hours*2, 0, 100))
}

// computeStatistics tallies pass outcomes and data-point uniqueness.
// A data point is identified per scraper and field; the same field seen
// from a second scraper counts as a duplicate observation.
func computeStatistics(passes []model.ScrapingPass, conflicts int) model.MergeStatistics {
	stats := model.MergeStatistics{
		TotalPasses:           len(passes),
		ConflictingDataPoints: conflicts,
	}

	seenField := make(map[string]bool)
	seenSource := make(map[string]bool)
	for _, p := range passes {
		if p.Succeeded() {
			stats.SuccessfulPasses++
		} else {
			stats.FailedPasses++
		}
		for _, field := range dataPoints(p) {
			id := p.Scraper + ":" + field
			if seenSource[id] {
				continue
			}
			seenSource[id] = true
			if seenField[field] {
				stats.DuplicateDataPoints++
			} else {
				seenField[field] = true
				stats.UniqueDataPoints++
			}
		}
	}
	return stats
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
