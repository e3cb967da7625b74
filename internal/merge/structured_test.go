package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/model"
)

func structuredPass(id string, ts time.Time, data map[string]any) model.ScrapingPass {
	return pass(id, "static", ts, model.ScrapeResult{
		URL:            "https://acme.com",
		StructuredData: data,
	})
}

func TestMergeStructured_ArraysUnioned(t *testing.T) {
	ts := time.Now()
	passes := []model.ScrapingPass{
		structuredPass("p1", ts, map[string]any{
			"products": []any{"Widget", "Gadget"},
		}),
		structuredPass("p2", ts.Add(time.Minute), map[string]any{
			"products": []any{"Gadget", "Gizmo"},
		}),
	}

	merged, err := Merge(passes, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []any{"Widget", "Gadget", "Gizmo"}, merged.StructuredData["products"])
	assert.Equal(t, 0, merged.Statistics.ConflictingDataPoints)
}

func TestMergeStructured_ObjectsShallowMerged(t *testing.T) {
	ts := time.Now()
	passes := []model.ScrapingPass{
		structuredPass("p1", ts, map[string]any{
			"contact": map[string]any{"email": "old@acme.com", "phone": "555-0100"},
		}),
		structuredPass("p2", ts.Add(time.Minute), map[string]any{
			"contact": map[string]any{"email": "new@acme.com"},
		}),
	}

	merged, err := Merge(passes, DefaultOptions())
	require.NoError(t, err)

	contact := merged.StructuredData["contact"].(map[string]any)
	assert.Equal(t, "new@acme.com", contact["email"])
	assert.Equal(t, "555-0100", contact["phone"])
}

func TestMergeStructured_ConflictStrategies(t *testing.T) {
	ts := time.Now()
	mkPasses := func() []model.ScrapingPass {
		return []model.ScrapingPass{
			structuredPass("p1", ts, map[string]any{"name": "Acme Corporation"}),
			structuredPass("p2", ts.Add(time.Minute), map[string]any{"name": "Acme"}),
		}
	}

	tests := []struct {
		strategy Strategy
		want     any
	}{
		{StrategyLatest, "Acme"},
		{StrategyHighestQuality, "Acme Corporation"},
		{StrategyManual, "Acme Corporation"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = tt.strategy
			merged, err := Merge(mkPasses(), opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, merged.StructuredData["name"])
			assert.Equal(t, 1, merged.Statistics.ConflictingDataPoints)
		})
	}

	t.Run("combine", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Strategy = StrategyCombine
		merged, err := Merge(mkPasses(), opts)
		require.NoError(t, err)
		combined := merged.StructuredData["name"].(string)
		assert.Contains(t, combined, "Acme Corporation")
		assert.Contains(t, combined, "Acme")
	})
}

func TestMergeStructured_CustomMerger(t *testing.T) {
	ts := time.Now()
	passes := []model.ScrapingPass{
		structuredPass("p1", ts, map[string]any{"name": "acme"}),
		structuredPass("p2", ts.Add(time.Minute), map[string]any{"name": "ACME"}),
	}

	opts := DefaultOptions()
	opts.CustomMergers = map[string]MergeFunc{
		"name": func(values []any) any {
			var parts []string
			for _, v := range values {
				parts = append(parts, v.(string))
			}
			return strings.Join(parts, "/")
		},
	}

	merged, err := Merge(passes, opts)
	require.NoError(t, err)
	assert.Equal(t, "acme/ACME", merged.StructuredData["name"])
}

func TestMergeStructured_AgreementIsNotConflict(t *testing.T) {
	ts := time.Now()
	passes := []model.ScrapingPass{
		structuredPass("p1", ts, map[string]any{"name": "Acme"}),
		structuredPass("p2", ts.Add(time.Minute), map[string]any{"name": "Acme"}),
	}

	merged, err := Merge(passes, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Acme", merged.StructuredData["name"])
	assert.Equal(t, 0, merged.Statistics.ConflictingDataPoints)
}

func TestMergeHTML_PreserveAll(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	passes := []model.ScrapingPass{
		pass("p1", "static", ts, model.ScrapeResult{
			URL:  "u",
			HTML: "<html><body><p>one</p></body></html>",
		}),
		pass("p2", "browser", ts.Add(time.Minute), model.ScrapeResult{
			URL:  "u",
			HTML: "<html><body><p>two</p></body></html>",
		}),
	}

	opts := DefaultOptions()
	opts.PreserveAllHTML = true
	merged, err := Merge(passes, opts)
	require.NoError(t, err)

	assert.Contains(t, merged.HTML, "<!-- source: static/scrape")
	assert.Contains(t, merged.HTML, "<!-- source: browser/scrape")
	assert.Contains(t, merged.HTML, "<p>one</p>")
	assert.Contains(t, merged.HTML, "<p>two</p>")
}

func TestMergeHTML_AppendsNewElements(t *testing.T) {
	ts := time.Now()
	passes := []model.ScrapingPass{
		pass("p1", "static", ts, model.ScrapeResult{
			URL:  "u",
			HTML: `<html><head><meta name="description" content="a"></head><body><div id="hero">Hero</div></body></html>`,
		}),
		pass("p2", "browser", ts.Add(time.Minute), model.ScrapeResult{
			URL:  "u",
			HTML: `<html><head><meta name="description" content="b"><meta property="og:title" content="Acme"></head><body><div id="hero">Hero</div><div id="lazy">Lazy loaded</div></body></html>`,
		}),
	}

	merged, err := Merge(passes, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(merged.HTML, `id="hero"`))
	assert.Contains(t, merged.HTML, "Lazy loaded")
	// The duplicate description meta is dropped, the new og:title kept.
	assert.Equal(t, 1, strings.Count(merged.HTML, `name="description"`))
	assert.Contains(t, merged.HTML, "og:title")
}

func TestFreshness_Decay(t *testing.T) {
	now := time.Now()
	p := pass("p1", "static", now.Add(-10*time.Hour), model.ScrapeResult{URL: "u"})

	f := freshness([]model.ScrapingPass{p}, now)
	assert.InDelta(t, 80.0, f, 0.1)

	stale := pass("p2", "static", now.Add(-80*time.Hour), model.ScrapeResult{URL: "u"})
	assert.Equal(t, 0.0, freshness([]model.ScrapingPass{stale}, now))
}

func TestFreshness_FutureTimestampCapped(t *testing.T) {
	now := time.Now()
	skewed := pass("p1", "static", now.Add(3*time.Hour), model.ScrapeResult{
		URL:     "u",
		Content: "Clock skew should not inflate the score.",
	})

	assert.Equal(t, 100.0, freshness([]model.ScrapingPass{skewed}, now))

	merged, err := Merge([]model.ScrapingPass{skewed}, DefaultOptions())
	require.NoError(t, err)
	assert.LessOrEqual(t, merged.Quality.Freshness, 100.0)
	assert.LessOrEqual(t, merged.Quality.Score, 100.0)
}

func TestPassConfidence(t *testing.T) {
	ts := time.Now()

	rich := pass("p1", "static", ts, model.ScrapeResult{
		URL:            "u",
		Content:        strings.Repeat("company intelligence ", 10),
		StructuredData: map[string]any{"name": "Acme"},
	})
	rich.Duration = 400
	// 0.5 + 0.2 content + 0.2 structured + 0.1 fast = 1.0
	assert.InDelta(t, 1.0, passConfidence(rich), 0.001)

	failed := pass("p2", "jina", ts, model.ScrapeResult{
		URL:    "u",
		Errors: []string{"blocked"},
	})
	failed.Duration = 2500
	// 0.5 - 0.3 errors = 0.2
	assert.InDelta(t, 0.2, passConfidence(failed), 0.001)
}
