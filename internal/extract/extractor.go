package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

const schemaConfidence = 0.9

// PagePayload is the raw material for one page. Content fields are tried
// in priority order: markdown, then text, then HTML. Schema carries
// structured fields pre-extracted upstream.
type PagePayload struct {
	Markdown string
	Text     string
	HTML     string
	Schema   map[string]any
}

// content returns the richest available body for keyword matching.
func (p PagePayload) content() string {
	if strings.TrimSpace(p.Markdown) != "" {
		return p.Markdown
	}
	if strings.TrimSpace(p.Text) != "" {
		return p.Text
	}
	return p.HTML
}

// Config bounds the cost of keyword extraction.
type Config struct {
	// MaxMatchesPerRule caps how many hits a single keyword pattern may
	// contribute per page.
	MaxMatchesPerRule int
	// ContextWindowChars is how much surrounding text to capture on each
	// side of a match. The collapsed window is capped at twice this.
	ContextWindowChars int
}

// DefaultConfig returns the standard extraction bounds.
func DefaultConfig() Config {
	return Config{
		MaxMatchesPerRule:  10,
		ContextWindowChars: 200,
	}
}

// Extractor categorizes page content against a taxonomy.
type Extractor struct {
	taxonomy *Taxonomy
	cfg      Config
	now      func() time.Time
}

// New builds an extractor. A nil taxonomy falls back to the default set.
func New(taxonomy *Taxonomy, cfg Config) *Extractor {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	if cfg.MaxMatchesPerRule <= 0 {
		cfg.MaxMatchesPerRule = DefaultConfig().MaxMatchesPerRule
	}
	if cfg.ContextWindowChars <= 0 {
		cfg.ContextWindowChars = DefaultConfig().ContextWindowChars
	}
	return &Extractor{taxonomy: taxonomy, cfg: cfg, now: time.Now}
}

// Extract runs categorization over every page and merges the findings
// into one ExtractedIntelligence per category. Categories with no items
// are omitted. Pages are visited in sorted URL order so output is
// deterministic.
func (e *Extractor) Extract(pages map[string]PagePayload) []model.ExtractedIntelligence {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	buckets := make(map[string]*model.ExtractedIntelligence)
	for _, u := range urls {
		for _, page := range e.extractPage(u, pages[u]) {
			e.mergeInto(buckets, page)
		}
	}

	out := make([]model.ExtractedIntelligence, 0, len(buckets))
	for _, c := range e.taxonomy.Categories {
		if b, ok := buckets[c.Name]; ok {
			out = append(out, *b)
		}
	}
	return out
}

// extractPage categorizes a single page. Returns one partial aggregate
// per category that produced at least one item.
func (e *Extractor) extractPage(url string, payload PagePayload) []model.ExtractedIntelligence {
	urlCategory := e.taxonomy.ClassifyURL(url)
	now := e.now()

	var out []model.ExtractedIntelligence
	for i := range e.taxonomy.Categories {
		c := &e.taxonomy.Categories[i]

		items := e.schemaItems(c, url, payload.Schema, now)
		matched, matchCount := e.keywordItems(c, url, payload.content(), now)
		items = append(items, matched...)
		if len(items) == 0 {
			// A URL match alone never manufactures items.
			continue
		}

		conf := batchConfidence(matchCount, urlCategory == c.Name)
		for j := range matched {
			matched[j].Confidence = conf
		}

		out = append(out, model.ExtractedIntelligence{
			Category:    c.Name,
			DisplayName: c.DisplayName,
			Items:       items,
			Confidence:  conf,
			Sources:     []string{url},
			Keywords:    c.Keywords,
			ExtractedAt: now,
		})
	}
	return out
}

// schemaItems maps pre-extracted structured fields into this category at
// fixed confidence, bypassing pattern matching for those fields.
func (e *Extractor) schemaItems(c *Category, url string, schema map[string]any, now time.Time) []model.IntelligenceItem {
	if len(schema) == 0 {
		return nil
	}

	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var items []model.IntelligenceItem
	for _, field := range fields {
		owner, ok := e.taxonomy.categoryForSchemaField(field)
		if !ok || owner.Name != c.Name {
			continue
		}
		items = append(items, model.IntelligenceItem{
			Type: model.ItemTypeSchemaExtracted,
			Content: map[string]any{
				"field": field,
				"value": schema[field],
			},
			SourceURL:   url,
			Confidence:  schemaConfidence,
			ExtractedAt: now,
		})
	}
	return items
}

// keywordItems matches the category's keyword patterns against the page
// content. Items are capped per pattern but the returned total counts
// every hit, since the confidence tiers reward raw match volume. A
// failure in one pattern is logged and the rest continue.
func (e *Extractor) keywordItems(c *Category, url, content string, now time.Time) ([]model.IntelligenceItem, int) {
	if strings.TrimSpace(content) == "" {
		return nil, 0
	}

	var (
		items []model.IntelligenceItem
		total int
	)
	for i, re := range c.keywordRes {
		keyword := c.Keywords[i]
		matches, err := matchPattern(re, content)
		if err != nil {
			zap.L().Warn("extract: pattern match failed",
				zap.String("category", c.Name),
				zap.String("keyword", keyword),
				zap.Error(err),
			)
			continue
		}
		total += len(matches)
		if len(matches) > e.cfg.MaxMatchesPerRule {
			matches = matches[:e.cfg.MaxMatchesPerRule]
		}

		for _, loc := range matches {
			items = append(items, model.IntelligenceItem{
				Type: model.ItemTypePatternMatch,
				Content: map[string]any{
					"match":   content[loc[0]:loc[1]],
					"context": e.contextWindow(content, loc[0], loc[1]),
				},
				SourceURL:   url,
				ExtractedAt: now,
				Metadata:    map[string]any{"keyword": keyword},
			})
		}
	}
	return items, total
}

// matchPattern runs one compiled pattern with panics contained so a
// pathological pattern cannot abort the page.
func matchPattern(re *regexp.Regexp, content string) (locs [][]int, err error) {
	defer func() {
		if r := recover(); r != nil {
			locs = nil
			err = eris.Errorf("pattern panicked: %v", r)
		}
	}()
	return re.FindAllStringIndex(content, -1), nil
}

// contextWindow captures the text surrounding a match, whitespace
// collapsed, capped at twice the configured window.
func (e *Extractor) contextWindow(content string, start, end int) string {
	w := e.cfg.ContextWindowChars
	lo := start - w
	if lo < 0 {
		lo = 0
	}
	hi := end + w
	if hi > len(content) {
		hi = len(content)
	}

	window := strings.Join(strings.Fields(content[lo:hi]), " ")
	if limit := 2 * w; len(window) > limit {
		window = strings.TrimSpace(window[:limit])
	}
	return window
}

// batchConfidence scores one category's match batch on one page.
func batchConfidence(matchCount int, urlMatches bool) float64 {
	conf := 0.5
	if urlMatches {
		conf += 0.2
	}
	switch {
	case matchCount > 10:
		conf += 0.2
	case matchCount > 5:
		conf += 0.1
	case matchCount > 2:
		conf += 0.05
	}
	return math.Min(conf, 0.95)
}

// mergeInto folds one page's partial aggregate into the per-category
// bucket: items appended, sources unioned, confidence recomputed from
// the item average plus a source-count bonus, status rederived.
func (e *Extractor) mergeInto(buckets map[string]*model.ExtractedIntelligence, page model.ExtractedIntelligence) {
	b, ok := buckets[page.Category]
	if !ok {
		b = &model.ExtractedIntelligence{
			Category:    page.Category,
			DisplayName: page.DisplayName,
			Keywords:    page.Keywords,
			ExtractedAt: page.ExtractedAt,
		}
		buckets[page.Category] = b
	}

	b.Items = append(b.Items, page.Items...)
	for _, src := range page.Sources {
		if !contains(b.Sources, src) {
			b.Sources = append(b.Sources, src)
		}
	}
	if page.ExtractedAt.After(b.ExtractedAt) {
		b.ExtractedAt = page.ExtractedAt
	}

	b.Confidence = aggregateConfidence(b.Items, len(b.Sources))
	b.Status = model.DeriveStatus(len(b.Items), b.Confidence)
}

// aggregateConfidence averages item confidences and adds a bonus of 0.05
// per contributing source, capped at +0.2, with the total capped at 1.0.
func aggregateConfidence(items []model.IntelligenceItem, sourceCount int) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence
	}
	avg := sum / float64(len(items))
	bonus := math.Min(0.05*float64(sourceCount), 0.2)
	return math.Min(avg+bonus, 1.0)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
