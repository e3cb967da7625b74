package merge

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/sells-group/company-intel/internal/model"
)

// mergeContent fuses the content field across passes. With deduplication
// enabled, content is split into paragraph blocks, each block is hashed,
// and only the first occurrence of each unique block is kept, in pass
// order. Otherwise the configured conflict strategy picks among the whole
// content strings.
func mergeContent(passes []model.ScrapingPass, opts Options) string {
	if opts.Deduplicate {
		var (
			blocks []string
			seen   = make(map[string]bool)
		)
		for _, p := range passes {
			for _, block := range splitBlocks(p.Result.Content) {
				h := contentHash(block)
				if seen[h] {
					continue
				}
				seen[h] = true
				blocks = append(blocks, block)
			}
		}
		return strings.Join(blocks, "\n\n")
	}

	var values []any
	for _, p := range passes {
		if p.Result.Content != "" {
			values = append(values, p.Result.Content)
		}
	}
	if len(values) == 0 {
		return ""
	}
	resolved, _ := resolveConflict(values, opts.Strategy)
	s, _ := resolved.(string)
	return s
}

// splitBlocks cuts content into trimmed paragraph-level blocks.
func splitBlocks(content string) []string {
	var blocks []string
	for _, raw := range strings.Split(content, "\n\n") {
		b := strings.TrimSpace(raw)
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// contentHash fingerprints a block for dedup. Not a security boundary.
func contentHash(block string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(block))))
	return hex.EncodeToString(sum[:])
}

// mergeText takes the longest text as the base (presumed most complete)
// and appends any line from other passes not already present verbatim.
func mergeText(passes []model.ScrapingPass) string {
	base := ""
	for _, p := range passes {
		if len(p.Result.Text) > len(base) {
			base = p.Result.Text
		}
	}
	if base == "" {
		return ""
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(base, "\n") {
		present[line] = true
	}

	out := base
	for _, p := range passes {
		if p.Result.Text == base {
			continue
		}
		for _, line := range strings.Split(p.Result.Text, "\n") {
			if line == "" || present[line] {
				continue
			}
			present[line] = true
			out += "\n" + line
		}
	}
	return out
}

// mergeTitle picks the title occurring most often across passes; ties
// break toward the longer string, then lexicographically, so identical
// inputs always produce the same title.
func mergeTitle(passes []model.ScrapingPass) string {
	counts := make(map[string]int)
	for _, p := range passes {
		if t := strings.TrimSpace(p.Result.Title); t != "" {
			counts[t]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	titles := make([]string, 0, len(counts))
	for t := range counts {
		titles = append(titles, t)
	}
	sort.Slice(titles, func(i, j int) bool {
		a, b := titles[i], titles[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return titles[0]
}

// resolveConflict picks one value from candidates (in pass order) under
// the given strategy. The second return reports whether the values
// actually disagreed.
func resolveConflict(values []any, strategy Strategy) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	if len(values) == 1 {
		return values[0], false
	}

	conflicting := false
	for _, v := range values[1:] {
		if !equalValue(values[0], v) {
			conflicting = true
			break
		}
	}
	if !conflicting {
		return values[0], false
	}

	switch strategy {
	case StrategyLatest:
		return values[len(values)-1], true
	case StrategyCombine:
		return combineValues(values), true
	case StrategyManual:
		// Manual review keeps the earliest value untouched; the conflict
		// is surfaced through the statistics instead.
		return values[0], true
	default: // StrategyHighestQuality
		best := values[0]
		bestScore := sizeScore(values[0])
		for _, v := range values[1:] {
			if s := sizeScore(v); s > bestScore {
				best = v
				bestScore = s
			}
		}
		return best, true
	}
}

// sizeScore is the generic "more is better" heuristic: string length,
// array length ×10, object key count ×5.
func sizeScore(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t) * 10
	case []string:
		return len(t) * 10
	case map[string]any:
		return len(t) * 5
	default:
		return 0
	}
}

// combineValues unions string values joined by blank lines; mixed or
// non-string values come back as the raw list.
func combineValues(values []any) any {
	var (
		parts []string
		seen  = make(map[string]bool)
	)
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return values
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
