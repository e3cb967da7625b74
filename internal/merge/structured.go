package merge

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/sells-group/company-intel/internal/model"
)

// mergeStructured fuses the structured-data maps across passes. A key seen
// for the first time is copied; on collision, arrays are unioned, objects
// are shallow-merged (later passes override per field), and primitives go
// through the conflict strategy. A custom per-key merger overrides all of
// that. Conflicting primitive resolutions are counted into conflicts.
func mergeStructured(passes []model.ScrapingPass, opts Options, conflicts *int) map[string]any {
	// Gather values per key in pass order so custom mergers and conflict
	// resolution see the full history. Keys within one pass are visited
	// in sorted order to keep output deterministic.
	valuesByKey := make(map[string][]any)
	var keyOrder []string
	for _, p := range passes {
		for _, key := range sortedKeys(p.Result.StructuredData) {
			if _, seen := valuesByKey[key]; !seen {
				keyOrder = append(keyOrder, key)
			}
			valuesByKey[key] = append(valuesByKey[key], p.Result.StructuredData[key])
		}
	}
	if len(keyOrder) == 0 {
		return nil
	}

	out := make(map[string]any, len(keyOrder))
	for _, key := range keyOrder {
		values := valuesByKey[key]

		if fn, ok := opts.CustomMergers[key]; ok {
			out[key] = fn(values)
			continue
		}

		switch values[0].(type) {
		case []any:
			out[key] = unionArrays(values)
		case map[string]any:
			out[key] = shallowMerge(values)
		default:
			resolved, conflicted := resolveConflict(values, opts.Strategy)
			if conflicted {
				*conflicts++
			}
			out[key] = resolved
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// unionArrays concatenates array values, deduplicating elements by their
// canonical JSON encoding. Non-array members are folded in as single
// elements.
func unionArrays(values []any) []any {
	var (
		out  []any
		seen = make(map[string]bool)
	)
	add := func(el any) {
		key := canonical(el)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, el)
	}

	for _, v := range values {
		if arr, ok := v.([]any); ok {
			for _, el := range arr {
				add(el)
			}
			continue
		}
		add(v)
	}
	return out
}

// shallowMerge folds object values together field by field, later passes
// overriding earlier ones. Non-object members are ignored.
func shallowMerge(values []any) map[string]any {
	out := make(map[string]any)
	for _, v := range values {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for k, field := range obj {
			out[k] = field
		}
	}
	return out
}

// equalValue compares two values structurally.
func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return canonical(a) == canonical(b)
}

// canonical returns a comparable encoding of an arbitrary value.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return reflect.TypeOf(v).String()
	}
	return string(data)
}

// mergeMetadata sums durations, collects screenshots, takes the last
// non-zero status code, and copies through any extra key not already
// present.
func mergeMetadata(passes []model.ScrapingPass) model.ResultMetadata {
	out := model.ResultMetadata{}

	for _, p := range passes {
		out.DurationMS += p.Duration
		out.Screenshots = append(out.Screenshots, p.Result.Metadata.Screenshots...)

		if p.Result.Metadata.StatusCode != 0 {
			// Last non-zero code wins, not strictly the last pass: a
			// pass that never got a response has code 0 and carries no
			// signal to overwrite a real one with.
			out.StatusCode = p.Result.Metadata.StatusCode
		}

		for _, key := range sortedKeys(p.Result.Metadata.Extra) {
			if out.Extra == nil {
				out.Extra = make(map[string]any)
			}
			if _, exists := out.Extra[key]; !exists {
				out.Extra[key] = p.Result.Metadata.Extra[key]
			}
		}
	}
	return out
}
