package retrieval

import (
	"fmt"

	"seqrag/internal/domain"
)

// Normalize converts whatever a backend or prefetch produced into context
// items. Accepted shapes are ContextItem, *ContextItem, SearchResult, string,
// and mapping records keyed by page_content or text; slices of those are
// flattened. Anything else is dropped. Recognized items are kept even when
// their text is blank.
func Normalize(values ...any) []domain.ContextItem {
	var out []domain.ContextItem
	add := func(item domain.ContextItem, ok bool) {
		if ok {
			out = append(out, item)
		}
	}
	for _, v := range values {
		switch x := v.(type) {
		case []domain.ContextItem:
			for _, it := range x {
				add(it, true)
			}
		case []domain.SearchResult:
			for _, r := range x {
				add(fromSearchResult(r), true)
			}
		case []string:
			for _, s := range x {
				add(domain.ContextItem{Text: s}, true)
			}
		case []map[string]any:
			for _, m := range x {
				add(fromRecord(m))
			}
		case []any:
			out = append(out, Normalize(x...)...)
		default:
			add(normalizeOne(v))
		}
	}
	return out
}

func normalizeOne(v any) (domain.ContextItem, bool) {
	switch x := v.(type) {
	case domain.ContextItem:
		return x, true
	case *domain.ContextItem:
		if x == nil {
			return domain.ContextItem{}, false
		}
		return *x, true
	case domain.SearchResult:
		return fromSearchResult(x), true
	case string:
		return domain.ContextItem{Text: x}, true
	case map[string]any:
		return fromRecord(x)
	case map[string]string:
		rec := make(map[string]any, len(x))
		for k, s := range x {
			rec[k] = s
		}
		return fromRecord(rec)
	}
	return domain.ContextItem{}, false
}

func fromSearchResult(r domain.SearchResult) domain.ContextItem {
	return domain.ContextItem{Text: r.Chunk.Text, Metadata: r.Chunk.Metadata}
}

func fromRecord(m map[string]any) (domain.ContextItem, bool) {
	var text string
	found := false
	for _, key := range []string{"page_content", "text"} {
		if s, ok := m[key].(string); ok {
			text, found = s, true
			break
		}
	}
	if !found {
		return domain.ContextItem{}, false
	}
	meta := map[string]string{}
	switch md := m["metadata"].(type) {
	case map[string]string:
		for k, v := range md {
			meta[k] = v
		}
	case map[string]any:
		for k, v := range md {
			meta[k] = fmt.Sprint(v)
		}
	}
	// Remaining scalar fields (id, score) become metadata too.
	for k, raw := range m {
		switch k {
		case "page_content", "text", "metadata":
			continue
		}
		switch v := raw.(type) {
		case string, int, int64, float64, bool:
			if _, exists := meta[k]; !exists {
				meta[k] = fmt.Sprint(v)
			}
		}
	}
	if len(meta) == 0 {
		meta = nil
	}
	return domain.ContextItem{Text: text, Metadata: meta}, true
}
