package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Criteria maps an index name (path, portal_type, review_state, Subject,
// start, end, sort_on, ...) to its filter value. Values are a string, a
// []any of strings, a time.Time or a Range.
type Criteria map[string]any

// Range kinds.
const (
	RangeMin    = "min"
	RangeMax    = "max"
	RangeMinMax = "minmax"
)

// Range is a bounded filter on a date index. With RangeMin the smallest
// value in Query is the lower bound, with RangeMax the largest value is the
// upper bound and RangeMinMax applies both.
type Range struct {
	Query []any  `json:"query" yaml:"query"`
	Range string `json:"range" yaml:"range"`
}

// Clone returns a deep copy of the criteria so callers can mutate freely.
func (c Criteria) Clone() Criteria {
	out := make(Criteria, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...)
	case []string:
		return append([]string(nil), t...)
	case Range:
		return Range{Query: append([]any(nil), t.Query...), Range: t.Range}
	case *Range:
		if t == nil {
			return t
		}
		return Range{Query: append([]any(nil), t.Query...), Range: t.Range}
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	default:
		return v
	}
}

// Without returns a copy of c with the given keys removed.
func (c Criteria) Without(keys ...string) Criteria {
	out := c.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the criteria keys in sorted order.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings returns a string-list view of a criterion value. A single
// string becomes a one-element list.
func (c Criteria) Strings(key string) []string {
	return StringList(c[key])
}

// Has reports whether key is set to a non-empty value.
func (c Criteria) Has(key string) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

// StringList converts a criterion value to []string.
func StringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	case map[string]any:
		// {"query": [...], "operator": "or"} as stored by some saved searches.
		return StringList(t["query"])
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, fmt.Sprint(rv.Index(i).Interface()))
		}
		return out
	}
	return []string{fmt.Sprint(v)}
}

// AsRange extracts a Range from a criterion value. Saved searches may store
// range criteria as plain maps with "query" and "range" keys.
func AsRange(v any) (Range, bool) {
	switch t := v.(type) {
	case Range:
		return t, true
	case *Range:
		if t == nil {
			return Range{}, false
		}
		return *t, true
	case map[string]any:
		rng, _ := t["range"].(string)
		if rng == "" {
			return Range{}, false
		}
		q := t["query"]
		var list []any
		switch qq := q.(type) {
		case []any:
			list = qq
		case nil:
		default:
			rv := reflect.ValueOf(qq)
			if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
				for i := 0; i < rv.Len(); i++ {
					list = append(list, rv.Index(i).Interface())
				}
			} else {
				list = []any{qq}
			}
		}
		return Range{Query: list, Range: rng}, true
	}
	return Range{}, false
}

// Times returns the time.Time values held in the range query.
func (r Range) Times() []time.Time {
	out := make([]time.Time, 0, len(r.Query))
	for _, v := range r.Query {
		if t, ok := v.(time.Time); ok {
			out = append(out, t)
		}
	}
	return out
}

// Bounds returns the effective lower and upper bounds.
func (r Range) Bounds() (lo, hi time.Time, hasLo, hasHi bool) {
	ts := r.Times()
	if len(ts) == 0 {
		return
	}
	minT, maxT := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
	}
	if strings.Contains(r.Range, RangeMin) {
		lo, hasLo = minT, true
	}
	if strings.Contains(r.Range, RangeMax) {
		hi, hasHi = maxT, true
	}
	return
}

// Match reports whether t satisfies the range. Bounds are inclusive.
func (r Range) Match(t time.Time) bool {
	lo, hi, hasLo, hasHi := r.Bounds()
	if hasLo && t.Before(lo) {
		return false
	}
	if hasHi && t.After(hi) {
		return false
	}
	return true
}

// Untuple normalizes every sequence-typed value in c (arrays, typed slices)
// to a []any list, recursing into nested maps and ranges. The repository
// expects list-typed multi-value fields.
func Untuple(c Criteria) {
	for k, v := range c {
		c[k] = untupleValue(v)
	}
}

func untupleValue(v any) any {
	switch t := v.(type) {
	case nil, string, time.Time, []any:
		return v
	case Range:
		t.Query = toList(t.Query)
		return t
	case *Range:
		if t == nil {
			return v
		}
		return Range{Query: toList(t.Query), Range: t.Range}
	case map[string]any:
		for k, vv := range t {
			t[k] = untupleValue(vv)
		}
		return t
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func toList(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
