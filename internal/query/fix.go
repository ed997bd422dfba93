package query

import (
	"errors"
	"strings"
	"time"

	appLog "calendarex/internal/log"
)

// dateLayouts are tried in order when a saved search stores a date as text.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// ParseDate parses a textual date in loc. Layouts carrying an offset keep
// it; the others are interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date value")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date value: " + s)
}

// FixRangeCriteria intersects a supplied start or end range criterion with
// the displayed month, so a saved search can never widen the calendar query
// beyond it:
//
//	start: {query: [...in-month values, m.Last()], range: max|minmax}
//	end:   {query: [...in-month values, m.First()], range: min|minmax}
//
// Out-of-month literal bounds are dropped. Unparseable values are dropped
// with a warning. Other keys are left untouched.
func FixRangeCriteria(c Criteria, index string, m Month) {
	raw, ok := c[index]
	if !ok {
		return
	}

	rng, ok := AsRange(raw)
	if !ok {
		// A bare value is an exact match; widen it to both bounds.
		rng = Range{Query: StringOrTimeList(raw), Range: RangeMinMax}
	}

	values := make([]any, 0, len(rng.Query)+1)
	for _, v := range rng.Query {
		var t time.Time
		switch tv := v.(type) {
		case time.Time:
			t = tv
		case string:
			parsed, err := ParseDate(tv, m.Loc)
			if err != nil {
				appLog.Warn("dropping unparseable range value", "index", index, "value", tv)
				continue
			}
			t = parsed
		default:
			appLog.Warn("dropping non-date range value", "index", index, "value", v)
			continue
		}
		if m.Contains(t) {
			values = append(values, t)
		}
	}

	switch index {
	case "start":
		values = append(values, m.Last())
		if rng.Range == RangeMin {
			rng.Range = RangeMinMax
		}
	case "end":
		values = append(values, m.First())
		if rng.Range == RangeMax {
			rng.Range = RangeMinMax
		}
	}

	rng.Query = values
	c[index] = rng
}

// StringOrTimeList wraps a scalar criterion value in a list.
func StringOrTimeList(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out
	case []time.Time:
		out := make([]any, 0, len(t))
		for _, tt := range t {
			out = append(out, tt)
		}
		return out
	default:
		return []any{v}
	}
}
