package query

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MakeQuery encodes criteria as a URL query string using record-style
// names for multi-part values:
//
//	review_state:list=published&start.query:record:list:date=2024/11/30 23:59:59&start.range:record=max
//
// Keys are emitted in sorted order so the output is stable.
func MakeQuery(c Criteria) string {
	parts := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		parts = append(parts, encodeValue(k, c[k])...)
	}
	return strings.Join(parts, "&")
}

func encodeValue(key string, v any) []string {
	if rng, ok := AsRange(v); ok {
		out := make([]string, 0, len(rng.Query)+1)
		for _, q := range rng.Query {
			out = append(out, pair(key+".query:record:list"+typeSuffix(q), scalar(q)))
		}
		out = append(out, pair(key+".range:record", rng.Range))
		return out
	}
	switch t := v.(type) {
	case nil:
		return nil
	case []any, []string:
		list := StringOrTimeList(t)
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, pair(key+":list"+typeSuffix(e), scalar(e)))
		}
		return out
	default:
		return []string{pair(key+typeSuffix(v), scalar(v))}
	}
}

func typeSuffix(v any) string {
	switch v.(type) {
	case time.Time:
		return ":date"
	case int, int64:
		return ":int"
	case bool:
		return ":boolean"
	}
	return ""
}

func scalar(v any) string {
	if t, ok := v.(time.Time); ok {
		return formatDate(t)
	}
	return fmt.Sprint(v)
}

func pair(k, v string) string {
	return url.QueryEscape(k) + "=" + url.QueryEscape(v)
}
