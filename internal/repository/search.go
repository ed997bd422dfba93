package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	appLog "calendarex/internal/log"
	"calendarex/internal/model"
	"calendarex/internal/query"
)

// Search evaluates criteria against stored content and returns matching
// records. Supported indexes:
//
//	path          string or list; matches the path itself and everything below
//	portal_type   list; exact match
//	review_state  list; exact match
//	Subject       list; any keyword matches
//	start, end    query.Range, or an exact time.Time or date string
//	id, Title     string; exact match
//	sort_on       start | end | modified | Title | path
//	sort_order    "reverse" to invert sort_on
//
// Empty list filters do not constrain results. Unknown indexes are ignored.
func (r *Repository) Search(ctx context.Context, c query.Criteria) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matches := make([]*entry, 0)
	for _, e := range r.items {
		if matchAll(e.content, c) {
			matches = append(matches, e)
		}
	}
	r.mu.RUnlock()

	sortEntries(matches, c)

	out := make([]model.Record, 0, len(matches))
	for _, e := range matches {
		out = append(out, toRecord(e))
	}
	appLog.Debug("repository search", "criteria", query.MakeQuery(c), "results", len(out))
	return out, nil
}

func toRecord(e *entry) model.Record {
	c := e.content
	return model.Record{
		RID:         e.rid,
		Path:        c.Path,
		ID:          c.ID(),
		Title:       c.Title,
		PortalType:  c.PortalType,
		ReviewState: c.ReviewState,
		Subject:     append([]string(nil), c.Subject...),
		Modified:    c.Modified,
		Start:       c.Start,
		End:         c.End,
	}
}

func matchAll(c model.Content, crit query.Criteria) bool {
	for key, val := range crit {
		switch key {
		case "sort_on", "sort_order", "sort_limit":
			continue
		case "path":
			if !matchPath(c.Path, val) {
				return false
			}
		case "portal_type", "review_state", "Subject", "id", "Title":
			if !matchKeyword(indexValues(c, key), val) {
				return false
			}
		case "start":
			if !matchDate(c.Start, val) {
				return false
			}
		case "end":
			if !matchDate(c.End, val) {
				return false
			}
		default:
			appLog.Debug("ignoring unknown index", "index", key)
		}
	}
	return true
}

func indexValues(c model.Content, index string) []string {
	switch index {
	case "portal_type":
		return []string{c.PortalType}
	case "review_state":
		return []string{c.ReviewState}
	case "Subject":
		return c.Subject
	case "id":
		return []string{c.ID()}
	case "Title":
		return []string{c.Title}
	}
	return nil
}

func matchPath(p string, val any) bool {
	roots := query.StringList(val)
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		if under(p, CleanPath(root)) {
			return true
		}
	}
	return false
}

func matchKeyword(have []string, val any) bool {
	want := query.StringList(val)
	if len(want) == 0 {
		return true
	}
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func matchDate(t time.Time, val any) bool {
	if t.IsZero() {
		return false
	}
	if rng, ok := query.AsRange(val); ok {
		return rng.Match(t)
	}
	switch v := val.(type) {
	case time.Time:
		return t.Equal(v)
	case string:
		exact, err := query.ParseDate(v, t.Location())
		if err != nil {
			appLog.Debug("ignoring unparseable date criterion", "value", v, "err", err)
			return true
		}
		return t.Equal(exact)
	}
	appLog.Debug("ignoring unsupported date criterion", "value", val)
	return true
}

func sortEntries(es []*entry, c query.Criteria) {
	on, _ := c["sort_on"].(string)
	reverse := c["sort_order"] == "reverse" || c["sort_order"] == "descending"

	less := func(a, b *entry) bool { return a.rid < b.rid }
	switch on {
	case "start":
		less = byTime(func(e *entry) time.Time { return e.content.Start })
	case "end":
		less = byTime(func(e *entry) time.Time { return e.content.End })
	case "modified":
		less = byTime(func(e *entry) time.Time { return e.content.Modified })
	case "Title", "sortable_title":
		less = func(a, b *entry) bool {
			ta, tb := strings.ToLower(a.content.Title), strings.ToLower(b.content.Title)
			if ta != tb {
				return ta < tb
			}
			return a.rid < b.rid
		}
	case "path":
		less = func(a, b *entry) bool { return a.content.Path < b.content.Path }
	}

	sort.SliceStable(es, func(i, j int) bool {
		if reverse {
			return less(es[j], es[i])
		}
		return less(es[i], es[j])
	})
}

func byTime(get func(*entry) time.Time) func(a, b *entry) bool {
	return func(a, b *entry) bool {
		ta, tb := get(a), get(b)
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.rid < b.rid
	}
}
