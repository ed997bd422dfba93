package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	appLog "calendarex/internal/log"
)

// ErrUnsupportedSavedQuery is returned by accessors that only understand
// one saved-search variant.
var ErrUnsupportedSavedQuery = errors.New("unsupported saved query")

// SavedQuery is a stored, reusable query definition. It is either a
// LegacyQuery (topic) or a StructuredQuery (collection).
type SavedQuery interface {
	// Kind returns the content type of the saved search.
	Kind() string
	// Criteria decodes the stored definition into search criteria.
	Criteria(m Month, now time.Time) Criteria
}

// SavedQueryLoader resolves a path to a saved search.
type SavedQueryLoader interface {
	LoadSavedQuery(ctx context.Context, ref string) (SavedQuery, error)
}

// LegacyQuery is a topic: a list of criterion objects, each filtering one
// field.
//
//	{type: ATPortalTypeCriterion, field: portal_type, value: [Event]}
//	{type: ATListCriterion, field: review_state, value: [private]}
//	{type: ATDateRangeCriterion, field: start, start: 2024-11-01, end: 2024-11-30}
//	{type: ATFriendlyDateCriteria, field: start, value: 7, operation: less, dateRange: "+"}
//	{type: ATSortCriterion, field: start}
type LegacyQuery struct {
	Path      string
	Criterion []map[string]any
}

func (LegacyQuery) Kind() string { return "Topic" }

// Criteria implements SavedQuery.
func (q LegacyQuery) Criteria(_ Month, now time.Time) Criteria {
	return q.BuildQuery(now)
}

// BuildQuery turns the criterion objects into search criteria. Unknown
// criterion types are skipped.
func (q LegacyQuery) BuildQuery(now time.Time) Criteria {
	c := Criteria{}
	for _, crit := range q.Criterion {
		typ, _ := crit["type"].(string)
		field, _ := crit["field"].(string)
		if field == "" && typ != "ATSortCriterion" {
			continue
		}
		switch typ {
		case "ATPortalTypeCriterion", "ATSelectionCriterion", "ATListCriterion":
			c[field] = StringOrTimeList(listValue(crit["value"]))
		case "ATSimpleStringCriterion", "ATBooleanCriterion":
			c[field] = crit["value"]
		case "ATPathCriterion":
			c["path"] = StringOrTimeList(listValue(crit["value"]))
		case "ATDateRangeCriterion":
			c[field] = Range{Query: []any{crit["start"], crit["end"]}, Range: RangeMinMax}
		case "ATFriendlyDateCriteria":
			if r, ok := friendlyDate(crit, now); ok {
				c[field] = r
			}
		case "ATSortCriterion":
			if field != "" {
				c["sort_on"] = field
			}
			if rev, _ := crit["reversed"].(bool); rev {
				c["sort_order"] = "reverse"
			}
		default:
			appLog.Warn("skipping unknown topic criterion", "type", typ, "field", field)
		}
	}
	return c
}

// friendlyDate handles "N days before/after now" criteria.
func friendlyDate(crit map[string]any, now time.Time) (Range, bool) {
	days, ok := intValue(crit["value"])
	if !ok {
		return Range{}, false
	}
	if dr, _ := crit["dateRange"].(string); dr == "-" {
		days = -days
	}
	date := now.AddDate(0, 0, days)
	op, _ := crit["operation"].(string)
	switch op {
	case "more":
		return Range{Query: []any{date}, Range: RangeMin}, true
	case "less":
		return Range{Query: []any{date}, Range: RangeMax}, true
	case "within_day":
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
		end := start.AddDate(0, 0, 1).Add(-time.Second)
		return Range{Query: []any{start, end}, Range: RangeMinMax}, true
	}
	return Range{}, false
}

// StructuredQuery is a collection: raw querystring rows with an index, an
// operation and a value. Date values stay textual until the range fixer
// parses them.
type StructuredQuery struct {
	Path   string
	Rows   []Row
	SortOn string
}

// Row is one stored collection filter.
type Row struct {
	Index     string `yaml:"i" json:"i"`
	Operation string `yaml:"o" json:"o"`
	Value     any    `yaml:"v" json:"v"`
}

func (StructuredQuery) Kind() string { return "Collection" }

// Criteria implements SavedQuery.
func (q StructuredQuery) Criteria(m Month, now time.Time) Criteria {
	return q.Parse(m.Loc, now)
}

// Parse turns the stored rows into search criteria.
func (q StructuredQuery) Parse(loc *time.Location, now time.Time) Criteria {
	if loc == nil {
		loc = time.Local
	}
	c := Criteria{}
	for _, row := range q.Rows {
		op := row.Operation
		if i := strings.LastIndex(op, "operation."); i >= 0 {
			op = op[i+len("operation."):]
		}
		switch op {
		case "selection.is", "selection.any", "list.contains":
			c[row.Index] = StringOrTimeList(listValue(row.Value))
		case "string.is", "boolean.isTrue", "boolean.isFalse":
			c[row.Index] = row.Value
		case "string.path", "string.absolutePath", "string.relativePath":
			c["path"] = row.Value
		case "date.lessThan":
			c[row.Index] = Range{Query: []any{row.Value}, Range: RangeMax}
		case "date.largerThan":
			c[row.Index] = Range{Query: []any{row.Value}, Range: RangeMin}
		case "date.between":
			c[row.Index] = Range{Query: StringOrTimeList(listValue(row.Value)), Range: RangeMinMax}
		case "date.today":
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			c[row.Index] = Range{Query: []any{formatDate(today), formatDate(today.AddDate(0, 0, 1).Add(-time.Second))}, Range: RangeMinMax}
		case "date.afterToday":
			c[row.Index] = Range{Query: []any{formatDate(now)}, Range: RangeMin}
		case "date.beforeToday":
			c[row.Index] = Range{Query: []any{formatDate(now)}, Range: RangeMax}
		case "date.largerThanRelativeDate":
			if days, ok := intValue(row.Value); ok {
				c[row.Index] = Range{Query: []any{formatDate(now.AddDate(0, 0, days))}, Range: RangeMin}
			}
		case "date.lessThanRelativeDate":
			if days, ok := intValue(row.Value); ok {
				c[row.Index] = Range{Query: []any{formatDate(now.AddDate(0, 0, days))}, Range: RangeMax}
			}
		default:
			appLog.Warn("skipping unknown collection operation", "index", row.Index, "operation", row.Operation)
		}
	}
	if q.SortOn != "" {
		c["sort_on"] = q.SortOn
	}
	return c
}

// formatDate renders a date the way collections store them.
func formatDate(t time.Time) string {
	return t.Format("2006/01/02 15:04:05")
}

func listValue(v any) any {
	if v == nil {
		return []any{}
	}
	if s, ok := v.(string); ok {
		return []any{s}
	}
	return untupleValue(v)
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// LegacyQueryString encodes a topic's query as a URL query string. Only
// topics support this; any other saved search is an error.
func LegacyQueryString(sq SavedQuery, now time.Time) (string, error) {
	lq, ok := sq.(LegacyQuery)
	if !ok {
		if p, isPtr := sq.(*LegacyQuery); isPtr && p != nil {
			lq, ok = *p, true
		}
	}
	if !ok {
		kind := "<nil>"
		if sq != nil {
			kind = sq.Kind()
		}
		return "", fmt.Errorf("%w: no support for %s yet", ErrUnsupportedSavedQuery, kind)
	}
	return MakeQuery(lq.BuildQuery(now)), nil
}
