package calendar

import (
	"context"
	"fmt"
	"time"

	appLog "calendarex/internal/log"
	"calendarex/internal/model"
	"calendarex/internal/query"
)

const timeLayout = "15:04:05"

// Searcher runs a catalog query against the content repository.
type Searcher interface {
	Search(ctx context.Context, c query.Criteria) ([]model.Record, error)
}

// Request describes one month-grid computation.
type Request struct {
	// Options are the resolved search options. They override the defaults
	// built from CalendarTypes, CalendarStates and the month bounds.
	Options query.Criteria
	// Exclude inverts the path filter: only items outside Options["path"].
	Exclude bool

	Month        query.Month
	FirstWeekday time.Weekday

	// CalendarTypes and CalendarStates are the site-wide defaults for
	// portal_type and review_state.
	CalendarTypes  []string
	CalendarStates []string
}

// QueryArgs builds the final catalog query: month-bound defaults overlaid
// with the request options.
func QueryArgs(req Request) query.Criteria {
	args := req.Month.DefaultCriteria()
	args["portal_type"] = toList(req.CalendarTypes)
	args["review_state"] = toList(req.CalendarStates)
	args["sort_on"] = "start"
	for k, v := range req.Options {
		args[k] = v
	}
	return args
}

// Search executes the query. With exclude set and a path criterion present
// it runs the query without the path and subtracts everything under the
// path, keeping the order of the first result set.
func Search(ctx context.Context, s Searcher, args query.Criteria, exclude bool) ([]model.Record, error) {
	p, hasPath := args["path"]
	if !exclude || !hasPath {
		recs, err := s.Search(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("search events: %w", err)
		}
		return recs, nil
	}

	rest, err := s.Search(ctx, args.Without("path"))
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	under, err := s.Search(ctx, query.Criteria{"path": p})
	if err != nil {
		return nil, fmt.Errorf("search excluded path: %w", err)
	}

	skip := make(map[int64]bool, len(under))
	for _, r := range under {
		skip[r.RID] = true
	}
	out := make([]model.Record, 0, len(rest))
	for _, r := range rest {
		if !skip[r.RID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Aggregate distributes records over the days of the month. The result has
// one entry per day; index 0 is day 1.
//
// Records are expected in start order. A record whose RID was already seen
// ends the aggregation: later records are not placed on the grid.
func Aggregate(records []model.Record, m query.Month) []model.Day {
	lastDay := m.Days()
	days := make([]model.Day, lastDay)
	for i := range days {
		days[i] = model.Day{Day: i + 1, Events: []model.Fragment{}}
	}
	add := func(day int, f model.Fragment) {
		days[day-1].Events = append(days[day-1].Events, f)
		days[day-1].HasEvent = true
	}

	seen := make(map[int64]bool, len(records))
	for _, rec := range records {
		if seen[rec.RID] {
			appLog.Debug("repeated result row, stopping aggregation", "rid", rec.RID, "path", rec.Path)
			break
		}
		seen[rec.RID] = true

		start := rec.Start.In(m.Location())
		end := rec.End.In(m.Location())
		title := rec.TitleOrID()

		var startTime, endTime *string
		endDay := lastDay
		if m.Contains(end) {
			endDay = end.Day()
			endTime = timeString(end)
		}
		startDay := 1
		if m.Contains(start) {
			startDay = start.Day()
			startTime = timeString(start)
		}

		if startDay > endDay {
			appLog.Warn("event ends before it starts within month, skipping", "path", rec.Path)
			continue
		}

		if startDay == endDay {
			add(startDay, model.Fragment{Start: startTime, End: endTime, Title: title})
			continue
		}

		add(startDay, model.Fragment{Start: startTime, Title: title})
		for d := startDay + 1; d < endDay; d++ {
			add(d, model.Fragment{Title: title})
		}

		if isMidnight(end) {
			// The event is over before endDay begins: close the fragment on
			// the previous day instead of adding an empty one.
			prev := &days[endDay-2]
			last := &prev.Events[len(prev.Events)-1]
			last.End = timeString(latestTime(end.AddDate(0, 0, -1)))
			continue
		}
		add(endDay, model.Fragment{End: endTime, Title: title})
	}
	return days
}

// BuildGrid reshapes the per-day slice into weeks.
func BuildGrid(days []model.Day, m query.Month, firstWeekday time.Weekday) model.Grid {
	layout := Layout(m, firstWeekday)
	grid := make(model.Grid, 0, len(layout))
	for _, w := range layout {
		week := make(model.Week, 0, 7)
		for _, d := range w {
			if d > 0 && d <= len(days) {
				week = append(week, days[d-1])
			} else {
				week = append(week, model.Day{Day: d, Events: []model.Fragment{}})
			}
		}
		grid = append(grid, week)
	}
	return grid
}

// EmptyGrid returns the month layout without events.
func EmptyGrid(m query.Month, firstWeekday time.Weekday) model.Grid {
	return BuildGrid(Aggregate(nil, m), m, firstWeekday)
}

// MonthGrid runs the query for req and returns the undecorated grid.
func MonthGrid(ctx context.Context, s Searcher, req Request) (model.Grid, []model.Record, error) {
	args := QueryArgs(req)
	recs, err := Search(ctx, s, args, req.Exclude)
	if err != nil {
		return nil, nil, err
	}
	days := Aggregate(recs, req.Month)
	return BuildGrid(days, req.Month, req.FirstWeekday), recs, nil
}

func timeString(t time.Time) *string {
	s := t.Format(timeLayout)
	return &s
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func latestTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func toList(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
