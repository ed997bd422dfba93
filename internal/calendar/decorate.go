package calendar

import (
	"fmt"
	"strings"
	"time"

	"calendarex/internal/model"
	"calendarex/internal/query"
)

// DefaultDateLayout is the header layout of a day's event summary.
const DefaultDateLayout = "Jan 2, 2006"

// Decorate fills IsToday for every day of the month and, for days with
// events, the multi-line EventString and the Y-M-D DateString. dateLayout
// is a time layout for the summary header.
func Decorate(grid model.Grid, m query.Month, now time.Time, dateLayout string) {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	now = now.In(m.Location())
	for wi := range grid {
		for di := range grid[wi] {
			day := &grid[wi][di]
			if day.Day == 0 {
				continue
			}
			day.IsToday = now.Year() == m.Year && now.Month() == m.Month && now.Day() == day.Day
			if !day.HasEvent {
				continue
			}
			lines := make([]string, 0, len(day.Events)+1)
			lines = append(lines, m.Date(day.Day).Format(dateLayout))
			for _, f := range day.Events {
				lines = append(lines, " "+EventString(f))
			}
			day.EventString = strings.Join(lines, "\n")
			day.DateString = fmt.Sprintf("%d-%d-%d", m.Year, int(m.Month), day.Day)
		}
	}
}

// EventString renders one fragment as a single summary line:
//
//	"10:00-11:30 Title"  start and end on this day
//	"10:00 - Title"      starts here, continues
//	"- 11:30 Title"      started earlier, ends here
//	"Title"              continuation
func EventString(f model.Fragment) string {
	title := f.Title
	if title == "" {
		title = "event"
	}
	start := shortTime(f.Start)
	end := shortTime(f.End)
	switch {
	case start != "" && end != "":
		return fmt.Sprintf("%s-%s %s", start, end, title)
	case start != "":
		return fmt.Sprintf("%s - %s", start, title)
	case end != "":
		return fmt.Sprintf("- %s %s", end, title)
	default:
		return title
	}
}

// shortTime trims "HH:MM:SS" to "HH:MM".
func shortTime(s *string) string {
	if s == nil || *s == "" {
		return ""
	}
	parts := strings.Split(*s, ":")
	if len(parts) < 2 {
		return *s
	}
	return parts[0] + ":" + parts[1]
}
