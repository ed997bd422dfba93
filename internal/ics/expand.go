package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calendarex/internal/log"
)

const defaultMaxPerSeries = 2000

// Window bounds recurrence expansion.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxPerSeries caps the instances of one series. Zero means 2000.
	MaxPerSeries int
}

// WindowAround returns the window of months months before and after now.
func WindowAround(now time.Time, months int) Window {
	return Window{Start: now.AddDate(0, -months, 0), End: now.AddDate(0, months, 0)}
}

// Occurrence is one concrete instance of an event.
type Occurrence struct {
	UID        string
	Summary    string
	Categories []string
	Start      time.Time
	End        time.Time
	AllDay     bool
	// Recurring is true for instances of a series.
	Recurring bool
}

// Expand turns parsed events into occurrences overlapping w, in start
// order. RRULE series are expanded with EXDATE removed; RECURRENCE-ID
// overrides replace the matching instance and cancelled overrides drop it.
func Expand(events []Event, w Window) ([]Occurrence, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("expand: window ends before it starts")
	}
	if w.MaxPerSeries <= 0 {
		w.MaxPerSeries = defaultMaxPerSeries
	}

	overrides := make(map[string][]Event)
	var bases []Event
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []Occurrence
	for _, ev := range bases {
		if ev.Cancelled {
			continue
		}
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, w) {
				out = append(out, occurrence(ev, ev.Start, ev.End, false))
			}
			continue
		}
		out = append(out, expandSeries(ev, overrides[ev.UID], w)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

func expandSeries(ev Event, overrides []Event, w Window) []Occurrence {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("skipping series with invalid RRULE", "uid", ev.UID, "rrule", ev.RRule, "err", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Instances starting before the window may still overlap it.
	from := w.Start.Add(-dur).In(ev.Start.Location())
	starts := set.Between(from, w.End.In(ev.Start.Location()), true)
	if len(starts) > w.MaxPerSeries {
		appLog.Warn("series truncated", "uid", ev.UID, "cap", w.MaxPerSeries)
		starts = starts[:w.MaxPerSeries]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		if o, ok := findOverride(overrides, s); ok {
			if o.Cancelled {
				continue
			}
			out = append(out, occurrence(o, o.Start, o.End, true))
			continue
		}
		end := s.Add(dur)
		if ev.AllDay {
			// Whole days, unaffected by DST changes inside the series.
			end = s.AddDate(0, 0, int((dur+12*time.Hour)/(24*time.Hour)))
		}
		out = append(out, occurrence(ev, s, end, true))
	}
	return out
}

func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func occurrence(ev Event, start, end time.Time, recurring bool) Occurrence {
	return Occurrence{
		UID:        ev.UID,
		Summary:    ev.Summary,
		Categories: ev.Categories,
		Start:      start,
		End:        end,
		AllDay:     ev.AllDay,
		Recurring:  recurring,
	}
}

func overlaps(start, end time.Time, w Window) bool {
	return !end.Before(w.Start) && !start.After(w.End)
}
