package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calendarex/internal/log"
)

// Event is a VEVENT reduced to what the calendar needs. Recurrences are
// kept unexpanded; see Expand.
type Event struct {
	UID        string
	Seq        int
	Summary    string
	Categories []string
	Cancelled  bool

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on overrides of one instance of a series.
	RecurrenceID *time.Time
}

// Parse decodes an ICS payload. Floating and date-only values are read in
// loc. Events that cannot be decoded are logged and skipped.
func Parse(feedID string, body []byte, loc *time.Location) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics %s: %w", feedID, err)
	}

	events := make([]Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve, loc)
		if err != nil {
			appLog.Warn("skipping vevent", "id", feedID, "err", err)
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics parsed", "id", feedID, "events", len(events))
	return events, nil
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (Event, error) {
	var ev Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		ev.Seq, _ = strconv.Atoi(strings.TrimSpace(p.Value))
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ev.Categories = append(ev.Categories, c)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.Cancelled = strings.EqualFold(p.Value, "CANCELLED")
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.UID)
	}
	ev.AllDay = isDateValue(dtstart)

	start, err := propTime(dtstart, loc)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
	}
	ev.Start = start

	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		end, err := propTime(dtend, loc)
		if err != nil {
			return ev, fmt.Errorf("%s: DTEND: %w", ev.UID, err)
		}
		ev.End = end
	}
	if ev.End.IsZero() || ev.End.Before(ev.Start) {
		ev.End = ev.Start
		if ev.AllDay {
			ev.End = ev.Start.AddDate(0, 0, 1)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := tzid(p, loc)
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseTime(strings.TrimSpace(v), tz); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := propTime(p, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseTime(p.Value, tzid(p, loc))
}

// tzid returns the location named by the TZID parameter, or loc.
func tzid(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if vs := p.ICalParameters["TZID"]; len(vs) > 0 {
		if l, err := time.LoadLocation(vs[0]); err == nil {
			return l
		}
		appLog.Debug("unknown TZID", "tzid", vs[0])
	}
	return loc
}

// parseTime reads DATE and DATE-TIME values; a trailing Z means UTC.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
