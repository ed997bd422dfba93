package query

import "time"

// Month is a displayed calendar month in a fixed location.
type Month struct {
	Year  int
	Month time.Month
	Loc   *time.Location
}

// NewMonth normalizes out-of-range months (13 → January of next year) and
// defaults the location to time.Local.
func NewMonth(year int, month time.Month, loc *time.Location) Month {
	if loc == nil {
		loc = time.Local
	}
	t := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Month{Year: t.Year(), Month: t.Month(), Loc: loc}
}

// MonthOf returns the month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return NewMonth(t.Year(), t.Month(), t.Location())
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, m.Location()).Day()
}

// First returns 00:00:00 of day 1.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, m.Location())
}

// Last returns 23:59:59 of the last day.
func (m Month) Last() time.Time {
	return time.Date(m.Year, m.Month, m.Days(), 23, 59, 59, 0, m.Location())
}

// Next returns the following month, wrapping December into January.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January, Loc: m.Loc}
	}
	return Month{Year: m.Year, Month: m.Month + 1, Loc: m.Loc}
}

// Prev returns the preceding month, wrapping January into December.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December, Loc: m.Loc}
	}
	return Month{Year: m.Year, Month: m.Month - 1, Loc: m.Loc}
}

// Contains reports whether t falls in this year and month, evaluated in
// the month's location.
func (m Month) Contains(t time.Time) bool {
	t = t.In(m.Location())
	return t.Year() == m.Year && t.Month() == m.Month
}

// Date returns midnight of the given day of the month.
func (m Month) Date(day int) time.Time {
	return time.Date(m.Year, m.Month, day, 0, 0, 0, 0, m.Location())
}

// DefaultCriteria returns the overlap constraint for the month: events that
// start no later than Last and end no earlier than First.
func (m Month) DefaultCriteria() Criteria {
	return Criteria{
		"start": Range{Query: []any{m.Last()}, Range: RangeMax},
		"end":   Range{Query: []any{m.First()}, Range: RangeMin},
	}
}

// Location returns the month's location, defaulting to time.Local.
func (m Month) Location() *time.Location {
	if m.Loc == nil {
		return time.Local
	}
	return m.Loc
}
