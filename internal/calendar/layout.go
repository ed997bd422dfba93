package calendar

import (
	"time"

	"calendarex/internal/query"
)

// WeekdayFromString maps a week_start setting to a weekday. Anything other
// than "sunday" means Monday.
func WeekdayFromString(s string) time.Weekday {
	if s == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Layout returns the month's day numbers arranged in weeks of seven,
// starting on firstWeekday. Days of adjacent months are 0.
//
//	[[0, 0, 0, 0, 1, 2, 3],
//	 [4, 5, 6, 7, 8, 9, 10],
//	 ...
//	 [25, 26, 27, 28, 29, 30, 0]]
func Layout(m query.Month, firstWeekday time.Weekday) [][]int {
	days := m.Days()
	offset := (int(m.First().Weekday()) - int(firstWeekday) + 7) % 7

	weeks := make([][]int, 0, 6)
	week := make([]int, 7)
	col := offset
	for d := 1; d <= days; d++ {
		week[col] = d
		col++
		if col == 7 {
			weeks = append(weeks, week)
			week = make([]int, 7)
			col = 0
		}
	}
	if col > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// WeekdayHeaders returns the weekday order of the grid columns.
func WeekdayHeaders(firstWeekday time.Weekday) []time.Weekday {
	out := make([]time.Weekday, 7)
	for i := range out {
		out[i] = time.Weekday((int(firstWeekday) + i) % 7)
	}
	return out
}
