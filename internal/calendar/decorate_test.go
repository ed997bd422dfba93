package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarex/internal/model"
)

func TestEventString(t *testing.T) {
	cases := []struct {
		name string
		f    model.Fragment
		want string
	}{
		{"both", model.Fragment{Start: str("10:00:00"), End: str("11:30:00"), Title: "Standup"}, "10:00-11:30 Standup"},
		{"start only", model.Fragment{Start: str("10:00:00"), Title: "Trip"}, "10:00 - Trip"},
		{"end only", model.Fragment{End: str("18:15:00"), Title: "Trip"}, "- 18:15 Trip"},
		{"continuation", model.Fragment{Title: "Trip"}, "Trip"},
		{"no title", model.Fragment{}, "event"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EventString(tc.f))
		})
	}
}

func TestDecorate(t *testing.T) {
	records := []model.Record{
		rec(1, "Standup", at(11, 12, 10, 0), at(11, 12, 10, 15)),
		rec(2, "Trip", at(11, 12, 18, 0), at(11, 13, 9, 0)),
	}
	grid := BuildGrid(Aggregate(records, nov2024), nov2024, time.Monday)

	Decorate(grid, nov2024, at(11, 13, 8, 0), "")

	var day12, day13, day14 model.Day
	for _, d := range grid.Days() {
		switch d.Day {
		case 12:
			day12 = d
		case 13:
			day13 = d
		case 14:
			day14 = d
		}
	}

	assert.Equal(t, "Nov 12, 2024\n 10:00-10:15 Standup\n 18:00 - Trip", day12.EventString)
	assert.Equal(t, "2024-11-12", day12.DateString)
	assert.False(t, day12.IsToday)

	assert.True(t, day13.IsToday)
	assert.Equal(t, "Nov 13, 2024\n - 09:00 Trip", day13.EventString)

	assert.False(t, day14.IsToday)
	assert.Empty(t, day14.EventString)
	assert.Empty(t, day14.DateString)
}

func TestDecorateSkipsPaddingAndOtherMonths(t *testing.T) {
	grid := EmptyGrid(nov2024, time.Monday)
	Decorate(grid, nov2024, time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC), "2006-01-02")

	require.NotEmpty(t, grid)
	for _, w := range grid {
		for _, d := range w {
			assert.False(t, d.IsToday)
		}
	}
}

func TestWeekdayHeaders(t *testing.T) {
	assert.Equal(t, time.Monday, WeekdayHeaders(time.Monday)[0])
	assert.Equal(t, time.Sunday, WeekdayHeaders(time.Monday)[6])
	assert.Equal(t, time.Saturday, WeekdayHeaders(time.Sunday)[6])
	assert.Equal(t, time.Sunday, WeekdayFromString("sunday"))
	assert.Equal(t, time.Monday, WeekdayFromString("bogus"))
}
