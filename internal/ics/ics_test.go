package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarex/internal/config"
	"calendarex/internal/repository"
)

var feed = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//calendarex//test//EN",
	"BEGIN:VEVENT",
	"UID:standup@example.com",
	"DTSTAMP:20241101T000000Z",
	"DTSTART:20241104T090000Z",
	"DTEND:20241104T091500Z",
	"SUMMARY:Standup",
	"CATEGORIES:Meeting,Team",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20241111T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup@example.com",
	"DTSTAMP:20241101T000000Z",
	"RECURRENCE-ID:20241118T090000Z",
	"DTSTART:20241118T100000Z",
	"DTEND:20241118T101500Z",
	"SUMMARY:Standup (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday@example.com",
	"DTSTAMP:20241101T000000Z",
	"DTSTART;VALUE=DATE:20241128",
	"DTEND;VALUE=DATE:20241129",
	"SUMMARY:Holiday",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:gone@example.com",
	"DTSTAMP:20241101T000000Z",
	"DTSTART:20241120T090000Z",
	"DTEND:20241120T100000Z",
	"STATUS:CANCELLED",
	"SUMMARY:Gone",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20241101T000000Z",
	"DTSTART:20241121T090000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

var now = time.Date(2024, 11, 15, 9, 30, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	events, err := Parse("team", []byte(feed), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 4)

	series := events[0]
	assert.Equal(t, "standup@example.com", series.UID)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", series.RRule)
	assert.Equal(t, []string{"Meeting", "Team"}, series.Categories)
	require.Len(t, series.ExDates, 1)
	assert.True(t, series.ExDates[0].Equal(time.Date(2024, 11, 11, 9, 0, 0, 0, time.UTC)))
	assert.Nil(t, series.RecurrenceID)

	override := events[1]
	require.NotNil(t, override.RecurrenceID)
	assert.True(t, override.RecurrenceID.Equal(time.Date(2024, 11, 18, 9, 0, 0, 0, time.UTC)))

	holiday := events[2]
	assert.True(t, holiday.AllDay)
	assert.True(t, holiday.Start.Equal(time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC)))
	assert.True(t, holiday.End.Equal(time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC)))

	assert.True(t, events[3].Cancelled)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("team", nil, time.UTC)
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	events, err := Parse("team", []byte(feed), time.UTC)
	require.NoError(t, err)

	occs, err := Expand(events, WindowAround(now, 1))
	require.NoError(t, err)

	var got []string
	for _, o := range occs {
		got = append(got, o.Start.Format("01-02 15:04")+" "+o.Summary)
	}
	assert.Equal(t, []string{
		"11-04 09:00 Standup",
		"11-18 10:00 Standup (moved)",
		"11-25 09:00 Standup",
		"11-28 00:00 Holiday",
	}, got)
	assert.True(t, occs[0].Recurring)
	assert.False(t, occs[3].Recurring)
}

func TestExpandWindowExcludes(t *testing.T) {
	events, err := Parse("team", []byte(feed), time.UTC)
	require.NoError(t, err)

	occs, err := Expand(events, Window{
		Start: time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 11, 26, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, 25, occs[0].Start.Day())

	_, err = Expand(events, Window{Start: now, End: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestContents(t *testing.T) {
	src := config.SourceConfig{ID: "team", Folder: "/site/team/", ReviewState: "published", Subject: []string{"Team"}}
	items := Contents(src, []Occurrence{
		{UID: "Standup@Example.com", Summary: "Standup", Categories: []string{"Meeting", "Team"}, Start: time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC), Recurring: true},
		{UID: "holiday@example.com", Summary: "Holiday"},
		{UID: "holiday@example.com", Summary: "Holiday again"},
	})

	require.Len(t, items, 2)
	assert.Equal(t, "/site/team/standup-example.com-20241104t090000", items[0].Path)
	assert.Equal(t, []string{"Team", "Meeting"}, items[0].Subject)
	assert.Equal(t, "published", items[0].ReviewState)
	assert.Equal(t, "/site/team/holiday-example.com", items[1].Path)
	assert.Equal(t, "Holiday", items[1].Title)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "abc-def.ghi", slug("ABC def.ghi"))
	assert.Equal(t, "event", slug("@@@"))
}

func TestFetchUsesConditionalRequests(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	first, err := f.Fetch(ctx, Feed{ID: "team", URL: srv.URL + "/team.ics"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, feed, string(first.Body))

	second, err := f.Fetch(ctx, Feed{ID: "team", URL: srv.URL + "/team.ics"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, feed, string(second.Body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestFetchFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()
	_, err := f.Fetch(ctx, Feed{ID: "team", URL: srv.URL})
	require.NoError(t, err)

	fail.Store(true)
	got, err := f.Fetch(ctx, Feed{ID: "team", URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, got.Cached)

	_, err = NewFetcher(t.TempDir()).Fetch(ctx, Feed{ID: "team", URL: srv.URL})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "(redacted)", redactURL("not a url"))
}

func TestImporterRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	repo := repository.New()
	im := NewImporter(NewFetcher(t.TempDir()), time.UTC, 1)
	im.SetClock(func() time.Time { return now })

	sources := []config.SourceConfig{
		{ID: "team", Type: config.SourceICS, URL: srv.URL, Folder: "/site/team", ReviewState: "published", Subject: []string{"Team"}},
		{ID: "broken", Type: config.SourceICS, URL: "http://127.0.0.1:0/unreachable.ics", Folder: "/site/broken"},
	}

	ctx := context.Background()
	results, err := im.Refresh(ctx, repo, sources)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 4, results[0].Events)
	assert.True(t, results[0].Changed)
	assert.NotEmpty(t, results[1].Error)

	holiday, err := repo.Get("/site/team/holiday-example.com")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", holiday.Title)
	assert.Equal(t, []string{"Team"}, holiday.Subject)

	again, err := im.RefreshOne(ctx, repo, sources[0])
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.False(t, again.Changed)
}
