package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarex/internal/model"
	"calendarex/internal/query"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r := New()
	r.SetClock(fixedClock(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)))

	day := func(d, h int) time.Time { return time.Date(2024, 11, d, h, 0, 0, 0, time.UTC) }
	r.Put(model.Content{Path: "/site", ReviewState: "published"})
	r.Put(model.Content{Path: "/site/folder1", ReviewState: "published"})
	r.Put(model.Content{Path: "/site/folder2", ReviewState: "published"})
	r.Put(model.Content{Path: "/site/e1", PortalType: model.TypeEvent, Title: "Root", Subject: []string{"Meeting"}, ReviewState: "published", Start: day(3, 23), End: day(3, 23)})
	r.Put(model.Content{Path: "/site/folder1/e2", PortalType: model.TypeEvent, Title: "One", Subject: []string{"Meeting"}, ReviewState: "published", Start: day(2, 23), End: day(2, 23)})
	r.Put(model.Content{Path: "/site/folder2/e3", PortalType: model.TypeEvent, Title: "Two", Subject: []string{"Party", "OpenBar"}, ReviewState: "private", Start: day(1, 23), End: day(1, 23)})
	return r
}

func titles(recs []model.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}

func TestSearchPath(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	recs, err := r.Search(ctx, query.Criteria{"path": "/site", "portal_type": []any{"Event"}, "sort_on": "start"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Two", "One", "Root"}, titles(recs))

	recs, err = r.Search(ctx, query.Criteria{"path": "/site/folder1", "portal_type": []any{"Event"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, titles(recs))
}

func TestSearchPathDoesNotMatchSiblingPrefix(t *testing.T) {
	r := newTestRepo(t)
	r.Put(model.Content{Path: "/site/folder10/e9", PortalType: model.TypeEvent, Title: "Nine", Start: time.Now(), End: time.Now()})

	recs, err := r.Search(context.Background(), query.Criteria{"path": "/site/folder1", "portal_type": []any{"Event"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, titles(recs))
}

func TestSearchKeywordsAndStates(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	recs, err := r.Search(ctx, query.Criteria{"Subject": []any{"Meeting"}, "sort_on": "start"})
	require.NoError(t, err)
	assert.Equal(t, []string{"One", "Root"}, titles(recs))

	recs, err = r.Search(ctx, query.Criteria{"portal_type": []any{"Event"}, "review_state": []any{"private"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Two"}, titles(recs))
}

func TestSearchDateRange(t *testing.T) {
	r := newTestRepo(t)
	c := query.Criteria{
		"start":   query.Range{Query: []any{time.Date(2024, 11, 2, 23, 0, 0, 0, time.UTC)}, Range: query.RangeMax},
		"sort_on": "start",
	}
	recs, err := r.Search(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"Two", "One"}, titles(recs))
}

func TestSearchExactDateString(t *testing.T) {
	r := newTestRepo(t)
	recs, err := r.Search(context.Background(), query.Criteria{"start": "2024-11-02 23:00"})
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, titles(recs))
}

func TestSearchReverseSort(t *testing.T) {
	r := newTestRepo(t)
	recs, err := r.Search(context.Background(), query.Criteria{"portal_type": "Event", "sort_on": "start", "sort_order": "reverse"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "One", "Two"}, titles(recs))
}

func TestSearchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Search(ctx, query.Criteria{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutCreatesParentsAndStableRID(t *testing.T) {
	r := New()
	r.Put(model.Content{Path: "/a/b/c", PortalType: model.TypeEvent, Start: time.Now(), End: time.Now()})

	parent, err := r.Get("/a/b")
	require.NoError(t, err)
	assert.Equal(t, model.TypeFolder, parent.PortalType)

	first, err := r.Search(context.Background(), query.Criteria{"path": "/a/b/c"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	r.Put(model.Content{Path: "/a/b/c", PortalType: model.TypeEvent, Title: "renamed", Start: time.Now(), End: time.Now()})
	second, err := r.Search(context.Background(), query.Criteria{"path": "/a/b/c"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].RID, second[0].RID)
	assert.NotEmpty(t, first[0].ID)
}

func TestGetNotFound(t *testing.T) {
	_, err := New().Get("/nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUniqueValuesFor(t *testing.T) {
	r := newTestRepo(t)
	assert.Equal(t, []string{"private", "published"}, r.UniqueValuesFor("review_state"))
	assert.Equal(t, []string{"Meeting", "OpenBar", "Party"}, r.UniqueValuesFor("Subject"))
}

func TestLoadSavedQuery(t *testing.T) {
	r := New()
	r.Put(model.Content{Path: "/site/topic", PortalType: model.TypeTopic, Criteria: []map[string]any{
		{"type": "ATPortalTypeCriterion", "field": "portal_type", "value": []any{"Event"}},
	}})
	r.Put(model.Content{Path: "/site/coll", PortalType: model.TypeCollection, Criteria: []map[string]any{
		{"i": "portal_type", "o": "plone.app.querystring.operation.selection.is", "v": []any{"Event"}},
		{"i": "sort_on", "v": "start"},
	}})
	r.Put(model.Content{Path: "/site/folder"})
	ctx := context.Background()

	sq, err := r.LoadSavedQuery(ctx, "/site/topic")
	require.NoError(t, err)
	assert.IsType(t, query.LegacyQuery{}, sq)

	sq, err = r.LoadSavedQuery(ctx, "/site/coll")
	require.NoError(t, err)
	coll, ok := sq.(query.StructuredQuery)
	require.True(t, ok)
	assert.Equal(t, "start", coll.SortOn)
	assert.Len(t, coll.Rows, 1)

	_, err = r.LoadSavedQuery(ctx, "/site/folder")
	assert.ErrorIs(t, err, ErrNotSavedQuery)

	_, err = r.LoadSavedQuery(ctx, "/site/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceFolderKeepsUnchangedModified(t *testing.T) {
	r := New()
	t0 := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	r.SetClock(fixedClock(t0))

	ev := model.Content{Path: "/site/feed/a", PortalType: model.TypeEvent, Title: "A", Start: t0, End: t0.Add(time.Hour)}
	assert.True(t, r.ReplaceFolder("/site/feed", []model.Content{ev}))

	r.SetClock(fixedClock(t0.Add(24 * time.Hour)))
	assert.False(t, r.ReplaceFolder("/site/feed", []model.Content{ev}))

	got, err := r.Get("/site/feed/a")
	require.NoError(t, err)
	assert.Equal(t, t0, got.Modified)

	ev.Title = "A2"
	b := model.Content{Path: "/site/feed/b", PortalType: model.TypeEvent, Title: "B", Start: t0, End: t0}
	assert.True(t, r.ReplaceFolder("/site/feed", []model.Content{ev, b}))
	got, err = r.Get("/site/feed/a")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(24*time.Hour), got.Modified)

	assert.True(t, r.ReplaceFolder("/site/feed", []model.Content{b}))
	_, err = r.Get("/site/feed/a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadSeedData(t *testing.T) {
	r := New()
	n, err := r.LoadSeedData([]byte(`
content:
  - path: /site/events/e1
    type: Event
    title: Kickoff
    subject: [Meeting]
    review_state: published
    start: 2024-11-29T23:00:00Z
    end: 2024-11-29T23:30:00Z
  - path: /site/coll
    type: Collection
    query:
      - {i: portal_type, o: plone.app.querystring.operation.selection.is, v: [Event]}
    sort_on: start
`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e1, err := r.Get("/site/events/e1")
	require.NoError(t, err)
	assert.Equal(t, "Kickoff", e1.Title)
	assert.True(t, e1.Start.Equal(time.Date(2024, 11, 29, 23, 0, 0, 0, time.UTC)))

	sq, err := r.LoadSavedQuery(context.Background(), "/site/coll")
	require.NoError(t, err)
	assert.Equal(t, "start", sq.(query.StructuredQuery).SortOn)
}

func TestLoadSeedMissingPath(t *testing.T) {
	_, err := New().LoadSeedData([]byte("content:\n  - type: Event\n"))
	assert.Error(t, err)
}
