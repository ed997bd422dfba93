package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixRangeCriteriaStartFromOtherMonth(t *testing.T) {
	m := NewMonth(2024, time.November, time.UTC)
	c := Criteria{
		"start": Range{Query: []any{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}, Range: RangeMin},
	}

	FixRangeCriteria(c, "start", m)

	rng, ok := AsRange(c["start"])
	require.True(t, ok)
	assert.Equal(t, RangeMinMax, rng.Range)
	require.Len(t, rng.Query, 1)
	assert.Equal(t, m.Last(), rng.Query[0])

	// Only events starting no later than the end of November match.
	assert.True(t, rng.Match(time.Date(2024, 11, 30, 12, 0, 0, 0, time.UTC)))
	assert.False(t, rng.Match(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFixRangeCriteriaEndKeepsInMonthBound(t *testing.T) {
	m := NewMonth(2024, time.November, time.UTC)
	mid := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)
	c := Criteria{
		"end": map[string]any{
			"query": []any{mid, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			"range": "max",
		},
	}

	FixRangeCriteria(c, "end", m)

	rng, ok := AsRange(c["end"])
	require.True(t, ok)
	assert.Equal(t, RangeMinMax, rng.Range)
	assert.Equal(t, []any{mid, m.First()}, rng.Query)

	lo, hi, hasLo, hasHi := rng.Bounds()
	assert.True(t, hasLo)
	assert.True(t, hasHi)
	assert.Equal(t, m.First(), lo)
	assert.Equal(t, mid, hi)
}

func TestFixRangeCriteriaParsesStrings(t *testing.T) {
	m := NewMonth(2024, time.November, time.UTC)
	c := Criteria{
		"start": Range{Query: []any{"2024/11/05 10:00:00", "not a date"}, Range: RangeMin},
	}

	FixRangeCriteria(c, "start", m)

	rng, _ := AsRange(c["start"])
	assert.Equal(t, []any{time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC), m.Last()}, rng.Query)
	assert.Equal(t, RangeMinMax, rng.Range)
}

func TestFixRangeCriteriaMaxStartStaysMax(t *testing.T) {
	m := NewMonth(2024, time.November, time.UTC)
	c := Criteria{"start": Range{Query: []any{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}, Range: RangeMax}}

	FixRangeCriteria(c, "start", m)

	rng, _ := AsRange(c["start"])
	assert.Equal(t, RangeMax, rng.Range)
	assert.Equal(t, []any{m.Last()}, rng.Query)
}

func TestFixRangeCriteriaMissingKey(t *testing.T) {
	c := Criteria{"path": "/site"}
	FixRangeCriteria(c, "start", NewMonth(2024, time.November, time.UTC))
	assert.NotContains(t, c, "start")
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	got, err := ParseDate("2024-11-29 23:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 29, 23, 0, 0, 0, loc), got)

	got, err = ParseDate("2024-11-29T23:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 11, 29, 23, 0, 0, 0, time.UTC)))

	_, err = ParseDate("", loc)
	assert.Error(t, err)
}
