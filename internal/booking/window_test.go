package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func win(t *testing.T, start, end string) Window {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	require.NoError(t, err)
	return Window{Start: s, End: e}
}

func TestOverlapsSymmetry(t *testing.T) {
	cases := [][2]Window{
		{win(t, "2026-03-02T09:00:00Z", "2026-03-02T10:30:00Z"), win(t, "2026-03-02T10:00:00Z", "2026-03-02T11:00:00Z")},
		{win(t, "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z"), win(t, "2026-03-02T14:00:00Z", "2026-03-02T15:00:00Z")},
		{win(t, "2026-03-02T08:00:00Z", "2026-03-04T17:00:00Z"), win(t, "2026-03-03T09:00:00Z", "2026-03-03T12:00:00Z")},
	}
	for _, c := range cases {
		assert.Equal(t, c[0].Overlaps(c[1]), c[1].Overlaps(c[0]))
	}
}

func TestOverlapsSelf(t *testing.T) {
	w := win(t, "2026-03-02T09:00:00Z", "2026-03-02T11:00:00Z")
	assert.True(t, w.Overlaps(w))
}

func TestTouchingWindowsDoNotConflict(t *testing.T) {
	a := win(t, "2026-03-02T10:00:00Z", "2026-03-02T11:00:00Z")
	b := win(t, "2026-03-02T11:00:00Z", "2026-03-02T12:00:00Z")
	assert.False(t, a.Overlaps(b))
	assert.False(t, b.Overlaps(a))
}

func TestOverlapExample(t *testing.T) {
	a := win(t, "2026-03-02T09:00:00Z", "2026-03-02T10:30:00Z")
	b := win(t, "2026-03-02T10:00:00Z", "2026-03-02T11:00:00Z")
	assert.True(t, a.Overlaps(b))
}

func TestConflictsAny(t *testing.T) {
	cand := win(t, "2026-03-02T09:00:00Z", "2026-03-02T12:00:00Z")
	assert.False(t, ConflictsAny(cand, nil))
	assert.False(t, ConflictsAny(cand, []Window{
		win(t, "2026-03-02T12:00:00Z", "2026-03-02T13:00:00Z"),
		win(t, "2026-03-02T07:00:00Z", "2026-03-02T09:00:00Z"),
	}))
	assert.True(t, ConflictsAny(cand, []Window{
		win(t, "2026-03-02T12:00:00Z", "2026-03-02T13:00:00Z"),
		win(t, "2026-03-02T11:59:00Z", "2026-03-02T13:00:00Z"),
	}))
}

func TestValidateSameDayMinimum(t *testing.T) {
	// 30-minute same-day request is invalid regardless of pool state
	short := win(t, "2026-03-02T09:00:00Z", "2026-03-02T09:30:00Z")
	err := short.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	ok := win(t, "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z")
	assert.NoError(t, ok.Validate())
}

func TestValidateMultiDayExemptFromMinimum(t *testing.T) {
	// Crosses midnight with a short total span; the same-day rule does not apply
	w := win(t, "2026-03-02T23:45:00Z", "2026-03-03T00:15:00Z")
	assert.NoError(t, w.Validate())
}

func TestValidateEndBeforeStart(t *testing.T) {
	w := win(t, "2026-03-02T11:00:00Z", "2026-03-02T09:00:00Z")
	err := w.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	assert.Error(t, Window{}.Validate())
}

func TestSplitByDaySingleDay(t *testing.T) {
	w := win(t, "2026-03-02T09:00:00Z", "2026-03-02T15:00:00Z")
	days := w.SplitByDay()
	require.Len(t, days, 1)
	assert.Equal(t, w, days[0])
}

func TestSplitByDayMultiDay(t *testing.T) {
	w := win(t, "2026-03-02T13:00:00Z", "2026-03-05T11:00:00Z")
	days := w.SplitByDay()
	require.Len(t, days, 4)

	// First day keeps the actual start
	assert.Equal(t, w.Start, days[0].Start)
	assert.Equal(t, 17, days[0].End.Hour())

	// Interior days get the default hours
	for _, d := range days[1 : len(days)-1] {
		assert.Equal(t, 8, d.Start.Hour())
		assert.Equal(t, 17, d.End.Hour())
	}

	// Last day keeps the actual end
	assert.Equal(t, 8, days[len(days)-1].Start.Hour())
	assert.Equal(t, w.End, days[len(days)-1].End)
}

func TestSplitByDayOutsideDefaultHours(t *testing.T) {
	// Starts after the default close: first day runs to midnight
	w := win(t, "2026-03-02T23:30:00Z", "2026-03-03T11:00:00Z")
	days := w.SplitByDay()
	require.Len(t, days, 2)
	assert.Equal(t, w.Start, days[0].Start)
	assert.Equal(t, win(t, "2026-03-02T23:30:00Z", "2026-03-03T00:00:00Z").End, days[0].End)
	assert.True(t, days[0].End.After(days[0].Start))

	// Ends before the default open: last day starts at midnight
	w = win(t, "2026-03-02T13:00:00Z", "2026-03-03T06:15:00Z")
	days = w.SplitByDay()
	require.Len(t, days, 2)
	assert.Equal(t, win(t, "2026-03-03T00:00:00Z", "2026-03-03T06:15:00Z").Start, days[1].Start)
	assert.Equal(t, w.End, days[1].End)
	assert.True(t, days[1].End.After(days[1].Start))

	// Both edges outside default hours in a short overnight window
	w = win(t, "2026-03-02T23:30:00Z", "2026-03-03T00:45:00Z")
	days = w.SplitByDay()
	require.Len(t, days, 2)
	for _, d := range days {
		assert.True(t, d.End.After(d.Start))
	}
}
