package freq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

func TestEndDT_Intraday(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		f    Freq
		want time.Time
	}{
		{"open maps to first 1m bucket", at(2024, 1, 5, 9, 30), F1, at(2024, 1, 5, 9, 31)},
		{"1m identity", at(2024, 1, 5, 9, 45), F1, at(2024, 1, 5, 9, 45)},
		{"5m exact close", at(2024, 1, 5, 9, 35), F5, at(2024, 1, 5, 9, 35)},
		{"5m inside", at(2024, 1, 5, 9, 36), F5, at(2024, 1, 5, 9, 40)},
		{"15m", at(2024, 1, 5, 10, 1), F15, at(2024, 1, 5, 10, 15)},
		{"30m", at(2024, 1, 5, 9, 59), F30, at(2024, 1, 5, 10, 0)},
		{"60m morning", at(2024, 1, 5, 10, 31), F60, at(2024, 1, 5, 11, 30)},
		{"60m morning close", at(2024, 1, 5, 11, 30), F60, at(2024, 1, 5, 11, 30)},
		{"60m afternoon", at(2024, 1, 5, 13, 1), F60, at(2024, 1, 5, 14, 0)},
		{"afternoon open", at(2024, 1, 5, 13, 0), F5, at(2024, 1, 5, 13, 5)},
		{"session close", at(2024, 1, 5, 15, 0), F30, at(2024, 1, 5, 15, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EndDT(tt.t, tt.f)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndDT_SecondsRoundUp(t *testing.T) {
	got, ok := EndDT(time.Date(2024, 1, 5, 9, 35, 1, 0, time.UTC), F5)
	require.True(t, ok)
	assert.Equal(t, at(2024, 1, 5, 9, 40), got)
}

func TestEndDT_OutOfSession(t *testing.T) {
	for _, ts := range []time.Time{
		at(2024, 1, 5, 9, 29),
		at(2024, 1, 5, 12, 0),
		at(2024, 1, 5, 11, 31),
		at(2024, 1, 5, 15, 1),
		at(2024, 1, 5, 20, 0),
	} {
		_, ok := EndDT(ts, F5)
		assert.False(t, ok, ts.String())
	}
}

func TestEndDT_Calendar(t *testing.T) {
	// 2024-01-05 is a Friday.
	d, _ := EndDT(at(2024, 1, 3, 10, 0), D)
	assert.Equal(t, at(2024, 1, 3, 15, 0), d)

	w, _ := EndDT(at(2024, 1, 1, 0, 0), W)
	assert.Equal(t, at(2024, 1, 5, 15, 0), w)
	w, _ = EndDT(at(2024, 1, 5, 15, 0), W)
	assert.Equal(t, at(2024, 1, 5, 15, 0), w)

	// March 2024 ends on a Sunday.
	m, _ := EndDT(at(2024, 3, 4, 0, 0), M)
	assert.Equal(t, at(2024, 3, 29, 15, 0), m)

	s, _ := EndDT(at(2024, 2, 10, 0, 0), S)
	assert.Equal(t, at(2024, 3, 29, 15, 0), s)
	s, _ = EndDT(at(2024, 11, 10, 0, 0), S)
	assert.Equal(t, at(2024, 12, 31, 15, 0), s)

	y, _ := EndDT(at(2022, 6, 1, 0, 0), Y)
	assert.Equal(t, at(2022, 12, 30, 15, 0), y)
}

func TestEndDT_WeekendRollsForward(t *testing.T) {
	// 2024-03-30 is a Saturday, 2024-03-31 a Sunday.
	for _, ts := range []time.Time{at(2024, 3, 30, 15, 0), at(2024, 3, 31, 10, 0)} {
		w, ok := EndDT(ts, W)
		require.True(t, ok)
		assert.Equal(t, at(2024, 4, 5, 15, 0), w)

		m, _ := EndDT(ts, M)
		assert.Equal(t, at(2024, 4, 30, 15, 0), m)

		for _, f := range []Freq{W, M, S, Y} {
			end, _ := EndDT(ts, f)
			assert.False(t, end.Before(ts), "%s bar closes before %s", f, ts)
		}
	}

	d, _ := EndDT(at(2024, 3, 30, 10, 0), D)
	assert.Equal(t, at(2024, 3, 30, 15, 0), d)
}

func TestEndDT_Deterministic(t *testing.T) {
	ts := at(2024, 1, 5, 10, 7)
	for _, f := range All() {
		a, okA := EndDT(ts, f)
		b, okB := EndDT(ts, f)
		assert.Equal(t, okA, okB)
		assert.Equal(t, a, b)
		if okA {
			assert.False(t, a.Before(ts) && f.Intraday(), f.String())
		}
	}
}
