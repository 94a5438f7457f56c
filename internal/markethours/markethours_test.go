package markethours

import (
	"testing"
	"time"
)

func TestSessionAt(t *testing.T) {
	tests := []struct {
		h, m int
		ok   bool
	}{
		{9, 29, false},
		{9, 30, true},
		{11, 30, true},
		{12, 0, false},
		{13, 0, true},
		{15, 0, true},
		{15, 1, false},
	}
	for _, tt := range tests {
		ts := time.Date(2024, 1, 5, tt.h, tt.m, 0, 0, CST)
		if got := IsTradingTime(ts); got != tt.ok {
			t.Errorf("%02d:%02d: expected %v, got %v", tt.h, tt.m, tt.ok, got)
		}
	}
}

func TestSecondsOfDay_RoundsUp(t *testing.T) {
	ts := time.Date(2024, 1, 5, 9, 30, 0, 1, time.UTC)
	if got := SecondsOfDay(ts); got != 9*3600+30*60+1 {
		t.Errorf("expected rounding up to next second, got %d", got)
	}
}

func TestLastWeekdayOnOrBefore(t *testing.T) {
	sun := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	got := LastWeekdayOnOrBefore(sun)
	if got.Day() != 29 || got.Weekday() != time.Friday {
		t.Errorf("expected Friday 29th, got %v", got)
	}
}

func TestNextWeekdayOnOrAfter(t *testing.T) {
	sat := time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC)
	got := NextWeekdayOnOrAfter(sat)
	if got.Day() != 1 || got.Month() != time.April || got.Weekday() != time.Monday {
		t.Errorf("expected Monday April 1st, got %v", got)
	}
	fri := time.Date(2024, 3, 29, 9, 0, 0, 0, time.UTC)
	if got := NextWeekdayOnOrAfter(fri); !got.Equal(fri) {
		t.Errorf("expected a weekday to map to itself, got %v", got)
	}
}

func TestSessionLen(t *testing.T) {
	for _, s := range Sessions {
		if s.Len() != 120 {
			t.Errorf("expected 120-minute sessions, got %d", s.Len())
		}
	}
}
