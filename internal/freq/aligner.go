package freq

import (
	"time"

	"czsc-engine/internal/markethours"
)

// EndDT returns the close time of the f-bar that contains t, read in t's
// location. Intraday frequencies honour the trading sessions: a time equal
// to a bucket's close maps to that close and a time outside every session
// returns false. Daily and coarser frequencies map to the market close of
// the last weekday of the calendar unit; a Saturday or Sunday counts toward
// the following week.
func EndDT(t time.Time, f Freq) (time.Time, bool) {
	switch {
	case f.Intraday():
		return intradayEnd(t, f.Minutes())
	case f == D:
		return markethours.TodayClose(t), true
	}

	// weekend times belong to the next trading day's period
	t = markethours.NextWeekdayOnOrAfter(t)
	switch f {
	case W:
		offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
		monday := markethours.Midnight(t).AddDate(0, 0, -offset)
		return markethours.TodayClose(monday.AddDate(0, 0, 4)), true
	case M:
		return lastWeekdayOfMonth(t.Year(), t.Month(), t.Location()), true
	case S:
		qEnd := time.Month((int(t.Month())-1)/3*3 + 3)
		return lastWeekdayOfMonth(t.Year(), qEnd, t.Location()), true
	case Y:
		return lastWeekdayOfMonth(t.Year(), time.December, t.Location()), true
	}
	return time.Time{}, false
}

func intradayEnd(t time.Time, mins int) (time.Time, bool) {
	sess, ok := markethours.SessionAt(t)
	if !ok {
		return time.Time{}, false
	}
	step := mins * 60
	k := (markethours.SecondsOfDay(t) - sess.Open + step - 1) / step
	if k == 0 {
		k = 1 // the session open belongs to the first bucket
	}
	end := sess.Open + k*step
	if end > sess.Close {
		end = sess.Close
	}
	return markethours.Midnight(t).Add(time.Duration(end) * time.Second), true
}

func lastWeekdayOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	return markethours.TodayClose(markethours.LastWeekdayOnOrBefore(last))
}
