// Package markethours describes the exchange trading sessions that intraday
// bars are aligned to. All functions read the wall clock of the given time in
// its own location; CST is provided for callers parsing exchange timestamps.
package markethours

import "time"

// CST is China Standard Time (UTC+8), the exchange's local time.
var CST = time.FixedZone("CST", 8*3600)

// Market hours (wall clock)
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 15
	CloseMinute = 0
)

// Session is one continuous trading period, in seconds since midnight.
type Session struct {
	Open  int
	Close int
}

// Len returns the session length in minutes.
func (s Session) Len() int {
	return (s.Close - s.Open) / 60
}

// Sessions are the morning and afternoon sessions, in order.
var Sessions = []Session{
	{Open: (9*60 + 30) * 60, Close: (11*60 + 30) * 60},
	{Open: 13 * 60 * 60, Close: 15 * 60 * 60},
}

// SecondsOfDay returns the wall-clock offset of t from its local midnight,
// including sub-second precision rounded up to the next second.
func SecondsOfDay(t time.Time) int {
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if t.Nanosecond() > 0 {
		s++
	}
	return s
}

// SessionAt returns the session whose [open, close] contains t.
func SessionAt(t time.Time) (Session, bool) {
	s := SecondsOfDay(t)
	for _, sess := range Sessions {
		if s >= sess.Open && s <= sess.Close {
			return sess, true
		}
	}
	return Session{}, false
}

// IsTradingTime returns true if t falls inside a session.
func IsTradingTime(t time.Time) bool {
	_, ok := SessionAt(t)
	return ok
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// Midnight returns the start of t's calendar day in t's location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TodayClose returns the market close (15:00) on t's date.
func TodayClose(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), CloseHour, CloseMinute, 0, 0, t.Location())
}

// LastWeekdayOnOrBefore walks back from day to the nearest Mon–Fri date.
func LastWeekdayOnOrBefore(day time.Time) time.Time {
	for !IsWeekday(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// NextWeekdayOnOrAfter walks forward from day to the nearest Mon–Fri date.
func NextWeekdayOnOrAfter(day time.Time) time.Time {
	for !IsWeekday(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
