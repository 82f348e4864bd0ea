package domain

import (
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseWeekday maps an English weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// Occurrence is a projected firing instant of an alarm, always in UTC.
type Occurrence struct {
	At      time.Time
	AlarmID string
}

// NextOccurrence projects the alarm onto the next instant it is due after now,
// using loc for the alarm's wall-clock hour and minute. It reports false for
// disabled alarms, one-shot alarms whose time already passed today, and
// repeating alarms without any recognisable weekday.
func NextOccurrence(a *Alarm, now time.Time, loc *time.Location) (time.Time, bool) {
	if a == nil || !a.Enabled {
		return time.Time{}, false
	}
	local := now.In(location(loc))
	days, ok := daysAhead(a, local)
	if !ok {
		return time.Time{}, false
	}
	return wallClock(local, days, a.Hour, a.Minute), true
}

// NextPhoneAlarm returns the soonest occurrence across every enabled alarm of
// the phone. Candidates are ordered by days ahead, then time of day.
func NextPhoneAlarm(p *Phone, now time.Time, loc *time.Location) (Occurrence, bool) {
	if p == nil {
		return Occurrence{}, false
	}
	local := now.In(location(loc))

	var (
		best     *Alarm
		bestDays int
	)
	for _, a := range p.Alarms {
		if !a.Enabled {
			continue
		}
		days, ok := daysAhead(a, local)
		if !ok {
			continue
		}
		if best == nil || earlier(days, a, bestDays, best) {
			best, bestDays = a, days
		}
	}
	if best == nil {
		return Occurrence{}, false
	}
	return Occurrence{
		At:      wallClock(local, bestDays, best.Hour, best.Minute),
		AlarmID: best.ID,
	}, true
}

func earlier(days int, a *Alarm, bestDays int, best *Alarm) bool {
	if days != bestDays {
		return days < bestDays
	}
	if m, bm := minuteOfDay(a), minuteOfDay(best); m != bm {
		return m < bm
	}
	return a.ID < best.ID
}

// daysAhead picks the smallest day offset at which the alarm fires after local.
func daysAhead(a *Alarm, local time.Time) (int, bool) {
	stillToday := wallClock(local, 0, a.Hour, a.Minute).After(local)

	if !a.Repeats || len(a.RepeatDays) == 0 {
		return 0, stillToday
	}

	best := -1
	for _, name := range a.RepeatDays {
		wd, ok := ParseWeekday(name)
		if !ok {
			continue
		}
		days := (int(wd) - int(local.Weekday()) + 7) % 7
		if days == 0 && !stillToday {
			days = 7
		}
		if best < 0 || days < best {
			best = days
		}
	}
	return best, best >= 0
}

func wallClock(local time.Time, days, hour, minute int) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d+days, hour, minute, 0, 0, local.Location()).UTC()
}

func minuteOfDay(a *Alarm) int {
	return a.Hour*60 + a.Minute
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
