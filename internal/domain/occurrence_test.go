package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("UTC+2", 2*60*60)

// Wednesday 2025-01-15 08:00 local.
var wednesdayMorning = time.Date(2025, 1, 15, 8, 0, 0, 0, testZone)

func alarmAt(hour, minute int, days ...string) *Alarm {
	a := NewAlarm("A")
	a.Enabled = true
	a.Hour = hour
	a.Minute = minute
	if len(days) > 0 {
		a.Repeats = true
		a.RepeatDays = days
	}
	return a
}

func localAt(day, hour, minute int) time.Time {
	return time.Date(2025, 1, day, hour, minute, 0, 0, testZone).UTC()
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name  string
		alarm *Alarm
		want  time.Time
		found bool
	}{
		{name: "one-shot already passed", alarm: alarmAt(7, 0)},
		{name: "one-shot exactly now", alarm: alarmAt(8, 0)},
		{name: "one-shot later today", alarm: alarmAt(9, 30), want: localAt(15, 9, 30), found: true},
		{name: "repeating today still ahead", alarm: alarmAt(9, 0, "Wednesday"), want: localAt(15, 9, 0), found: true},
		{name: "repeating today passed rolls a week", alarm: alarmAt(7, 0, "Wednesday"), want: localAt(22, 7, 0), found: true},
		{name: "monday beats passed wednesday", alarm: alarmAt(7, 0, "Monday", "Wednesday"), want: localAt(20, 7, 0), found: true},
		{name: "nearest weekday wins", alarm: alarmAt(6, 0, "Monday", "Friday"), want: localAt(17, 6, 0), found: true},
		{name: "malformed weekday skipped", alarm: alarmAt(6, 0, "Funday", "Thursday"), want: localAt(16, 6, 0), found: true},
		{name: "only malformed weekdays", alarm: alarmAt(6, 0, "Funday")},
		{name: "weekday names are case-insensitive", alarm: alarmAt(6, 0, "tuesday"), want: localAt(21, 6, 0), found: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextOccurrence(tt.alarm, wednesdayMorning, testZone)
			require.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestNextOccurrence_DisabledAlarm(t *testing.T) {
	a := alarmAt(9, 0, "Wednesday")
	a.Enabled = false

	_, ok := NextOccurrence(a, wednesdayMorning, testZone)

	assert.False(t, ok)
}

func TestNextOccurrence_RepeatsWithoutDaysActsAsOneShot(t *testing.T) {
	a := alarmAt(9, 0)
	a.Repeats = true

	got, ok := NextOccurrence(a, wednesdayMorning, testZone)

	require.True(t, ok)
	assert.Equal(t, localAt(15, 9, 0), got)
}

func TestNextOccurrence_UsesLocationForWallClock(t *testing.T) {
	now := time.Date(2025, 1, 15, 5, 30, 0, 0, time.UTC) // 07:30 in testZone

	got, ok := NextOccurrence(alarmAt(7, 45), now, testZone)

	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 15, 5, 45, 0, 0, time.UTC), got)
}

func TestNextPhoneAlarm(t *testing.T) {
	p, err := NewPhone("Test Phone", "", true)
	require.NoError(t, err)

	weekly := alarmAt(7, 0, "Monday")
	weekly.ID = "weekly"
	later := alarmAt(10, 0)
	later.ID = "later"
	disabled := alarmAt(8, 30)
	disabled.ID = "disabled"
	disabled.Enabled = false
	p.Alarms = map[string]*Alarm{weekly.ID: weekly, later.ID: later, disabled.ID: disabled}

	occ, ok := NextPhoneAlarm(p, wednesdayMorning, testZone)

	require.True(t, ok)
	assert.Equal(t, "later", occ.AlarmID)
	assert.Equal(t, localAt(15, 10, 0), occ.At)
}

func TestNextPhoneAlarm_TieBreaks(t *testing.T) {
	p, err := NewPhone("Test Phone", "", true)
	require.NoError(t, err)

	friday := alarmAt(9, 0, "Friday")
	friday.ID = "friday-9"
	fridayEarly := alarmAt(6, 15, "Friday", "Saturday")
	fridayEarly.ID = "friday-615"
	p.Alarms = map[string]*Alarm{friday.ID: friday, fridayEarly.ID: fridayEarly}

	occ, ok := NextPhoneAlarm(p, wednesdayMorning, testZone)

	require.True(t, ok)
	assert.Equal(t, "friday-615", occ.AlarmID)
	assert.Equal(t, localAt(17, 6, 15), occ.At)

	twin := alarmAt(6, 15, "Friday")
	twin.ID = "aaa-twin"
	p.Alarms[twin.ID] = twin

	occ, ok = NextPhoneAlarm(p, wednesdayMorning, testZone)
	require.True(t, ok)
	assert.Equal(t, "aaa-twin", occ.AlarmID)
}

func TestNextPhoneAlarm_NothingScheduled(t *testing.T) {
	p, err := NewPhone("Test Phone", "", true)
	require.NoError(t, err)

	_, ok := NextPhoneAlarm(p, wednesdayMorning, testZone)
	assert.False(t, ok)

	_, ok = NextPhoneAlarm(nil, wednesdayMorning, testZone)
	assert.False(t, ok)
}
