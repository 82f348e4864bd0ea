package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is what happened to an alarm or to the phone.
type EventKind string

const (
	KindGoesOff        EventKind = "goes_off"
	KindSnoozed        EventKind = "snoozed"
	KindStopped        EventKind = "stopped"
	KindBedtimeStarts  EventKind = "bedtime_starts"
	KindWakingUp       EventKind = "waking_up"
	KindWindDownStarts EventKind = "wind_down_starts"
)

// Pseudo alarm tags used for device-level events.
const (
	TagWakeup   = "wakeup"
	TagAny      = "any"
	TagBedtime  = "bedtime"
	TagWakingUp = "waking_up"
	TagWindDown = "wind_down"
)

// AlarmEventKinds lists the kinds accepted by report_alarm_event.
var AlarmEventKinds = []EventKind{KindGoesOff, KindSnoozed, KindStopped}

// DeviceEventNames lists the names accepted by report_device_event.
var DeviceEventNames = []string{
	"wakeup_goes_off", "wakeup_snoozed", "wakeup_stopped",
	"any_goes_off", "any_snoozed", "any_stopped",
	"bedtime_starts", "waking_up", "wind_down_starts",
}

// ParseAlarmEventKind validates an alarm-level event kind.
func ParseAlarmEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindGoesOff, KindSnoozed, KindStopped:
		return k, nil
	}
	return "", ErrUnknownEventKind
}

// ParseDeviceEvent splits a device event name into its pseudo alarm tag and kind.
// "wakeup_" and "any_" are prefixes over the alarm kinds; the sleep schedule
// signals match by exact name.
func ParseDeviceEvent(name string) (tag string, kind EventKind, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range []string{TagWakeup, TagAny} {
		if rest, ok := strings.CutPrefix(name, prefix+"_"); ok {
			k, err := ParseAlarmEventKind(rest)
			if err != nil {
				return "", "", err
			}
			return prefix, k, nil
		}
	}
	switch EventKind(name) {
	case KindBedtimeStarts:
		return TagBedtime, KindBedtimeStarts, nil
	case KindWakingUp:
		return TagWakingUp, KindWakingUp, nil
	case KindWindDownStarts:
		return TagWindDown, KindWindDownStarts, nil
	}
	return "", "", ErrUnknownEventKind
}

// record replaces the device timestamp addressed by tag and kind.
func (d *DeviceEvents) record(tag string, kind EventKind, at time.Time) error {
	var slot *time.Time
	switch tag {
	case TagWakeup:
		slot = pick(kind, &d.WakeupGoesOffAt, &d.WakeupSnoozedAt, &d.WakeupStoppedAt)
	case TagAny:
		slot = pick(kind, &d.AnyGoesOffAt, &d.AnySnoozedAt, &d.AnyStoppedAt)
	case TagBedtime:
		slot = &d.BedtimeStartsAt
	case TagWakingUp:
		slot = &d.WakingUpAt
	case TagWindDown:
		slot = &d.WindDownStartsAt
	}
	if slot == nil {
		return ErrUnknownEventKind
	}
	*slot = at
	return nil
}

func pick(kind EventKind, goesOff, snoozed, stopped *time.Time) *time.Time {
	switch kind {
	case KindGoesOff:
		return goesOff
	case KindSnoozed:
		return snoozed
	case KindStopped:
		return stopped
	}
	return nil
}

// RecordAlarmEvent stamps the alarm and returns a new event for the log.
func (p *Phone) RecordAlarmEvent(alarmID string, kind EventKind, at time.Time) (Event, error) {
	alarm, ok := p.Alarms[alarmID]
	if !ok {
		return Event{}, ErrAlarmNotFound
	}
	if err := alarm.recordEvent(kind, at); err != nil {
		return Event{}, err
	}
	return newEvent(alarmID, kind, at), nil
}

// RecordDeviceEvent stamps the phone-level signal and returns a new event for the log.
func (p *Phone) RecordDeviceEvent(name string, at time.Time) (Event, error) {
	tag, kind, err := ParseDeviceEvent(name)
	if err != nil {
		return Event{}, err
	}
	if err := p.Device.record(tag, kind, at); err != nil {
		return Event{}, err
	}
	return newEvent(tag, kind, at), nil
}

func newEvent(alarmID string, kind EventKind, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		AlarmID:    alarmID,
		Kind:       kind,
		OccurredAt: at,
	}
}
