package domain

import (
	"slices"
	"time"
)

// Options is the persisted projection of a configuration entry.
type Options struct {
	Phone *PhoneRecord `json:"phone,omitempty"`
}

// PhoneRecord is the stored form of a Phone.
type PhoneRecord struct {
	PhoneID            string                 `json:"phone_id"`
	PhoneName          string                 `json:"phone_name"`
	MobileAppDeviceID  string                 `json:"mobile_app_device_id,omitempty"`
	KeepDisabledAlarms bool                   `json:"keep_disabled_alarms"`
	LastAlarmAt        string                 `json:"last_alarm_at,omitempty"`
	LastAlarmID        string                 `json:"last_alarm_id,omitempty"`
	WakeupGoesOffAt    string                 `json:"wakeup_goes_off_at,omitempty"`
	WakeupSnoozedAt    string                 `json:"wakeup_snoozed_at,omitempty"`
	WakeupStoppedAt    string                 `json:"wakeup_stopped_at,omitempty"`
	AnyGoesOffAt       string                 `json:"any_goes_off_at,omitempty"`
	AnySnoozedAt       string                 `json:"any_snoozed_at,omitempty"`
	AnyStoppedAt       string                 `json:"any_stopped_at,omitempty"`
	BedtimeStartsAt    string                 `json:"bedtime_starts_at,omitempty"`
	WakingUpAt         string                 `json:"waking_up_at,omitempty"`
	WindDownStartsAt   string                 `json:"wind_down_starts_at,omitempty"`
	Alarms             map[string]AlarmRecord `json:"alarms"`
}

// AlarmRecord is the stored form of an Alarm.
type AlarmRecord struct {
	AlarmID          string   `json:"alarm_id"`
	Label            string   `json:"label"`
	Enabled          bool     `json:"enabled"`
	Hour             int      `json:"hour"`
	Minute           int      `json:"minute"`
	Repeats          bool     `json:"repeats"`
	RepeatDays       []string `json:"repeat_days"`
	AllowsSnooze     bool     `json:"allows_snooze"`
	SnoozeTime       int      `json:"snooze_time"`
	Icon             string   `json:"icon"`
	SyncedAt         string   `json:"synced_at,omitempty"`
	LastGoesOffAt    string   `json:"last_goes_off_at,omitempty"`
	LastSnoozedAt    string   `json:"last_snoozed_at,omitempty"`
	LastStoppedAt    string   `json:"last_stopped_at,omitempty"`
	LastOccurrenceAt string   `json:"last_occurrence_at,omitempty"`
}

// OptionsFromPhone serialises the phone. A nil phone yields empty options.
func OptionsFromPhone(p *Phone) Options {
	if p == nil {
		return Options{}
	}
	rec := &PhoneRecord{
		PhoneID:            p.ID,
		PhoneName:          p.Name,
		MobileAppDeviceID:  p.CompanionDeviceID,
		KeepDisabledAlarms: p.KeepDisabledAlarms,
		LastAlarmAt:        formatTime(p.LastAlarmAt),
		LastAlarmID:        p.LastAlarmID,
		WakeupGoesOffAt:    formatTime(p.Device.WakeupGoesOffAt),
		WakeupSnoozedAt:    formatTime(p.Device.WakeupSnoozedAt),
		WakeupStoppedAt:    formatTime(p.Device.WakeupStoppedAt),
		AnyGoesOffAt:       formatTime(p.Device.AnyGoesOffAt),
		AnySnoozedAt:       formatTime(p.Device.AnySnoozedAt),
		AnyStoppedAt:       formatTime(p.Device.AnyStoppedAt),
		BedtimeStartsAt:    formatTime(p.Device.BedtimeStartsAt),
		WakingUpAt:         formatTime(p.Device.WakingUpAt),
		WindDownStartsAt:   formatTime(p.Device.WindDownStartsAt),
		Alarms:             make(map[string]AlarmRecord, len(p.Alarms)),
	}
	for id, a := range p.Alarms {
		days := slices.Clone(a.RepeatDays)
		if days == nil {
			days = []string{}
		}
		rec.Alarms[id] = AlarmRecord{
			AlarmID:          a.ID,
			Label:            a.Label,
			Enabled:          a.Enabled,
			Hour:             a.Hour,
			Minute:           a.Minute,
			Repeats:          a.Repeats,
			RepeatDays:       days,
			AllowsSnooze:     a.AllowsSnooze,
			SnoozeTime:       a.SnoozeTime,
			Icon:             a.Icon,
			SyncedAt:         formatTime(a.SyncedAt),
			LastGoesOffAt:    formatTime(a.LastGoesOffAt),
			LastSnoozedAt:    formatTime(a.LastSnoozedAt),
			LastStoppedAt:    formatTime(a.LastStoppedAt),
			LastOccurrenceAt: formatTime(a.LastOccurrenceAt),
		}
	}
	return Options{Phone: rec}
}

// ToPhone rebuilds the phone, applying model defaults for missing fields.
// It returns nil when no phone was stored.
func (o Options) ToPhone() *Phone {
	rec := o.Phone
	if rec == nil || rec.PhoneID == "" {
		return nil
	}
	p := &Phone{
		ID:                 rec.PhoneID,
		Name:               rec.PhoneName,
		CompanionDeviceID:  rec.MobileAppDeviceID,
		KeepDisabledAlarms: rec.KeepDisabledAlarms,
		LastAlarmAt:        parseTime(rec.LastAlarmAt),
		LastAlarmID:        rec.LastAlarmID,
		Device: DeviceEvents{
			WakeupGoesOffAt:  parseTime(rec.WakeupGoesOffAt),
			WakeupSnoozedAt:  parseTime(rec.WakeupSnoozedAt),
			WakeupStoppedAt:  parseTime(rec.WakeupStoppedAt),
			AnyGoesOffAt:     parseTime(rec.AnyGoesOffAt),
			AnySnoozedAt:     parseTime(rec.AnySnoozedAt),
			AnyStoppedAt:     parseTime(rec.AnyStoppedAt),
			BedtimeStartsAt:  parseTime(rec.BedtimeStartsAt),
			WakingUpAt:       parseTime(rec.WakingUpAt),
			WindDownStartsAt: parseTime(rec.WindDownStartsAt),
		},
		Alarms: make(map[string]*Alarm, len(rec.Alarms)),
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	for key, ar := range rec.Alarms {
		id := ar.AlarmID
		if id == "" {
			id = key
		}
		a := NewAlarm(id)
		a.Label = ar.Label
		a.Enabled = ar.Enabled
		a.Hour = clamp(ar.Hour, 0, 23)
		a.Minute = clamp(ar.Minute, 0, 59)
		a.Repeats = ar.Repeats
		if ar.RepeatDays != nil {
			a.RepeatDays = slices.Clone(ar.RepeatDays)
		}
		a.AllowsSnooze = ar.AllowsSnooze
		if ar.SnoozeTime >= MinSnoozeTime && ar.SnoozeTime <= MaxSnoozeTime {
			a.SnoozeTime = ar.SnoozeTime
		}
		if ar.Icon != "" {
			a.Icon = ar.Icon
		}
		a.SyncedAt = parseTime(ar.SyncedAt)
		a.LastGoesOffAt = parseTime(ar.LastGoesOffAt)
		a.LastSnoozedAt = parseTime(ar.LastSnoozedAt)
		a.LastStoppedAt = parseTime(ar.LastStoppedAt)
		a.LastOccurrenceAt = parseTime(ar.LastOccurrenceAt)
		p.Alarms[id] = a
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime ignores unparseable values; a broken timestamp reads as "never".
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
