package web

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"iphone-alarms-sync/internal/domain"
)

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// PhoneView is the phone summary served by the API and pushed to websocket clients.
type PhoneView struct {
	Loaded             bool            `json:"loaded"`
	ID                 string          `json:"phone_id,omitempty"`
	Name               string          `json:"phone_name,omitempty"`
	CompanionDeviceID  string          `json:"mobile_app_device_id,omitempty"`
	KeepDisabledAlarms bool            `json:"keep_disabled_alarms"`
	TotalAlarms        int             `json:"total_alarms"`
	EnabledAlarms      int             `json:"enabled_alarms"`
	DisabledAlarms     int             `json:"disabled_alarms"`
	LastSyncAt         *time.Time      `json:"last_sync_at"`
	NextAlarm          *OccurrenceView `json:"next_alarm"`
	LastAlarm          *OccurrenceView `json:"last_alarm"`
	Device             DeviceView      `json:"device"`
}

// OccurrenceView names the alarm behind an instant.
type OccurrenceView struct {
	AlarmID string    `json:"alarm_id"`
	Label   string    `json:"label"`
	At      time.Time `json:"at"`
}

type DeviceView struct {
	WakeupGoesOffAt  *time.Time `json:"wakeup_goes_off_at"`
	WakeupSnoozedAt  *time.Time `json:"wakeup_snoozed_at"`
	WakeupStoppedAt  *time.Time `json:"wakeup_stopped_at"`
	AnyGoesOffAt     *time.Time `json:"any_goes_off_at"`
	AnySnoozedAt     *time.Time `json:"any_snoozed_at"`
	AnyStoppedAt     *time.Time `json:"any_stopped_at"`
	BedtimeStartsAt  *time.Time `json:"bedtime_starts_at"`
	WakingUpAt       *time.Time `json:"waking_up_at"`
	WindDownStartsAt *time.Time `json:"wind_down_starts_at"`
}

// AlarmView is one alarm with its derived flags and next occurrence.
type AlarmView struct {
	ID               string          `json:"alarm_id"`
	Label            string          `json:"label"`
	Icon             string          `json:"icon"`
	Enabled          bool            `json:"enabled"`
	Time             string          `json:"time"`
	Hour             int             `json:"hour"`
	Minute           int             `json:"minute"`
	Repeats          bool            `json:"repeats"`
	RepeatDays       []string        `json:"repeat_days"`
	RepeatsOn        map[string]bool `json:"repeats_on"`
	AllowsSnooze     bool            `json:"allows_snooze"`
	SnoozeTime       int             `json:"snooze_time"`
	NextOccurrence   *time.Time      `json:"next_occurrence"`
	SyncedAt         *time.Time      `json:"synced_at"`
	LastGoesOffAt    *time.Time      `json:"last_goes_off_at"`
	LastSnoozedAt    *time.Time      `json:"last_snoozed_at"`
	LastStoppedAt    *time.Time      `json:"last_stopped_at"`
	LastOccurrenceAt *time.Time      `json:"last_occurrence_at"`
}

type EventView struct {
	ID         string           `json:"event_id"`
	AlarmID    string           `json:"alarm_id"`
	Event      domain.EventKind `json:"event"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewPhoneView summarises p as seen at now. A nil phone yields an unloaded view.
func NewPhoneView(p *domain.Phone, now time.Time, loc *time.Location) PhoneView {
	if p == nil {
		return PhoneView{}
	}
	total, enabled, disabled := p.Counts()
	v := PhoneView{
		Loaded:             true,
		ID:                 p.ID,
		Name:               p.Name,
		CompanionDeviceID:  p.CompanionDeviceID,
		KeepDisabledAlarms: p.KeepDisabledAlarms,
		TotalAlarms:        total,
		EnabledAlarms:      enabled,
		DisabledAlarms:     disabled,
		LastSyncAt:         timePtr(p.LastSyncAt),
		Device: DeviceView{
			WakeupGoesOffAt:  timePtr(p.Device.WakeupGoesOffAt),
			WakeupSnoozedAt:  timePtr(p.Device.WakeupSnoozedAt),
			WakeupStoppedAt:  timePtr(p.Device.WakeupStoppedAt),
			AnyGoesOffAt:     timePtr(p.Device.AnyGoesOffAt),
			AnySnoozedAt:     timePtr(p.Device.AnySnoozedAt),
			AnyStoppedAt:     timePtr(p.Device.AnyStoppedAt),
			BedtimeStartsAt:  timePtr(p.Device.BedtimeStartsAt),
			WakingUpAt:       timePtr(p.Device.WakingUpAt),
			WindDownStartsAt: timePtr(p.Device.WindDownStartsAt),
		},
	}
	if occ, ok := domain.NextPhoneAlarm(p, now, loc); ok {
		v.NextAlarm = occurrenceView(p, occ)
	}
	if !p.LastAlarmAt.IsZero() {
		v.LastAlarm = occurrenceView(p, domain.Occurrence{At: p.LastAlarmAt, AlarmID: p.LastAlarmID})
	}
	return v
}

func occurrenceView(p *domain.Phone, occ domain.Occurrence) *OccurrenceView {
	v := &OccurrenceView{AlarmID: occ.AlarmID, At: occ.At}
	if a, ok := p.Alarms[occ.AlarmID]; ok {
		v.Label = a.Label
	}
	return v
}

// NewAlarmView renders a with its next occurrence as seen at now.
func NewAlarmView(a *domain.Alarm, now time.Time, loc *time.Location) AlarmView {
	v := AlarmView{
		ID:               a.ID,
		Label:            a.Label,
		Icon:             a.Icon,
		Enabled:          a.Enabled,
		Time:             fmt.Sprintf("%02d:%02d", a.Hour, a.Minute),
		Hour:             a.Hour,
		Minute:           a.Minute,
		Repeats:          a.Repeats,
		RepeatDays:       slices.Clone(a.RepeatDays),
		RepeatsOn:        make(map[string]bool, len(weekdays)),
		AllowsSnooze:     a.AllowsSnooze,
		SnoozeTime:       a.SnoozeTime,
		SyncedAt:         timePtr(a.SyncedAt),
		LastGoesOffAt:    timePtr(a.LastGoesOffAt),
		LastSnoozedAt:    timePtr(a.LastSnoozedAt),
		LastStoppedAt:    timePtr(a.LastStoppedAt),
		LastOccurrenceAt: timePtr(a.LastOccurrenceAt),
	}
	if v.RepeatDays == nil {
		v.RepeatDays = []string{}
	}
	for _, wd := range weekdays {
		v.RepeatsOn[strings.ToLower(wd.String())] = a.RepeatsOn(wd)
	}
	if at, ok := domain.NextOccurrence(a, now, loc); ok {
		v.NextOccurrence = &at
	}
	return v
}

// NewAlarmViews renders alarms ordered by time of day, then id.
func NewAlarmViews(alarms map[string]*domain.Alarm, now time.Time, loc *time.Location) []AlarmView {
	out := make([]AlarmView, 0, len(alarms))
	for _, a := range alarms {
		out = append(out, NewAlarmView(a, now, loc))
	}
	slices.SortFunc(out, func(x, y AlarmView) int {
		if c := strings.Compare(x.Time, y.Time); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out
}

func NewEventViews(events []domain.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, EventView{ID: ev.ID, AlarmID: ev.AlarmID, Event: ev.Kind, OccurredAt: ev.OccurredAt})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
