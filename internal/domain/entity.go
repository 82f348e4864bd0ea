package domain

import (
	"slices"
	"time"
)

const (
	// DefaultSnoozeTime is the snooze duration in minutes assumed for new alarms.
	DefaultSnoozeTime = 9
	MinSnoozeTime     = 1
	MaxSnoozeTime     = 30

	// DefaultIcon is the icon assigned to alarms that were never customised.
	DefaultIcon = "mdi:alarm"
)

// Alarm is a single iPhone alarm as last reported by the phone.
// Zero time values mean "never happened".
type Alarm struct {
	ID           string
	Label        string
	Enabled      bool
	Hour         int
	Minute       int
	Repeats      bool
	RepeatDays   []string
	AllowsSnooze bool
	SnoozeTime   int
	Icon         string
	SyncedAt     time.Time

	LastGoesOffAt time.Time
	LastSnoozedAt time.Time
	LastStoppedAt time.Time

	// LastOccurrenceAt caches the last predicted occurrence the timer fired for.
	LastOccurrenceAt time.Time
}

// NewAlarm returns an alarm with the model defaults applied.
func NewAlarm(id string) *Alarm {
	return &Alarm{
		ID:         id,
		RepeatDays: []string{},
		SnoozeTime: DefaultSnoozeTime,
		Icon:       DefaultIcon,
	}
}

// Clone returns a deep copy.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	c := *a
	c.RepeatDays = slices.Clone(a.RepeatDays)
	if c.RepeatDays == nil {
		c.RepeatDays = []string{}
	}
	return &c
}

// RepeatsOn reports whether the canonical weekday name is in the repeat set.
func (a *Alarm) RepeatsOn(day time.Weekday) bool {
	for _, name := range a.RepeatDays {
		if wd, ok := ParseWeekday(name); ok && wd == day {
			return true
		}
	}
	return false
}

// recordEvent replaces the matching last_<kind>_at timestamp.
// ValidateSnoozeTime reports whether a may be snoozed for minutes.
func ValidateSnoozeTime(a *Alarm, minutes int) error {
	if !a.AllowsSnooze {
		return ErrSnoozeNotAllowed
	}
	if minutes < MinSnoozeTime || minutes > MaxSnoozeTime {
		return ErrInvalidSnoozeTime
	}
	return nil
}

func (a *Alarm) recordEvent(kind EventKind, at time.Time) error {
	switch kind {
	case KindGoesOff:
		a.LastGoesOffAt = at
	case KindSnoozed:
		a.LastSnoozedAt = at
	case KindStopped:
		a.LastStoppedAt = at
	default:
		return ErrUnknownEventKind
	}
	return nil
}

// DeviceEvents holds the phone-level signal timestamps that are not tied
// to a specific alarm.
type DeviceEvents struct {
	WakeupGoesOffAt  time.Time
	WakeupSnoozedAt  time.Time
	WakeupStoppedAt  time.Time
	AnyGoesOffAt     time.Time
	AnySnoozedAt     time.Time
	AnyStoppedAt     time.Time
	BedtimeStartsAt  time.Time
	WakingUpAt       time.Time
	WindDownStartsAt time.Time
}

// Phone is the single phone mirrored by a configuration entry.
type Phone struct {
	ID                string
	Name              string
	CompanionDeviceID string
	// KeepDisabledAlarms retains alarms that are disabled or missing from a sync.
	KeepDisabledAlarms bool

	LastSyncAt  time.Time
	LastAlarmAt time.Time
	LastAlarmID string

	Device DeviceEvents
	Alarms map[string]*Alarm
}

// NewPhone creates a phone whose id is derived from name.
func NewPhone(name, companionDeviceID string, keepDisabled bool) (*Phone, error) {
	id := Slugify(name)
	if id == "" {
		return nil, ErrInvalidPhoneName
	}
	return &Phone{
		ID:                 id,
		Name:               name,
		CompanionDeviceID:  companionDeviceID,
		KeepDisabledAlarms: keepDisabled,
		Alarms:             make(map[string]*Alarm),
	}, nil
}

// Clone returns a deep copy including every alarm.
func (p *Phone) Clone() *Phone {
	if p == nil {
		return nil
	}
	c := *p
	c.Alarms = make(map[string]*Alarm, len(p.Alarms))
	for id, a := range p.Alarms {
		c.Alarms[id] = a.Clone()
	}
	return &c
}

// PhoneUpdate is a partial phone update; nil fields are left unchanged.
type PhoneUpdate struct {
	Name               *string
	CompanionDeviceID  *string
	KeepDisabledAlarms *bool
}

// Apply mutates p and reports whether anything changed.
// The phone id is stable and does not follow renames.
func (p *Phone) Apply(u PhoneUpdate) bool {
	changed := false
	if u.Name != nil && *u.Name != p.Name {
		p.Name = *u.Name
		changed = true
	}
	if u.CompanionDeviceID != nil && *u.CompanionDeviceID != p.CompanionDeviceID {
		p.CompanionDeviceID = *u.CompanionDeviceID
		changed = true
	}
	if u.KeepDisabledAlarms != nil && *u.KeepDisabledAlarms != p.KeepDisabledAlarms {
		p.KeepDisabledAlarms = *u.KeepDisabledAlarms
		changed = true
	}
	return changed
}

// Counts returns total, enabled and disabled alarm counts.
func (p *Phone) Counts() (total, enabled, disabled int) {
	for _, a := range p.Alarms {
		total++
		if a.Enabled {
			enabled++
		} else {
			disabled++
		}
	}
	return total, enabled, disabled
}

// Event is one entry of the in-memory event log. Events are never mutated.
type Event struct {
	ID         string
	AlarmID    string
	Kind       EventKind
	OccurredAt time.Time
}
