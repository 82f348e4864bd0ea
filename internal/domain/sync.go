package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// AlarmPayload is one alarm of a sync batch as pushed by the phone.
// Nil fields were omitted by the sender and fall back to the stored value.
type AlarmPayload struct {
	ID           string
	Label        *string
	Enabled      *bool
	Hour         *int
	Minute       *int
	Repeats      *bool
	RepeatDays   []string
	AllowsSnooze *bool
}

// Validate checks the id and the wall-clock ranges.
func (p AlarmPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAlarm)
	}
	if p.Hour != nil && (*p.Hour < 0 || *p.Hour > 23) {
		return fmt.Errorf("%w: hour %d out of range for %s", ErrInvalidAlarm, *p.Hour, p.ID)
	}
	if p.Minute != nil && (*p.Minute < 0 || *p.Minute > 59) {
		return fmt.Errorf("%w: minute %d out of range for %s", ErrInvalidAlarm, *p.Minute, p.ID)
	}
	return nil
}

// SyncResult describes what a sync batch did to the phone.
type SyncResult struct {
	NewIDs     []string
	RemovedIDs []string
	Changed    bool
}

// Sync reconciles the batch against the stored alarms. Existing alarms are
// overwritten only when one of their structural fields differs. When the
// phone does not keep disabled alarms, the batch is reduced to enabled alarms
// and every stored alarm missing from it is removed.
func (p *Phone) Sync(batch []AlarmPayload, now time.Time) (SyncResult, error) {
	batch = slices.Clone(batch)
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return SyncResult{}, err
		}
		batch[i].ID = NormalizeAlarmID(batch[i].ID)
	}

	if !p.KeepDisabledAlarms {
		batch = slices.DeleteFunc(batch, func(in AlarmPayload) bool {
			return !p.effectiveEnabled(in)
		})
	}

	var res SyncResult
	seen := make(map[string]bool, len(batch))
	for _, in := range batch {
		seen[in.ID] = true
		existing, ok := p.Alarms[in.ID]
		if !ok {
			alarm := NewAlarm(in.ID)
			in.applyTo(alarm)
			alarm.SyncedAt = now
			p.Alarms[in.ID] = alarm
			res.NewIDs = append(res.NewIDs, in.ID)
			res.Changed = true
			continue
		}
		updated := existing.Clone()
		in.applyTo(updated)
		if !structurallyEqual(existing, updated) {
			updated.SyncedAt = now
			p.Alarms[in.ID] = updated
			res.Changed = true
		}
	}

	if !p.KeepDisabledAlarms {
		for id := range p.Alarms {
			if !seen[id] {
				delete(p.Alarms, id)
				res.RemovedIDs = append(res.RemovedIDs, id)
				res.Changed = true
			}
		}
		sort.Strings(res.RemovedIDs)
	}

	p.LastSyncAt = now
	return res, nil
}

func (p *Phone) effectiveEnabled(in AlarmPayload) bool {
	if in.Enabled != nil {
		return *in.Enabled
	}
	if a, ok := p.Alarms[in.ID]; ok {
		return a.Enabled
	}
	return false
}

func (in AlarmPayload) applyTo(a *Alarm) {
	if in.Label != nil {
		a.Label = *in.Label
	}
	if in.Enabled != nil {
		a.Enabled = *in.Enabled
	}
	if in.Hour != nil {
		a.Hour = *in.Hour
	}
	if in.Minute != nil {
		a.Minute = *in.Minute
	}
	if in.Repeats != nil {
		a.Repeats = *in.Repeats
	}
	if in.RepeatDays != nil {
		a.RepeatDays = slices.Clone(in.RepeatDays)
	}
	if in.AllowsSnooze != nil {
		a.AllowsSnooze = *in.AllowsSnooze
	}
}

func structurallyEqual(a, b *Alarm) bool {
	return a.Label == b.Label &&
		a.Enabled == b.Enabled &&
		a.Hour == b.Hour &&
		a.Minute == b.Minute &&
		a.Repeats == b.Repeats &&
		a.AllowsSnooze == b.AllowsSnooze &&
		sameDays(a.RepeatDays, b.RepeatDays)
}

func sameDays(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}
