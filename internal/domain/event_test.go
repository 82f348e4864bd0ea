package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceEvent(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		kind EventKind
	}{
		{"wakeup_goes_off", TagWakeup, KindGoesOff},
		{"wakeup_snoozed", TagWakeup, KindSnoozed},
		{"any_stopped", TagAny, KindStopped},
		{"bedtime_starts", TagBedtime, KindBedtimeStarts},
		{"waking_up", TagWakingUp, KindWakingUp},
		{"wind_down_starts", TagWindDown, KindWindDownStarts},
	}
	for _, tt := range tests {
		tag, kind, err := ParseDeviceEvent(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.tag, tag)
		assert.Equal(t, tt.kind, kind)
	}

	for _, bad := range []string{"wakeup_exploded", "bedtime", "goes_off", ""} {
		_, _, err := ParseDeviceEvent(bad)
		assert.ErrorIs(t, err, ErrUnknownEventKind, bad)
	}
}

func TestRecordAlarmEvent_UpdatesOnlyMatchingField(t *testing.T) {
	p := newTestPhone(t, true)
	_, err := p.Sync([]AlarmPayload{payload("a", true, 6, 0)}, time.Now())
	require.NoError(t, err)
	at := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

	ev, err := p.RecordAlarmEvent("a", KindSnoozed, at)
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "a", ev.AlarmID)
	assert.Equal(t, KindSnoozed, ev.Kind)
	assert.Equal(t, at, p.Alarms["a"].LastSnoozedAt)
	assert.True(t, p.Alarms["a"].LastGoesOffAt.IsZero())
	assert.True(t, p.Alarms["a"].LastStoppedAt.IsZero())
}

func TestRecordAlarmEvent_Errors(t *testing.T) {
	p := newTestPhone(t, true)
	_, err := p.RecordAlarmEvent("missing", KindGoesOff, time.Now())
	assert.ErrorIs(t, err, ErrAlarmNotFound)

	_, err = p.Sync([]AlarmPayload{payload("a", true, 6, 0)}, time.Now())
	require.NoError(t, err)
	_, err = p.RecordAlarmEvent("a", KindBedtimeStarts, time.Now())
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}

func TestRecordDeviceEvent(t *testing.T) {
	p := newTestPhone(t, true)
	at := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)

	ev, err := p.RecordDeviceEvent("any_goes_off", at)
	require.NoError(t, err)
	assert.Equal(t, TagAny, ev.AlarmID)
	assert.Equal(t, KindGoesOff, ev.Kind)
	assert.Equal(t, at, p.Device.AnyGoesOffAt)
	assert.True(t, p.Device.WakeupGoesOffAt.IsZero())

	_, err = p.RecordDeviceEvent("wind_down_starts", at)
	require.NoError(t, err)
	assert.Equal(t, at, p.Device.WindDownStartsAt)
}
