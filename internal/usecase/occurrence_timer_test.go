package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iphone-alarms-sync/internal/domain"
)

type timerHarness struct {
	clock *fakeClock
	sched *manualScheduler
	timer *OccurrenceTimer

	mu       sync.Mutex
	times    []time.Time
	recorded []domain.Occurrence
}

// newTimerHarness projects onto the first of times strictly after now.
func newTimerHarness(times ...time.Time) *timerHarness {
	h := &timerHarness{clock: newFakeClock(testNow), times: times}
	h.sched = newManualScheduler(h.clock)
	h.timer = NewOccurrenceTimer("test", h.clock, h.sched, h.project, h.record, time.Second)
	return h
}

func (h *timerHarness) project(now time.Time) (domain.Occurrence, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, at := range h.times {
		if at.After(now) {
			return domain.Occurrence{At: at, AlarmID: "a1"}, true
		}
	}
	return domain.Occurrence{}, false
}

func (h *timerHarness) record(occ domain.Occurrence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, occ)
}

func (h *timerHarness) setTimes(times ...time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.times = times
}

func (h *timerHarness) Recorded() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Time, 0, len(h.recorded))
	for _, occ := range h.recorded {
		out = append(out, occ.At)
	}
	return out
}

func TestOccurrenceTimer_FiresAndRearms(t *testing.T) {
	first := testNow.Add(time.Hour).UTC()
	second := first.Add(24 * time.Hour)
	h := newTimerHarness(first, second)

	h.timer.Arm()
	assert.Equal(t, TimerArmed, h.timer.State())
	assert.Equal(t, []time.Time{first}, h.sched.Pending())
	next, ok := h.timer.Next()
	require.True(t, ok)
	assert.Equal(t, first, next.At)

	h.clock.Set(first)
	assert.Equal(t, 1, h.sched.RunDue())
	assert.Equal(t, []time.Time{first}, h.Recorded())
	assert.Equal(t, first, h.timer.Last().At)
	assert.Equal(t, TimerArmed, h.timer.State())
	assert.Equal(t, []time.Time{second}, h.sched.Pending())
}

func TestOccurrenceTimer_IdleWithoutProjection(t *testing.T) {
	h := newTimerHarness()

	h.timer.Arm()
	assert.Equal(t, TimerIdle, h.timer.State())
	assert.Empty(t, h.sched.Pending())
	_, ok := h.timer.Next()
	assert.False(t, ok)
	assert.Empty(t, h.Recorded())
}

func TestOccurrenceTimer_KeepsSinglePendingWakeup(t *testing.T) {
	first := testNow.Add(time.Hour).UTC()
	later := first.Add(time.Hour)
	h := newTimerHarness(first)

	h.timer.Arm()
	h.timer.Arm()
	assert.Equal(t, []time.Time{first}, h.sched.Pending())

	h.setTimes(later)
	h.timer.Arm()
	assert.Equal(t, []time.Time{later}, h.sched.Pending())
}

func TestOccurrenceTimer_StaleCallbackIsIgnored(t *testing.T) {
	first := testNow.Add(time.Hour).UTC()
	h := newTimerHarness(first)
	h.timer.Arm()
	stale := h.sched.all()[0]

	h.setTimes(first.Add(time.Hour))
	h.timer.Arm()

	h.clock.Set(first)
	stale.fn()
	assert.Empty(t, h.Recorded())
	assert.Equal(t, TimerArmed, h.timer.State())
}

func TestOccurrenceTimer_AlreadyDueRecordsThenSettles(t *testing.T) {
	h := newTimerHarness()
	due := testNow.UTC()
	// A projector that hands back an instant that is no longer in the future.
	h.timer = NewOccurrenceTimer("due", h.clock, h.sched,
		func(time.Time) (domain.Occurrence, bool) {
			return domain.Occurrence{At: due, AlarmID: "a1"}, true
		}, h.record, time.Second)

	h.timer.Arm()
	assert.Equal(t, TimerFiring, h.timer.State())
	assert.Equal(t, []time.Time{due}, h.Recorded())
	assert.Equal(t, []time.Time{due.Add(time.Second)}, h.sched.Pending())

	later := due.Add(time.Hour)
	due = later
	h.clock.Advance(time.Second)
	h.sched.RunDue()
	assert.Equal(t, TimerArmed, h.timer.State())
	assert.Equal(t, []time.Time{later}, h.sched.Pending())
}

func TestOccurrenceTimer_ArmRecordsOverdueBeforeReprojecting(t *testing.T) {
	first := testNow.Add(time.Hour).UTC()
	second := first.Add(24 * time.Hour)
	h := newTimerHarness(first, second)
	h.timer.Arm()

	// The instant passed but the wake-up has not run yet.
	h.clock.Set(first)
	h.timer.Arm()

	assert.Equal(t, []time.Time{first}, h.Recorded())
	assert.Equal(t, []time.Time{second}, h.sched.Pending())
	assert.Zero(t, h.sched.RunDue())
}

func TestOccurrenceTimer_Close(t *testing.T) {
	first := testNow.Add(time.Hour).UTC()
	h := newTimerHarness(first)
	h.timer.Arm()

	h.timer.Close()
	h.timer.Close()
	assert.Empty(t, h.sched.Pending())
	assert.Equal(t, TimerIdle, h.timer.State())

	h.timer.Arm()
	assert.Empty(t, h.sched.Pending())
}

func TestTimerState_String(t *testing.T) {
	assert.Equal(t, "idle", TimerIdle.String())
	assert.Equal(t, "armed", TimerArmed.String())
	assert.Equal(t, "firing", TimerFiring.String())
}
