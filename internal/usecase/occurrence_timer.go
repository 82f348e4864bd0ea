package usecase

import (
	"sync"
	"time"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

// TimerState is the lifecycle position of an OccurrenceTimer.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFiring
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerArmed:
		return "armed"
	case TimerFiring:
		return "firing"
	default:
		return "unknown"
	}
}

// Projector computes the next occurrence as seen from now.
type Projector func(now time.Time) (domain.Occurrence, bool)

// Recorder stores an occurrence once it has been reached.
type Recorder func(occ domain.Occurrence)

// DefaultSettleDelay is how long a timer waits before re-projecting after it
// found its occurrence already due.
const DefaultSettleDelay = 500 * time.Millisecond

// OccurrenceTimer keeps exactly one wake-up pending at the next projected
// occurrence. When it fires it records the occurrence and re-arms itself.
// Every Arm cancels whatever was pending before; stale wake-ups that still
// slip through are discarded by generation.
type OccurrenceTimer struct {
	name      string
	clock     domain.Clock
	scheduler domain.Scheduler
	project   Projector
	record    Recorder
	settle    time.Duration

	mu     sync.Mutex
	state  TimerState
	next   domain.Occurrence
	armed  bool
	last   domain.Occurrence
	cancel domain.CancelFunc
	gen    uint64
	closed bool
}

// NewOccurrenceTimer builds an idle timer. Call Arm to start it.
func NewOccurrenceTimer(name string, clock domain.Clock, scheduler domain.Scheduler, project Projector, record Recorder, settle time.Duration) *OccurrenceTimer {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &OccurrenceTimer{
		name:      name,
		clock:     clock,
		scheduler: scheduler,
		project:   project,
		record:    record,
		settle:    settle,
	}
}

// Arm re-projects and replaces any pending wake-up. A pending occurrence that
// is already due is recorded first. It is safe to call from change
// notifications, including ones triggered by this timer's own record.
func (t *OccurrenceTimer) Arm() {
	if due, ok := t.takeDue(t.clock.Now()); ok {
		logging.Infof("timer %s reached %s", t.name, due.At.Format(time.RFC3339))
		t.record(due)
	}
	occ, ok := t.project(t.clock.Now())

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	// Same instant already pending: keep that host timer instead of re-arming.
	if ok && t.state == TimerArmed && t.cancel != nil && sameOccurrence(t.next, occ) {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	if !ok {
		t.state = TimerIdle
		t.next, t.armed = domain.Occurrence{}, false
		t.mu.Unlock()
		logging.Tracef("timer %s idle: nothing to project", t.name)
		return
	}
	t.next, t.armed = occ, true

	now := t.clock.Now()
	if occ.At.After(now) {
		gen := t.gen
		t.state = TimerArmed
		t.cancel = t.scheduler.Schedule(occ.At, func() { t.fire(gen, occ) })
		t.mu.Unlock()
		logging.Tracef("timer %s armed for %s", t.name, occ.At.Format(time.RFC3339))
		return
	}

	// Already due: record it now and look again once the moment has passed.
	gen := t.gen
	t.state = TimerFiring
	t.last = occ
	t.cancel = t.scheduler.Schedule(now.Add(t.settle), func() { t.recheck(gen) })
	t.mu.Unlock()
	logging.Debugf("timer %s found %s already due", t.name, occ.At.Format(time.RFC3339))
	t.record(occ)
}

// Close cancels the pending wake-up. A closed timer ignores further calls.
func (t *OccurrenceTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
	t.closed = true
	t.state = TimerIdle
}

// State returns the current lifecycle state.
func (t *OccurrenceTimer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Next returns the occurrence the timer is waiting for.
func (t *OccurrenceTimer) Next() (domain.Occurrence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, t.armed
}

// Last returns the most recently recorded occurrence.
func (t *OccurrenceTimer) Last() domain.Occurrence {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *OccurrenceTimer) fire(gen uint64, occ domain.Occurrence) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.cancel = nil
	t.state = TimerFiring
	t.last = occ
	t.mu.Unlock()

	logging.Infof("timer %s reached %s", t.name, occ.At.Format(time.RFC3339))
	t.record(occ)
	t.Arm()
}

func (t *OccurrenceTimer) recheck(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.cancel = nil
	t.mu.Unlock()
	t.Arm()
}

// takeDue claims a pending occurrence whose instant has passed without the
// wake-up having run yet, so re-projection cannot skip over it.
func (t *OccurrenceTimer) takeDue(now time.Time) (domain.Occurrence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state != TimerArmed || !t.armed || t.next.At.After(now) {
		return domain.Occurrence{}, false
	}
	t.stopLocked()
	t.state = TimerFiring
	t.last = t.next
	return t.next, true
}

func sameOccurrence(a, b domain.Occurrence) bool {
	return a.At.Equal(b.At) && a.AlarmID == b.AlarmID
}

func (t *OccurrenceTimer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}
