package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

// PhoneTimerName identifies the aggregate next-alarm timer in snapshots.
const PhoneTimerName = "phone"

// TimerStatus is a read-only view of one timer.
type TimerStatus struct {
	Name  string
	State TimerState
	Next  domain.Occurrence
	Armed bool
}

// OccurrenceTracker keeps one OccurrenceTimer per alarm plus one for the
// phone's overall next alarm, following coordinator changes.
type OccurrenceTracker struct {
	coord     Coordinator
	clock     domain.Clock
	scheduler domain.Scheduler
	settle    time.Duration

	mu          sync.Mutex
	alarms      map[string]*OccurrenceTimer
	phone       *OccurrenceTimer
	unsubscribe func()
	running     bool
}

// NewOccurrenceTracker wires timers to coord. Nothing is scheduled before Start.
func NewOccurrenceTracker(coord Coordinator, clock domain.Clock, scheduler domain.Scheduler, settle time.Duration) *OccurrenceTracker {
	return &OccurrenceTracker{
		coord:     coord,
		clock:     clock,
		scheduler: scheduler,
		settle:    settle,
		alarms:    make(map[string]*OccurrenceTimer),
	}
}

// Start subscribes to the coordinator and arms every timer.
func (tr *OccurrenceTracker) Start() {
	tr.mu.Lock()
	if tr.running {
		tr.mu.Unlock()
		return
	}
	tr.running = true
	tr.unsubscribe = tr.coord.Subscribe(tr.Reconcile)
	tr.mu.Unlock()

	tr.Reconcile()
}

// Stop unsubscribes and cancels every pending wake-up.
func (tr *OccurrenceTracker) Stop() {
	tr.mu.Lock()
	if !tr.running {
		tr.mu.Unlock()
		return
	}
	tr.running = false
	if tr.unsubscribe != nil {
		tr.unsubscribe()
		tr.unsubscribe = nil
	}
	timers := tr.allLocked()
	tr.alarms = make(map[string]*OccurrenceTimer)
	tr.phone = nil
	tr.mu.Unlock()

	for _, t := range timers {
		t.Close()
	}
}

// Reconcile creates timers for new alarms, closes those of removed alarms
// and re-arms the rest against the current state.
func (tr *OccurrenceTracker) Reconcile() {
	phone := tr.coord.Phone()

	tr.mu.Lock()
	if !tr.running {
		tr.mu.Unlock()
		return
	}
	var closed []*OccurrenceTimer
	if phone == nil {
		closed = tr.allLocked()
		tr.alarms = make(map[string]*OccurrenceTimer)
		tr.phone = nil
		tr.mu.Unlock()
		for _, t := range closed {
			t.Close()
		}
		return
	}

	for id, t := range tr.alarms {
		if _, ok := phone.Alarms[id]; !ok {
			delete(tr.alarms, id)
			closed = append(closed, t)
		}
	}
	for id := range phone.Alarms {
		if _, ok := tr.alarms[id]; !ok {
			tr.alarms[id] = tr.newAlarmTimer(id)
		}
	}
	if tr.phone == nil {
		tr.phone = tr.newPhoneTimer()
	}
	armed := tr.allLocked()
	tr.mu.Unlock()

	for _, t := range closed {
		t.Close()
	}
	// Arming may record an occurrence, which notifies back into Reconcile.
	for _, t := range armed {
		t.Arm()
	}
}

// Snapshot lists every timer, the phone timer first and alarms by id.
func (tr *OccurrenceTracker) Snapshot() []TimerStatus {
	tr.mu.Lock()
	ids := make([]string, 0, len(tr.alarms))
	for id := range tr.alarms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []TimerStatus
	if tr.phone != nil {
		out = append(out, status(PhoneTimerName, tr.phone))
	}
	for _, id := range ids {
		out = append(out, status(id, tr.alarms[id]))
	}
	tr.mu.Unlock()
	return out
}

func status(name string, t *OccurrenceTimer) TimerStatus {
	next, armed := t.Next()
	return TimerStatus{Name: name, State: t.State(), Next: next, Armed: armed}
}

func (tr *OccurrenceTracker) allLocked() []*OccurrenceTimer {
	out := make([]*OccurrenceTimer, 0, len(tr.alarms)+1)
	if tr.phone != nil {
		out = append(out, tr.phone)
	}
	for _, t := range tr.alarms {
		out = append(out, t)
	}
	return out
}

func (tr *OccurrenceTracker) newAlarmTimer(id string) *OccurrenceTimer {
	project := func(now time.Time) (domain.Occurrence, bool) {
		a, ok := tr.coord.Alarm(id)
		if !ok {
			return domain.Occurrence{}, false
		}
		at, ok := domain.NextOccurrence(a, now, tr.coord.Location())
		return domain.Occurrence{At: at, AlarmID: id}, ok
	}
	record := func(occ domain.Occurrence) {
		if err := tr.coord.RecordOccurrence(context.Background(), id, occ.At); err != nil {
			logging.Warnf("record occurrence of %s: %v", id, err)
		}
	}
	return NewOccurrenceTimer("alarm "+id, tr.clock, tr.scheduler, project, record, tr.settle)
}

func (tr *OccurrenceTracker) newPhoneTimer() *OccurrenceTimer {
	project := func(now time.Time) (domain.Occurrence, bool) {
		return domain.NextPhoneAlarm(tr.coord.Phone(), now, tr.coord.Location())
	}
	record := func(occ domain.Occurrence) {
		if err := tr.coord.RecordPhoneOccurrence(context.Background(), occ); err != nil {
			logging.Warnf("record next phone alarm: %v", err)
		}
	}
	return NewOccurrenceTimer(PhoneTimerName, tr.clock, tr.scheduler, project, record, tr.settle)
}
