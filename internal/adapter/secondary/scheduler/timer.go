package scheduler

import (
	"sync"
	"time"

	"iphone-alarms-sync/internal/domain"
)

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimerScheduler implements domain.Scheduler on runtime timers.
// This is a secondary adapter.
type TimerScheduler struct {
	clock domain.Clock

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
}

// NewTimerScheduler returns a scheduler measuring delays against clock.
func NewTimerScheduler(clock domain.Clock) *TimerScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TimerScheduler{clock: clock, pending: make(map[*time.Timer]struct{})}
}

// Schedule runs fn on its own goroutine once at has been reached.
// Instants in the past run as soon as possible.
func (s *TimerScheduler) Schedule(at time.Time, fn func()) domain.CancelFunc {
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	var t *time.Timer
	s.mu.Lock()
	t = time.AfterFunc(delay, func() {
		// t is assigned under mu, so read it under mu too.
		s.mu.Lock()
		delete(s.pending, t)
		s.mu.Unlock()
		fn()
	})
	s.pending[t] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			s.forget(t)
		})
	}
}

// Pending returns how many callbacks have neither run nor been cancelled.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels everything still pending.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.pending {
		t.Stop()
	}
	s.pending = make(map[*time.Timer]struct{})
}

func (s *TimerScheduler) forget(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, t)
}
