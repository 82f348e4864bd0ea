package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"iphone-alarms-sync/internal/domain"
)

// Wednesday 2025-01-15 08:00 at UTC+2.
var (
	testLoc = time.FixedZone("UTC+2", 2*60*60)
	testNow = time.Date(2025, 1, 15, 8, 0, 0, 0, testLoc)
)

func ptr[T any](v T) *T { return &v }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t.UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduled struct {
	at       time.Time
	fn       func()
	canceled bool
	ran      bool
}

// manualScheduler only runs callbacks when the test asks it to.
type manualScheduler struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries []*scheduled
}

func newManualScheduler(clock *fakeClock) *manualScheduler {
	return &manualScheduler{clock: clock}
}

func (s *manualScheduler) Schedule(at time.Time, fn func()) domain.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &scheduled{at: at, fn: fn}
	s.entries = append(s.entries, e)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e.canceled = true
	}
}

// Pending returns the instants of live callbacks, earliest first.
func (s *manualScheduler) Pending() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, e := range s.entries {
		if !e.canceled && !e.ran {
			out = append(out, e.at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// RunDue runs every live callback due at the clock's current time,
// including ones scheduled by callbacks it ran.
func (s *manualScheduler) RunDue() int {
	ran := 0
	for {
		s.mu.Lock()
		var next *scheduled
		now := s.clock.Now()
		for _, e := range s.entries {
			if e.canceled || e.ran || e.at.After(now) {
				continue
			}
			if next == nil || e.at.Before(next.at) {
				next = e
			}
		}
		if next != nil {
			next.ran = true
		}
		s.mu.Unlock()
		if next == nil {
			return ran
		}
		next.fn()
		ran++
	}
}

// all returns every entry ever scheduled, for stale-callback tests.
func (s *manualScheduler) all() []*scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*scheduled(nil), s.entries...)
}

type memoryStore struct {
	mu      sync.Mutex
	data    map[string]domain.Options
	saves   int
	failErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]domain.Options)}
}

func (m *memoryStore) Load(_ context.Context, entryID string) (domain.Options, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts, ok := m.data[entryID]
	if !ok {
		return domain.Options{}, domain.ErrOptionsNotFound
	}
	return opts, nil
}

func (m *memoryStore) Save(_ context.Context, entryID string, opts domain.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.data[entryID] = opts
	m.saves++
	return nil
}

func (m *memoryStore) Delete(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, entryID)
	return nil
}

func (m *memoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.FiredEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev domain.FiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []domain.FiredEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.FiredEvent(nil), p.events...)
}

var errDiskFull = errors.New("disk full")

func newTestCoordinator(t *testing.T, store *memoryStore, clock *fakeClock, opts ...Option) Coordinator {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLocation(testLoc)}, opts...)
	c, err := NewCoordinator(context.Background(), "entry-1", store, opts...)
	require.NoError(t, err)
	return c
}

func setupPhone(t *testing.T, c Coordinator, keepDisabled bool) *domain.Phone {
	t.Helper()
	p, err := c.SetupPhone(context.Background(), "Jane's iPhone", "mobile_app_jane", keepDisabled)
	require.NoError(t, err)
	return p
}

func alarmPayload(id string, hour, minute int, enabled bool, days ...string) domain.AlarmPayload {
	return domain.AlarmPayload{
		ID:           id,
		Label:        ptr("Alarm " + id),
		Enabled:      ptr(enabled),
		Hour:         ptr(hour),
		Minute:       ptr(minute),
		Repeats:      ptr(len(days) > 0),
		RepeatDays:   days,
		AllowsSnooze: ptr(true),
	}
}
