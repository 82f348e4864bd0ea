package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerScheduler_RunsAtInstant(t *testing.T) {
	s := NewTimerScheduler(SystemClock{})
	done := make(chan time.Time, 1)

	start := time.Now()
	s.Schedule(time.Now().Add(20*time.Millisecond), func() { done <- time.Now() })

	select {
	case ranAt := <-done:
		assert.GreaterOrEqual(t, ranAt.Sub(start), 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerScheduler_PastInstantRunsImmediately(t *testing.T) {
	s := NewTimerScheduler(nil)
	done := make(chan struct{})
	s.Schedule(time.Now().Add(-time.Hour), func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestTimerScheduler_Cancel(t *testing.T) {
	s := NewTimerScheduler(SystemClock{})
	var ran atomic.Bool

	cancel := s.Schedule(time.Now().Add(30*time.Millisecond), func() { ran.Store(true) })
	assert.Equal(t, 1, s.Pending())
	cancel()
	cancel()
	assert.Equal(t, 0, s.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestTimerScheduler_Stop(t *testing.T) {
	s := NewTimerScheduler(SystemClock{})
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		s.Schedule(time.Now().Add(30*time.Millisecond), func() { ran.Add(1) })
	}
	s.Stop()
	assert.Equal(t, 0, s.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, ran.Load())
}
