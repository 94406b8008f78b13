package auction

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFires(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{})
	s.Arm("b1", time.Now().Add(10*time.Millisecond), func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("trigger never fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending triggers, got %d", s.Pending())
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	var fired atomic.Bool
	s.Arm("b1", time.Now().Add(20*time.Millisecond), func() { fired.Store(true) })
	s.Cancel("b1")
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatal("canceled trigger fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending triggers, got %d", s.Pending())
	}
}

func TestSchedulerRearmReplaces(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Bool
	s.Arm("b1", time.Now().Add(time.Hour), func() { first.Store(true) })
	done := make(chan struct{})
	s.Arm("b1", time.Now().Add(10*time.Millisecond), func() { second.Store(true); close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement trigger never fired")
	}
	if first.Load() {
		t.Fatal("replaced trigger fired")
	}
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{})
	s.Arm("b1", time.Now().Add(-time.Minute), func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-deadline trigger never fired")
	}
}
