package auction

import (
	"sync"
	"time"
)

// Scheduler arms one deferred expiry trigger per booking. Triggers are
// canceled on early resolution; a stale fire is harmless because
// ResolveOnExpiry is idempotent, cancellation just avoids the wasted work.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run at the given instant, replacing any trigger
// already armed for the booking.
func (s *Scheduler) Arm(bookingID string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[bookingID]; ok {
		t.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.timers[bookingID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, bookingID)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the booking's pending trigger, if any.
func (s *Scheduler) Cancel(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[bookingID]; ok {
		t.Stop()
		delete(s.timers, bookingID)
	}
}

// Pending returns the number of armed triggers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
