package moderation

import (
	"fmt"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
)

// ExpireFunc runs when an armed timer fires
type ExpireFunc func(handle models.TimerHandle)

// stopper is the part of *time.Timer the scheduler needs
type stopper interface {
	Stop() bool
}

// TimeoutScheduler keeps the in-memory single-shot timers of active
// timeouts. Nothing here is persisted: after a restart the timers are rebuilt
// from the registry with Recover.
type TimeoutScheduler struct {
	clock     Clock
	afterFunc func(d time.Duration, f func()) stopper

	mu      sync.Mutex
	next    models.TimerHandle
	timers  map[models.TimerHandle]stopper
	stopped bool
}

// NewTimeoutScheduler creates a scheduler that reads time from clock
func NewTimeoutScheduler(clock Clock) *TimeoutScheduler {
	if clock == nil {
		clock = systemClock{}
	}
	return &TimeoutScheduler{
		clock: clock,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		timers: make(map[models.TimerHandle]stopper),
	}
}

// remaining returns how long until endTime, never negative
func (s *TimeoutScheduler) remaining(endTime int64) time.Duration {
	d := time.Unix(endTime, 0).Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Schedule arms a timer that calls onExpire at or after endTime (epoch
// seconds). Handles start at 1 and are never reused by this scheduler.
func (s *TimeoutScheduler) Schedule(endTime int64, onExpire ExpireFunc) models.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	if s.stopped {
		logger.Warn(fmt.Sprintf("Scheduler detenido, temporizador #%d no armado", h), "Scheduler")
		return h
	}

	s.timers[h] = s.afterFunc(s.remaining(endTime), func() {
		if !s.claim(h) {
			return
		}
		onExpire(h)
	})
	return h
}

// claim removes h from the pending set; false means it was cancelled
func (s *TimeoutScheduler) claim(h models.TimerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[h]; !ok {
		return false
	}
	delete(s.timers, h)
	return true
}

// Cancel stops a pending timer. Unknown or already fired handles are ignored.
func (s *TimeoutScheduler) Cancel(h models.TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending returns the number of armed timers
func (s *TimeoutScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer and refuses new ones
func (s *TimeoutScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
	s.stopped = true
}

// RecoveredTimeout pairs a stored timeout with its new in-memory handle.
// Armed is false when the timeout had already ended and was expired inline.
type RecoveredTimeout struct {
	Timeout models.ActiveTimeout
	Handle  models.TimerHandle
	Armed   bool
}

// Recover rebuilds timers from stored timeouts. Entries whose end time has
// passed are handed to expireNow in this single pass instead of being armed;
// arm is called for the rest and must return the handle it scheduled.
func (s *TimeoutScheduler) Recover(
	timeouts []models.ActiveTimeout,
	arm func(t models.ActiveTimeout) models.TimerHandle,
	expireNow func(t models.ActiveTimeout),
) []RecoveredTimeout {
	out := make([]RecoveredTimeout, 0, len(timeouts))
	for _, t := range timeouts {
		if s.remaining(t.EndTime) == 0 {
			expireNow(t)
			out = append(out, RecoveredTimeout{Timeout: t, Handle: t.Handle})
			continue
		}
		out = append(out, RecoveredTimeout{Timeout: t, Handle: arm(t), Armed: true})
	}
	return out
}
