// Package timersvc is a dedicated-goroutine callback scheduler: exactly one
// goroutine sleeps until the earliest pending timer expires and dispatches
// it, the same single-dispatcher design as
// original_source/src/munged/timer.c's _timer_thread, rebuilt on
// container/heap and time.Timer instead of a sorted linked list and
// pthread_cond_timedwait.
package timersvc

import (
	"container/heap"
	"sync"
	"time"
)

// Service is a min-heap of pending callbacks served by one dispatch
// goroutine. The zero value is not usable; construct with New and Stop it
// when done.
type Service struct {
	mu     sync.Mutex
	h      timerHeap
	nextID int64

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// New starts the dispatch goroutine and returns a ready Service.
func New() *Service {
	s := &Service{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	heap.Init(&s.h)
	go s.run()
	return s
}

// SetAbsolute schedules cb to run at when and returns a timer ID usable
// with Cancel. when may be in the past, in which case cb runs on the next
// dispatch cycle.
func (s *Service) SetAbsolute(when time.Time, cb Callback) int64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	e := &entry{id: id, when: when, cb: cb}
	heap.Push(&s.h, e)
	becameEarliest := s.h[0] == e
	s.mu.Unlock()

	if becameEarliest {
		s.signal()
	}
	return id
}

// SetRelative schedules cb to run after d elapses from now.
func (s *Service) SetRelative(d time.Duration, cb Callback) int64 {
	return s.SetAbsolute(time.Now().Add(d), cb)
}

// Cancel removes the timer identified by id if it has not yet fired.
// It reports whether a pending timer was found and removed.
func (s *Service) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.h {
		if e.id == id {
			heap.Remove(&s.h, i)
			return true
		}
	}
	return false
}

// Stop halts the dispatch goroutine. Pending timers are discarded without
// running; it is not an error to call Stop more than once.
func (s *Service) Stop() {
	s.stop.Do(func() { close(s.done) })
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.mu.Lock()
		hasNext := len(s.h) > 0
		var until time.Duration
		if hasNext {
			until = time.Until(s.h[0].when)
		}
		s.mu.Unlock()

		if !hasNext {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		if until <= 0 {
			s.dispatchExpired()
			continue
		}

		timer.Reset(until)
		select {
		case <-timer.C:
			s.dispatchExpired()
		case <-s.wake:
			drainTimer(timer)
		case <-s.done:
			drainTimer(timer)
			return
		}
	}
}

// dispatchExpired pops and runs every timer whose expiration is not after
// now. All expired timers are collected before any callback runs, matching
// timer.c's "dispatch all expired timers before rescanning" comment: a
// callback that sets a new timer must not be visible to this same sweep.
func (s *Service) dispatchExpired() {
	now := time.Now()
	s.mu.Lock()
	var expired []*entry
	for len(s.h) > 0 && !s.h[0].when.After(now) {
		expired = append(expired, heap.Pop(&s.h).(*entry))
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.cb()
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
