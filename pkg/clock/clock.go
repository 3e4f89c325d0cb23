package clock

import (
	"sync"
	"time"
)

// Clock abstracts time retrieval so snapshot timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct{ t time.Time }

func NewFixed(t time.Time) FixedClock { return FixedClock{t: t} }

func (f FixedClock) Now() time.Time { return f.t }

// SteppingClock starts at a given instant and moves forward by step on
// every call to Now.
type SteppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func NewStepping(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{next: start, step: step}
}

func (s *SteppingClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next = s.next.Add(s.step)
	return t
}
