// Package snapshot holds the host's latest view of the board: last reported
// timer remaining, clock time and distance. The status monitor is the only
// writer; query paths read a copy. Constructed explicitly and passed where
// needed rather than living in package globals.
package snapshot

import (
	"sync"
	"time"
)

// State is a point-in-time copy of the snapshot.
type State struct {
	TimerRemaining int
	TimerActive    bool
	ClockTime      string  // "HH:MM:SS", empty until a clock tick is seen
	Distance       float64 // last reading, -1 for no echo, 0 until seen
	LastUpdate     time.Time
}

type Snapshot struct {
	mu    sync.Mutex
	state State

	// now is swappable for tests.
	now func() time.Time
}

func New() *Snapshot {
	return &Snapshot{now: time.Now}
}

func (s *Snapshot) SetTimer(remaining int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TimerRemaining = remaining
	s.state.TimerActive = active
	s.state.LastUpdate = s.now()
}

func (s *Snapshot) SetClock(hms string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ClockTime = hms
	s.state.LastUpdate = s.now()
}

func (s *Snapshot) SetDistance(cm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Distance = cm
	s.state.LastUpdate = s.now()
}

func (s *Snapshot) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
