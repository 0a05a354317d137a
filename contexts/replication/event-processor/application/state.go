package application

import (
	"sync"
	"time"

	"schemabridge/internal/shared/events"
)

// DirectionStatus is a point-in-time view of one consume loop.
type DirectionStatus struct {
	Passes     uint64    `json:"passes"`
	Received   uint64    `json:"received"`
	Ignored    uint64    `json:"ignored"`
	Applied    uint64    `json:"applied"`
	Failed     uint64    `json:"failed"`
	Deferred   int       `json:"deferred"`
	Running    bool      `json:"running"`
	LastPassAt time.Time `json:"last_pass_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// RunState is shared by both consume loops and read by the operator API.
type RunState struct {
	mu         sync.RWMutex
	directions map[events.Direction]DirectionStatus
}

func NewRunState() *RunState {
	return &RunState{directions: make(map[events.Direction]DirectionStatus)}
}

func (s *RunState) update(direction events.Direction, mutate func(*DirectionStatus)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.directions[direction]
	mutate(&status)
	s.directions[direction] = status
}

// Snapshot copies the current status of every direction.
func (s *RunState) Snapshot() map[events.Direction]DirectionStatus {
	if s == nil {
		return map[events.Direction]DirectionStatus{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[events.Direction]DirectionStatus, len(s.directions))
	for direction, status := range s.directions {
		out[direction] = status
	}
	return out
}
