package entities

import "fmt"

// ProcessingState tracks one envelope through a processing pass.
type ProcessingState string

const (
	StateReceived    ProcessingState = "received"
	StateIgnored     ProcessingState = "ignored"
	StateResolving   ProcessingState = "resolving"
	StateReady       ProcessingState = "ready"
	StateDeferred    ProcessingState = "deferred"
	StateSorted      ProcessingState = "sorted"
	StateDispatching ProcessingState = "dispatching"
	StateApplied     ProcessingState = "applied"
	StateFailed      ProcessingState = "failed"
)

var transitions = map[ProcessingState][]ProcessingState{
	StateReceived:    {StateIgnored, StateResolving},
	StateResolving:   {StateReady, StateDeferred},
	StateReady:       {StateSorted, StateDeferred},
	StateDeferred:    {StateResolving},
	StateSorted:      {StateDispatching},
	StateDispatching: {StateApplied, StateFailed, StateIgnored},
}

func (s ProcessingState) CanTransition(to ProcessingState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a state change.
func (s ProcessingState) Transition(to ProcessingState) (ProcessingState, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("invalid envelope state transition %s -> %s", s, to)
	}
	return to, nil
}
