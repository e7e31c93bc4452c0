package supervisor

import "fmt"

// WorkerState enumerates the lifecycle a supervised worker process moves
// through (spec.md §4.5's Data Model WorkerState).
type WorkerState uint8

const (
	StateStarting WorkerState = iota
	StateReady
	StateDraining
	StateCrashed
)

func (s WorkerState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// validTransitions encodes the only state changes the supervisor allows
// to happen: Starting always leads to either Ready or Crashed, Ready can
// drain (graceful) or crash (unexpected exit), Draining always ends in
// Crashed once the process has actually exited, and a new worker always
// starts back at Starting.
var validTransitions = map[WorkerState][]WorkerState{
	StateStarting: {StateReady, StateCrashed},
	StateReady:    {StateDraining, StateCrashed},
	StateDraining: {StateCrashed},
	StateCrashed:  {StateStarting},
}

type invalidTransition struct {
	from, to WorkerState
}

func (e *invalidTransition) Error() string {
	return fmt.Sprintf("supervisor: invalid worker state transition %s -> %s", e.from, e.to)
}

func checkTransition(from, to WorkerState) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &invalidTransition{from: from, to: to}
}
