package scheduler

// State is the lifecycle of the worker loop. Exactly one State exists per
// process; control commands mutate it, the worker loop reads it every
// iteration and before every sleep.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// Ack is the structured acknowledgment every control command returns.
// Invalid transitions are reported as unchanged, never as errors.
type Ack struct {
	Command string
	Changed bool
	State   State
	Message string
}
