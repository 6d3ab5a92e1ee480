package node

// Status represents the lifecycle state of a node within a run.
type Status int

const (
	// StatusIdle is the initial state, and the state an errored node is
	// reset to at the start of the next run.
	StatusIdle Status = iota
	// StatusRunning means the node is being dispatched.
	StatusRunning
	// StatusCompleted means the node's handler finished without a fault.
	StatusCompleted
	// StatusError means the node's handler, expression or validation failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends a node's dispatch.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}
