package engine

import (
	"errors"
	"fmt"
)

// Signal is the terminal outcome of a run.
type Signal int

const (
	SignalOk Signal = iota
	SignalNoInputNode
	SignalValidationError
	SignalAuthRequired
	SignalOtherError
	SignalCancelled
)

func (s Signal) String() string {
	switch s {
	case SignalOk:
		return "ok"
	case SignalNoInputNode:
		return "no_input_node"
	case SignalValidationError:
		return "validation_error"
	case SignalAuthRequired:
		return "auth_required"
	case SignalCancelled:
		return "cancelled"
	default:
		return "other_error"
	}
}

var (
	// ErrRunInProgress is returned by Run while another run is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrClaimSpent is returned by Claim.Run when the claim was already
	// used or released.
	ErrClaimSpent = errors.New("run claim already spent")
	// ErrMaxDepth is the fault raised when a traversal goes deeper than
	// Options.MaxDepth.
	ErrMaxDepth = errors.New("maximum traversal depth exceeded")
	// ErrCancelled is the cause of runs stopped by Cancel or by their context.
	ErrCancelled = errors.New("run cancelled")
)

// RunError carries the terminal signal of a run that did not end Ok.
type RunError struct {
	Signal  Signal
	Message string
	// NodeID is the node whose fault decided the signal, if any.
	NodeID string
	Err    error
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Signal.String()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// SignalOf maps the error returned by Run to its terminal signal.
func SignalOf(err error) Signal {
	if err == nil {
		return SignalOk
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.Signal
	}
	return SignalOtherError
}

func newRunError(sig Signal, nodeID string, err error, format string, args ...any) *RunError {
	return &RunError{Signal: sig, NodeID: nodeID, Err: err, Message: fmt.Sprintf(format, args...)}
}
