package engine

import (
	"context"
	"time"

	"github.com/vk/flowgrid/internal/node"
)

// RunInfo identifies a run.
type RunInfo struct {
	ID      string
	Started time.Time
	Entries int
}

// Transition is one node status change within a run.
type Transition struct {
	RunID  string
	NodeID string
	Kind   node.Kind
	From   node.Status
	To     node.Status
	// PayloadDigest fingerprints the payload the node received.
	PayloadDigest string
	// Error is the node's error message for transitions into StatusError.
	Error string
	At    time.Time
}

// Outcome summarizes a finished run.
type Outcome struct {
	Signal     Signal
	Message    string
	Dispatched int
	Finished   time.Time
}

// Observer receives run lifecycle events. Calls are made synchronously from
// the run's goroutine, in order.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo)
	NodeTransition(ctx context.Context, t Transition)
	RunFinished(ctx context.Context, run RunInfo, out Outcome)
}
