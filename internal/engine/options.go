package engine

import (
	"time"

	"github.com/vk/flowgrid/internal/controlflow"
	"github.com/vk/flowgrid/internal/expr"
)

// DefaultMaxDepth bounds the length of a traversal path.
const DefaultMaxDepth = 256

// Options configures an Engine.
type Options struct {
	// ShareVisited makes the visited set span the whole run instead of one
	// entry node's traversal, so a node reachable from two entries is
	// dispatched once.
	ShareVisited bool
	// MaxDepth bounds the number of hops from an entry node.
	MaxDepth int
	// ExprBudget is the time budget of each expression evaluation.
	ExprBudget time.Duration
	// Sleep replaces the delay primitive's sleeper. Used by tests.
	Sleep controlflow.Sleeper
	// Observers receive run and node lifecycle events.
	Observers []Observer
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.ExprBudget <= 0 {
		o.ExprBudget = expr.DefaultBudget
	}
	if o.Sleep == nil {
		o.Sleep = controlflow.Sleep
	}
	return o
}
