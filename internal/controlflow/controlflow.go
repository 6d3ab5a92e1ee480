package controlflow

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Field names read by the primitives.
const (
	FieldExpression = "expression"
	FieldOutputs    = "outputs"
	FieldMode       = "mode"
	FieldIndex      = "index"
	FieldWaitMs     = "wait_ms"
	FieldUnit       = "unit"
)

// Result is the outcome of applying a primitive.
type Result struct {
	// Payload is forwarded along every selected edge.
	Payload cty.Value
	// Selected holds indexes into the edges passed to Apply.
	Selected []int
	// Status is the node's terminal status for this dispatch.
	Status node.Status
	// Fields are written to the node alongside Status.
	Fields map[string]cty.Value
	// Err is the expression fault that put the node in StatusError. It is
	// recorded on the node and never aborts the traversal.
	Err error
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Primitives bundles the collaborators the primitives need.
type Primitives struct {
	Cache *expr.Cache
	Eval  *expr.Evaluator
	Sleep Sleeper
}

// New returns primitives with a fresh compile cache, the given expression
// budget and the real sleeper.
func New(budget time.Duration) *Primitives {
	return &Primitives{
		Cache: expr.NewCache(),
		Eval:  expr.NewEvaluator(budget),
		Sleep: Sleep,
	}
}

// Apply runs the primitive matching n's kind. The only error it returns is a
// cancelled delay; expression faults are reported through Result.Err.
func (p *Primitives) Apply(ctx context.Context, n node.Node, payload cty.Value, edges []node.Edge) (Result, error) {
	switch n.Kind {
	case node.KindFunction:
		return p.Transform(ctx, n, payload, edges), nil
	case node.KindCondition:
		return p.Branch(ctx, n, payload, edges), nil
	case node.KindRouter:
		return Route(n, payload, edges), nil
	case node.KindWait:
		return p.Delay(ctx, n, payload, edges)
	default:
		return Result{}, fmt.Errorf("node kind %q is not a control-flow primitive", n.Kind)
	}
}

// all selects every edge.
func all(edges []node.Edge) []int {
	idx := make([]int, len(edges))
	for i := range edges {
		idx[i] = i
	}
	return idx
}
