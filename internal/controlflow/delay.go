package controlflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Duration converts a wait node's configuration into a duration:
// wait_ms × 1000 when unit is "s", wait_ms milliseconds otherwise.
func Duration(n node.Node) time.Duration {
	ms := n.Float(FieldWaitMs, 0)
	if n.String(FieldUnit) == "s" {
		ms *= 1000
	}
	if ms <= 0 {
		return 0
	}
	ns := ms * float64(time.Millisecond)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// Delay suspends for the node's duration and then fires every edge with the
// payload unchanged. It fails only when ctx is done before the wait ends.
func (p *Primitives) Delay(ctx context.Context, n node.Node, payload cty.Value, edges []node.Edge) (Result, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	d := Duration(n)
	if err := sleep(ctx, d); err != nil {
		return Result{}, fmt.Errorf("wait %s interrupted: %w", d, err)
	}
	return Result{Payload: payload, Selected: all(edges), Status: node.StatusCompleted}, nil
}
