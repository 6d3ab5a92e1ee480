package controlflow

import (
	"fmt"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Router bounds and modes.
const (
	MinOutputs = 1
	MaxOutputs = 8

	ModeAll    = "all"
	ModeSingle = "single"
)

// OutputHandle names the router port for a 0-based index.
func OutputHandle(i int) string {
	return fmt.Sprintf("out-%d", i)
}

// Outputs returns the node's output count clamped to [MinOutputs, MaxOutputs].
func Outputs(n node.Node) int {
	return clamp(n.Int(FieldOutputs, MinOutputs), MinOutputs, MaxOutputs)
}

// Route selects outgoing edges for a router node. In "all" mode every edge
// fires in declaration order. In "single" mode exactly the port
// out-{clamp(index, 0, N-1)} fires, falling back to the edge at that
// position.
func Route(n node.Node, payload cty.Value, edges []node.Edge) Result {
	res := Result{Payload: payload, Status: node.StatusCompleted}
	if n.String(FieldMode) != ModeSingle {
		res.Selected = all(edges)
		return res
	}

	idx := clamp(n.Int(FieldIndex, 0), 0, Outputs(n)-1)
	res.Selected = selectPort(edges, OutputHandle(idx), idx)
	return res
}

// ResizeRouter returns the fields that change when a router's output count
// is set to outputs: the clamped count and, when the current index no longer
// fits, an index clamped to the last output.
func ResizeRouter(n node.Node, outputs int) map[string]cty.Value {
	outputs = clamp(outputs, MinOutputs, MaxOutputs)
	fields := map[string]cty.Value{FieldOutputs: cty.NumberIntVal(int64(outputs))}
	if idx := n.Int(FieldIndex, 0); idx >= outputs || idx < 0 {
		fields[FieldIndex] = cty.NumberIntVal(int64(clamp(idx, 0, outputs-1)))
	}
	return fields
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
