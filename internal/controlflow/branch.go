package controlflow

import (
	"context"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Branch ports.
const (
	PortTrue  = "true"
	PortFalse = "false"
)

// Branch evaluates the node's boolean expression and selects the edges of
// the matching port. A compile or evaluation failure marks the node errored
// and routes to the false port. The payload passes through unchanged.
func (p *Primitives) Branch(ctx context.Context, n node.Node, payload cty.Value, edges []node.Edge) Result {
	res := Result{Payload: payload, Status: node.StatusCompleted, Fields: map[string]cty.Value{}}

	port := PortFalse
	prog, err := p.Cache.Compile(n.String(FieldExpression))
	if err != nil {
		res.Fields[node.FieldSyntaxError] = cty.StringVal(err.Error())
	} else {
		var ok bool
		ok, err = p.Eval.EvalBool(ctx, prog, payload)
		if ok {
			port = PortTrue
		}
	}
	if err != nil {
		res.Status = node.StatusError
		res.Err = err
		res.Fields[node.FieldError] = cty.StringVal(err.Error())
	}

	res.Fields[node.FieldActivePort] = cty.StringVal(port)
	position := 0
	if port == PortFalse {
		position = 1
	}
	res.Selected = selectPort(edges, port, position)
	return res
}

// selectPort returns every edge tagged with handle. When none is, it falls
// back to the edge at position in the full outgoing list.
func selectPort(edges []node.Edge, handle string, position int) []int {
	var picked []int
	for i, e := range edges {
		if e.Handle == handle {
			picked = append(picked, i)
		}
	}
	if len(picked) > 0 {
		return picked
	}
	if position >= 0 && position < len(edges) {
		return []int{position}
	}
	return nil
}
