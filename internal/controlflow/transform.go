package controlflow

import (
	"context"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Transform evaluates the node's expression over the payload. On success the
// result replaces the payload. On failure the node is marked errored and the
// original payload is kept. Every outgoing edge fires either way.
func (p *Primitives) Transform(ctx context.Context, n node.Node, payload cty.Value, edges []node.Edge) Result {
	res := Result{Payload: payload, Selected: all(edges), Status: node.StatusCompleted}

	prog, err := p.Cache.Compile(n.String(FieldExpression))
	if err != nil {
		res.Status = node.StatusError
		res.Err = err
		res.Fields = map[string]cty.Value{
			node.FieldError:       cty.StringVal(err.Error()),
			node.FieldSyntaxError: cty.StringVal(err.Error()),
		}
		return res
	}

	out, err := p.Eval.Eval(ctx, prog, payload)
	if err != nil {
		res.Status = node.StatusError
		res.Err = err
		res.Fields = map[string]cty.Value{node.FieldError: cty.StringVal(err.Error())}
		return res
	}

	res.Payload = out
	res.Fields = map[string]cty.Value{node.FieldValue: out}
	return res
}
