package controlflow

import (
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// Prepare returns the patch that brings a freshly loaded or edited node into
// a consistent state: expression nodes get their syntax_error field set or
// cleared, and router nodes get their output count and index clamped. The
// boolean is false when nothing needs to change.
func Prepare(c *expr.Cache, n node.Node) (nodestore.Patch, bool) {
	var p nodestore.Patch
	changed := false

	switch {
	case n.Kind.HasExpression():
		_, err := c.Compile(n.String(FieldExpression))
		_, had := n.Fields[node.FieldSyntaxError]
		if err != nil {
			p = p.With(node.FieldSyntaxError, cty.StringVal(err.Error()))
			changed = true
		} else if had {
			p = p.Without(node.FieldSyntaxError)
			changed = true
		}
	case n.Kind == node.KindRouter:
		for k, v := range ResizeRouter(n, n.Int(FieldOutputs, MinOutputs)) {
			if cur, ok := n.Fields[k]; !ok || !cur.RawEquals(v) {
				p = p.With(k, v)
				changed = true
			}
		}
	}
	return p, changed
}
