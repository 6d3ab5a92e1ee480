package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// frame is one pending dispatch on the work stack.
type frame struct {
	id       string
	payload  cty.Value
	previous cty.Value
	depth    int
}

// traverse walks the graph depth-first from an entry node that has already
// been marked completed. It returns a *RunError when a fault aborts the
// walk; config faults only prune the faulting node's subtree.
func (r *run) traverse(ctx context.Context, root node.Node, value cty.Value) error {
	e := r.engine
	logger := ctxlog.FromContext(ctx).With("entry", root.ID)

	// The root itself starts unvisited: a cycle that leads back to it
	// dispatches it once more as an ordinary target.
	visited := r.shared
	if visited == nil {
		visited = make(map[string]struct{})
	}

	var stack []frame
	push := func(edges []node.Edge, selected []int, f frame) {
		// Reverse order so the first declared edge is popped first.
		for i := len(selected) - 1; i >= 0; i-- {
			f.id = edges[selected[i]].To
			stack = append(stack, f)
		}
	}

	rootEdges, err := r.edgesOf(ctx, root.ID)
	if err != nil {
		return newRunError(SignalOtherError, root.ID, err, "%v", err)
	}
	push(rootEdges, allIndexes(rootEdges), frame{payload: value, previous: payload.Empty, depth: 1})

	for len(stack) > 0 {
		if err := cancelled(ctx); err != nil {
			return err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[f.id]; seen {
			logger.Debug("Skipping visited node.", "node", f.id)
			continue
		}
		visited[f.id] = struct{}{}

		n, ok := e.graph.Node(ctx, f.id)
		if !ok {
			return newRunError(SignalOtherError, f.id, nil, "node '%s' not found", f.id)
		}
		if f.depth > e.opts.MaxDepth {
			return newRunError(SignalOtherError, n.ID, ErrMaxDepth, "node '%s' is deeper than %d hops: %v", n.ID, e.opts.MaxDepth, ErrMaxDepth)
		}

		edges, err := r.edgesOf(ctx, n.ID)
		if err != nil {
			return newRunError(SignalOtherError, n.ID, err, "%v", err)
		}

		nlog := logger.With("node", n.ID, "kind", n.Kind, "depth", f.depth)
		nlog.Debug("▶️ Dispatching node.", "payload_digest", payload.Digest(f.payload))
		if err := r.start(ctx, n, f.payload); err != nil {
			return newRunError(SignalOtherError, n.ID, err, "%v", err)
		}
		r.dispatched++

		next := frame{previous: f.payload, depth: f.depth + 1}
		var selected []int

		switch {
		case n.Kind.IsControlFlow():
			res, err := e.prims.Apply(ctx, n, f.payload, edges)
			if err != nil {
				if ferr := r.fail(ctx, n, f.payload, err, nil); ferr != nil {
					return newRunError(SignalOtherError, n.ID, ferr, "%v", ferr)
				}
				if ctx.Err() != nil {
					return cancelledError(ctx)
				}
				return newRunError(SignalOtherError, n.ID, err, "node '%s' failed: %v", n.ID, err)
			}
			if res.Status == node.StatusError {
				nlog.Warn("Expression failed.", "error", res.Err)
				if err := r.fail(ctx, n, f.payload, res.Err, res.Fields); err != nil {
					return newRunError(SignalOtherError, n.ID, err, "%v", err)
				}
			} else if err := r.complete(ctx, n, f.payload, res.Fields); err != nil {
				return newRunError(SignalOtherError, n.ID, err, "%v", err)
			}
			next.payload = res.Payload
			selected = res.Selected

		case n.Kind.IsEntry():
			// An entry reached through an edge forwards what it received.
			if err := r.complete(ctx, n, f.payload, nil); err != nil {
				return newRunError(SignalOtherError, n.ID, err, "%v", err)
			}
			next.payload = f.payload
			selected = allIndexes(edges)

		default:
			resp, err := e.registry.Dispatch(ctx, registry.Request{Node: n, Payload: f.payload, Previous: f.previous})
			if err != nil {
				if ferr := r.fail(ctx, n, f.payload, err, nil); ferr != nil {
					return newRunError(SignalOtherError, n.ID, ferr, "%v", ferr)
				}
				if ctx.Err() != nil {
					return cancelledError(ctx)
				}
				switch faults.Classify(err) {
				case faults.ClassConfig:
					nlog.Warn("Node is misconfigured, skipping its subtree.", "error", err)
					continue
				case faults.ClassAuth:
					nlog.Error("Node requires authentication.", "error", err)
					return newRunError(SignalAuthRequired, n.ID, errors.Join(faults.ErrAuthRequired, err), "authentication required by node '%s': %v", n.ID, err)
				default:
					nlog.Error("Node failed.", "error", err)
					return newRunError(SignalOtherError, n.ID, err, "node '%s' failed: %v", n.ID, err)
				}
			}
			if err := r.complete(ctx, n, f.payload, resp.Fields); err != nil {
				return newRunError(SignalOtherError, n.ID, err, "%v", err)
			}
			next.payload = resp.Payload
			if next.payload == cty.NilVal {
				next.payload = f.payload
			}
			selected = allIndexes(edges)
		}

		nlog.Debug("✅ Node finished.", "fired", len(selected))
		push(edges, selected, next)
	}
	return nil
}

func (r *run) edgesOf(ctx context.Context, id string) ([]node.Edge, error) {
	children, err := r.engine.graph.ChildrenOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("children of '%s': %w", id, err)
	}
	edges := make([]node.Edge, len(children))
	for i, c := range children {
		edges[i] = c.Edge
	}
	return edges, nil
}

func allIndexes(edges []node.Edge) []int {
	idx := make([]int, len(edges))
	for i := range edges {
		idx[i] = i
	}
	return idx
}
