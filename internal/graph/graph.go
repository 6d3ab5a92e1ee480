package graph

import (
	"context"
	"fmt"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
	"github.com/vk/flowgrid/internal/topologystore"
	"github.com/zclconf/go-cty/cty"
)

// Manager provides a high-level, thread-safe interface to the pipeline graph
// by composing the topology and node stores.
type Manager struct {
	topology topologystore.Store
	nodes    nodestore.Store
}

// New creates a new graph manager over the given stores.
func New(ts topologystore.Store, ns nodestore.Store) Graph {
	return &Manager{topology: ts, nodes: ns}
}

func (m *Manager) Node(ctx context.Context, id string) (node.Node, bool) {
	return m.nodes.Get(ctx, id)
}

func (m *Manager) Nodes(ctx context.Context) []node.Node {
	return m.nodes.All(ctx)
}

func (m *Manager) Edges(ctx context.Context) []node.Edge {
	return m.topology.Edges(ctx)
}

func (m *Manager) ChildrenOf(ctx context.Context, id string) ([]Child, error) {
	edges, err := m.topology.ChildrenOf(ctx, id)
	if err != nil {
		return nil, err
	}
	children := make([]Child, 0, len(edges))
	for _, e := range edges {
		target, ok := m.nodes.Get(ctx, e.To)
		if !ok {
			return nil, fmt.Errorf("edge target '%s' has no node state", e.To)
		}
		children = append(children, Child{Edge: e, Target: target})
	}
	return children, nil
}

func (m *Manager) Entries(ctx context.Context) []node.Node {
	all := m.nodes.All(ctx)
	var entries []node.Node
	for _, kind := range node.EntryKinds {
		for _, n := range all {
			if n.Kind == kind {
				entries = append(entries, n)
			}
		}
	}
	return entries
}

func (m *Manager) Update(ctx context.Context, id string, p nodestore.Patch) (node.Node, error) {
	return m.nodes.Update(ctx, id, p)
}

func (m *Manager) MarkRunning(ctx context.Context, id string) error {
	ctxlog.FromContext(ctx).Debug("Marking node running.", "node", id)
	_, err := m.nodes.Update(ctx, id, nodestore.StatusPatch(node.StatusRunning))
	return err
}

func (m *Manager) MarkCompleted(ctx context.Context, id string, fields map[string]cty.Value) error {
	ctxlog.FromContext(ctx).Debug("Marking node completed.", "node", id)
	p := nodestore.StatusPatch(node.StatusCompleted).Without(node.FieldError)
	for k, v := range fields {
		p = p.With(k, v)
	}
	_, err := m.nodes.Update(ctx, id, p)
	return err
}

func (m *Manager) MarkFailed(ctx context.Context, id string, nodeErr error) error {
	ctxlog.FromContext(ctx).Debug("Marking node failed.", "node", id, "error", nodeErr)
	msg := "unknown error"
	if nodeErr != nil {
		msg = nodeErr.Error()
	}
	p := nodestore.StatusPatch(node.StatusError).With(node.FieldError, cty.StringVal(msg))
	_, err := m.nodes.Update(ctx, id, p)
	return err
}

func (m *Manager) ResetForRun(ctx context.Context) ([]string, error) {
	var reset []string
	for _, n := range m.nodes.All(ctx) {
		var p nodestore.Patch
		touched := false
		if n.Status == node.StatusError {
			p = nodestore.StatusPatch(node.StatusIdle).Without(node.FieldError)
			reset = append(reset, n.ID)
			touched = true
		}
		if _, ok := n.Fields[node.FieldActivePort]; ok && n.Kind == node.KindCondition {
			p = p.Without(node.FieldActivePort)
			touched = true
		}
		if !touched {
			continue
		}
		if _, err := m.nodes.Update(ctx, n.ID, p); err != nil {
			return reset, fmt.Errorf("reset node '%s': %w", n.ID, err)
		}
	}
	if len(reset) > 0 {
		ctxlog.FromContext(ctx).Debug("Reset errored nodes.", "count", len(reset), "nodes", reset)
	}
	return reset, nil
}
