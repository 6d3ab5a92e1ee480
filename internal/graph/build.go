package graph

import (
	"context"
	"fmt"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/inmemorystore"
	"github.com/vk/flowgrid/internal/inmemorytopology"
	"github.com/vk/flowgrid/internal/node"
)

// Build translates a loaded pipeline into a Graph backed by in-memory stores.
// Unknown kinds, duplicate ids and dangling edges are rejected.
func Build(ctx context.Context, p *config.Pipeline) (Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building graph from pipeline.", "nodes", len(p.Nodes), "edges", len(p.Edges))

	ts := inmemorytopology.New()
	ns := inmemorystore.New()

	seen := make(map[string]struct{}, len(p.Nodes))
	for _, cn := range p.Nodes {
		kind, ok := node.ParseKind(cn.Kind)
		if !ok {
			return nil, fmt.Errorf("%s: unknown node kind %q", cn.DeclRange, cn.Kind)
		}
		if cn.ID == "" {
			return nil, fmt.Errorf("%s: node of kind %q has an empty id", cn.DeclRange, cn.Kind)
		}
		if _, dup := seen[cn.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate node id %q", cn.DeclRange, cn.ID)
		}
		seen[cn.ID] = struct{}{}

		if err := ts.AddNode(ctx, cn.ID, kind); err != nil {
			return nil, err
		}
		if err := ns.Put(ctx, node.New(cn.ID, kind, cn.Attributes)); err != nil {
			return nil, err
		}
	}

	for _, ce := range p.Edges {
		e := node.Edge{From: ce.From, To: ce.To, Handle: ce.Handle}
		if err := ts.AddEdge(ctx, e); err != nil {
			return nil, fmt.Errorf("%s: %w", ce.DeclRange, err)
		}
	}

	logger.Debug("Graph built.")
	return New(ts, ns), nil
}
