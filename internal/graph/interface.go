package graph

import (
	"context"

	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// Child pairs an outgoing edge with a snapshot of its target node.
type Child struct {
	Edge   node.Edge
	Target node.Node
}

// Graph is a unified interface for interacting with a pipeline graph,
// combining static topology queries with node state updates.
//
// The graph is the single source of truth for:
//   - **Structure**: which nodes exist and how they connect (via topology store)
//   - **State**: each node's status and fields (via node store)
type Graph interface {
	// Node returns a snapshot of the node with the given id.
	Node(ctx context.Context, id string) (node.Node, bool)

	// Nodes returns snapshots of every node in declaration order.
	Nodes(ctx context.Context) []node.Node

	// Edges returns every edge in declaration order.
	Edges(ctx context.Context) []node.Edge

	// ChildrenOf returns the outgoing edges of a node with their targets,
	// preserving edge declaration order.
	//
	// Returns an error if the node is unknown.
	ChildrenOf(ctx context.Context, id string) ([]Child, error)

	// Entries returns the nodes that can start a traversal, grouped by kind
	// in node.EntryKinds order and by declaration order within a kind.
	Entries(ctx context.Context) []node.Node

	// Update applies a patch to one node. It is the single mutation entry
	// point; the Mark* helpers are built on it.
	Update(ctx context.Context, id string, p nodestore.Patch) (node.Node, error)

	// MarkRunning moves a node to StatusRunning.
	MarkRunning(ctx context.Context, id string) error

	// MarkCompleted moves a node to StatusCompleted, clears any previous
	// error message and writes the given fields.
	MarkCompleted(ctx context.Context, id string, fields map[string]cty.Value) error

	// MarkFailed moves a node to StatusError and records the fault's message
	// in the node's error field.
	MarkFailed(ctx context.Context, id string, nodeErr error) error

	// ResetForRun prepares the graph for a new run: errored nodes go back to
	// StatusIdle and condition nodes lose their transient active port. No
	// other status is altered. It returns the ids whose status was reset.
	ResetForRun(ctx context.Context) ([]string, error)
}
