// Package topologystore defines the interface for storing and retrieving the
// static structure of a pipeline graph.
//
// # Why Topology Store Exists
//
// The topology store isolates the **immutable graph structure** (node ids and
// their directed, optionally handle-tagged edges) from the **mutable node
// state** (status, fields, payload values) managed by nodestore.
//
// The engine never mutates the edge set: the store is populated once while a
// pipeline is built and only read while it runs. Keeping the two apart means
// readers of structure never contend with the state writes the engine issues
// on every dispatch.
//
// # Ordering
//
// Edge declaration order is significant. For any two edges leaving the same
// node, the one declared first is traversed (with its entire subtree) before
// the next one starts, and the positional fallbacks of the branch and router
// primitives index into this order. Implementations MUST preserve it.
package topologystore

import (
	"context"

	"github.com/vk/flowgrid/internal/node"
)

// Store is the interface for managing the static topology of a pipeline.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use: the serve mode exposes the
// graph to HTTP handlers while a run is in flight.
//
// # Typical Implementation
//
// See internal/inmemorytopology for the in-memory implementation using maps,
// slices and sync.RWMutex.
type Store interface {
	// AddNode registers a node id with its kind.
	//
	// Adding the same id twice with the same kind is idempotent. Adding an id
	// that already exists with a different kind returns an error.
	AddNode(ctx context.Context, id string, kind node.Kind) error

	// AddEdge appends a directed edge. Both endpoints must already exist.
	AddEdge(ctx context.Context, e node.Edge) error

	// ChildrenOf returns the outgoing edges of a node in declaration order.
	//
	// Returns an error if the node is unknown. A node without outgoing
	// edges yields an empty, non-nil slice.
	ChildrenOf(ctx context.Context, id string) ([]node.Edge, error)

	// NodeIDs returns every node id in declaration order.
	NodeIDs(ctx context.Context) []string

	// KindOf returns the kind a node was registered with.
	KindOf(ctx context.Context, id string) (node.Kind, bool)

	// Edges returns a snapshot of every edge in declaration order.
	Edges(ctx context.Context) []node.Edge
}
