// Package nodestore defines the interface for storing and retrieving the
// mutable state of pipeline nodes.
//
// # Why Node Store Exists
//
// The node store is the explicit arena of nodes keyed by id. It isolates
// **mutable node state** (status, configuration fields, produced values) from
// the **immutable graph structure** managed by topologystore.
//
// Every mutation goes through a single Update(id, patch) entry point. An
// update replaces the whole collection snapshot rather than editing a node
// in place, so a reader holding a snapshot never observes a half-applied
// change. The cost is O(n) per update, which is fine for pipelines of tens
// of nodes.
//
// # Lifecycle and Usage
//
// The node store is:
//  1. **Populated** once from the loaded pipeline (all nodes idle)
//  2. **Reset** at the start of every run (errored nodes back to idle)
//  3. **Mutated** by the engine as nodes move through their lifecycle
//  4. **Queried** by the serve mode and the display handlers
//
// # State Transitions
//
// Nodes follow this lifecycle:
//
//	idle → running → completed OR error
package nodestore

import (
	"context"
	"maps"
	"slices"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Store is the interface for managing the mutable state of nodes.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. The engine is the only
// writer during a run, but HTTP handlers read snapshots at any time.
//
// # Typical Implementation
//
// See internal/inmemorystore for the copy-on-write in-memory implementation.
type Store interface {
	// Put inserts a node, or replaces the node with the same id.
	//
	// Used while a pipeline is loaded. The store keeps its own copy of the
	// node's fields.
	Put(ctx context.Context, n node.Node) error

	// Get returns a copy of the node with the given id.
	Get(ctx context.Context, id string) (node.Node, bool)

	// All returns copies of every node in insertion order.
	All(ctx context.Context) []node.Node

	// Update applies a patch to one node and atomically publishes a new
	// collection snapshot. It returns the updated node.
	//
	// Returns an error if the node does not exist.
	Update(ctx context.Context, id string, p Patch) (node.Node, error)

	// Version returns a counter incremented by every successful Put and Update.
	Version(ctx context.Context) uint64
}

// Patch describes a change to one node. A nil Status leaves the status
// untouched; Set fields are written after Unset fields are removed.
type Patch struct {
	Status *node.Status
	Set    map[string]cty.Value
	Unset  []string
}

// StatusPatch returns a patch that only moves the node to s.
func StatusPatch(s node.Status) Patch {
	return Patch{Status: &s}
}

// With returns a copy of the patch that also writes the named field.
func (p Patch) With(name string, v cty.Value) Patch {
	p.Set = maps.Clone(p.Set)
	if p.Set == nil {
		p.Set = make(map[string]cty.Value, 1)
	}
	p.Set[name] = v
	return p
}

// Without returns a copy of the patch that also removes the named fields.
func (p Patch) Without(names ...string) Patch {
	p.Unset = append(slices.Clone(p.Unset), names...)
	return p
}

// Apply returns a copy of n with the patch applied.
func (p Patch) Apply(n node.Node) node.Node {
	out := n.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	for _, name := range p.Unset {
		delete(out.Fields, name)
	}
	for name, v := range p.Set {
		out.Fields[name] = v
	}
	return out
}
