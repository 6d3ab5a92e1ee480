package inmemorystore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
)

// snapshot is one immutable generation of the node collection.
type snapshot struct {
	version uint64
	order   []string
	nodes   map[string]node.Node
}

// Store is an in-memory, copy-on-write implementation of nodestore.Store.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[snapshot]
}

// New creates a new, empty in-memory node store.
func New() nodestore.Store {
	s := &Store{}
	s.current.Store(&snapshot{nodes: make(map[string]node.Node)})
	return s
}

// Put inserts or replaces a node.
func (s *Store) Put(ctx context.Context, n node.Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.copy()
	if _, exists := cur.nodes[n.ID]; !exists {
		next.order = append(next.order, n.ID)
	}
	next.nodes[n.ID] = n.Clone()
	s.current.Store(next)
	return nil
}

// Get returns a copy of the node with the given id.
func (s *Store) Get(ctx context.Context, id string) (node.Node, bool) {
	n, ok := s.current.Load().nodes[id]
	if !ok {
		return node.Node{}, false
	}
	return n.Clone(), true
}

// All returns copies of every node in insertion order.
func (s *Store) All(ctx context.Context) []node.Node {
	snap := s.current.Load()
	out := make([]node.Node, 0, len(snap.order))
	for _, id := range snap.order {
		out = append(out, snap.nodes[id].Clone())
	}
	return out
}

// Update applies a patch to one node and publishes a new snapshot.
func (s *Store) Update(ctx context.Context, id string, p nodestore.Patch) (node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	n, ok := cur.nodes[id]
	if !ok {
		return node.Node{}, fmt.Errorf("node '%s' not found in store", id)
	}

	next := cur.copy()
	updated := p.Apply(n)
	next.nodes[id] = updated
	s.current.Store(next)
	return updated.Clone(), nil
}

// Version returns the generation counter of the current snapshot.
func (s *Store) Version(ctx context.Context) uint64 {
	return s.current.Load().version
}

// copy returns the next generation with the same contents. Node values are
// shared; Apply and Put always install fresh field maps, so sharing is safe.
func (snap *snapshot) copy() *snapshot {
	return &snapshot{
		version: snap.version + 1,
		order:   slices.Clone(snap.order),
		nodes:   maps.Clone(snap.nodes),
	}
}
