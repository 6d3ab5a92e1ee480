package inmemorytopology

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/topologystore"
)

// Store implements the topologystore.Store interface using maps, ordered
// slices and a mutex for thread-safe concurrent access.
type Store struct {
	mu       sync.RWMutex
	kinds    map[string]node.Kind
	order    []string
	edges    []node.Edge
	children map[string][]int // Key: source id, Value: indexes into edges
}

// New creates a new, empty in-memory topology store.
func New() topologystore.Store {
	return &Store{
		kinds:    make(map[string]node.Kind),
		children: make(map[string][]int),
	}
}

// AddNode registers a node id with its kind.
func (s *Store) AddNode(ctx context.Context, id string, kind node.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.kinds[id]; exists {
		if existing != kind {
			return fmt.Errorf("node '%s' already registered as %s", id, existing)
		}
		return nil
	}
	s.kinds[id] = kind
	s.order = append(s.order, id)
	return nil
}

// AddEdge appends a directed edge between two registered nodes.
func (s *Store) AddEdge(ctx context.Context, e node.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.kinds[e.From]; !exists {
		return fmt.Errorf("edge source node '%s' not found in topology", e.From)
	}
	if _, exists := s.kinds[e.To]; !exists {
		return fmt.Errorf("edge target node '%s' not found in topology", e.To)
	}

	s.edges = append(s.edges, e)
	s.children[e.From] = append(s.children[e.From], len(s.edges)-1)
	return nil
}

// ChildrenOf returns the outgoing edges of a node in declaration order.
func (s *Store) ChildrenOf(ctx context.Context, id string) ([]node.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.kinds[id]; !exists {
		return nil, fmt.Errorf("node '%s' not found in topology", id)
	}

	idx := s.children[id]
	out := make([]node.Edge, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.edges[i])
	}
	return out, nil
}

// NodeIDs returns every node id in declaration order.
func (s *Store) NodeIDs(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// KindOf returns the kind a node was registered with.
func (s *Store) KindOf(ctx context.Context, id string) (node.Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kinds[id]
	return k, ok
}

// Edges returns a snapshot of every edge in declaration order.
func (s *Store) Edges(ctx context.Context) []node.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.edges)
}
