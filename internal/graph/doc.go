// Package graph provides a unified facade over the pipeline graph, combining
// static topology (node ids and ordered edges) and mutable node state.
//
// # Architecture: The Facade Pattern
//
// The Graph is a thin facade over two specialized stores:
//
//	┌─────────────────────────────────────┐
//	│           Graph Facade              │
//	│  (Unified API for the engine and    │
//	│   the serve mode)                   │
//	└──────────┬────────────┬─────────────┘
//	           │            │
//	           ▼            ▼
//	  ┌────────────┐  ┌────────────┐
//	  │  Topology  │  │ Node State │
//	  │   Store    │  │   Store    │
//	  │ (Structure)│  │  (Fields)  │
//	  └────────────┘  └────────────┘
//
// **Topology Store** (topologystore.Store):
//   - Node ids, kinds and handle-tagged edges in declaration order
//   - Populated by Build, read-only afterwards
//
// **Node Store** (nodestore.Store):
//   - Status and fields of every node
//   - Updated through Update and the Mark* helpers, one snapshot per change
//
// # Usage Patterns
//
// **Engine** walks the graph from its entry nodes:
//
//	for _, entry := range g.Entries(ctx) {
//	    children, _ := g.ChildrenOf(ctx, entry.ID)
//	    for _, c := range children {
//	        g.MarkRunning(ctx, c.Target.ID)
//	        // dispatch, then MarkCompleted or MarkFailed
//	    }
//	}
//
// # Thread-Safety
//
// All Graph methods are thread-safe. Thread-safety is guaranteed by delegating
// to the underlying thread-safe stores.
package graph
