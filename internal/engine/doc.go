// Package engine executes pipeline graphs.
//
// A run resets errored nodes, collects the entry nodes (prompt, uploads,
// webhook) and walks the graph depth-first from each of them in turn. Every
// reached node is dispatched at most once per root: control-flow nodes
// through the primitives in internal/controlflow, everything else through
// the handler registry. A node's outgoing edges are processed one at a time,
// in declaration order, each subtree finishing before the next edge starts.
//
// The walk uses an explicit work stack, so depth is bounded by
// Options.MaxDepth rather than by the goroutine stack, and cancellation is
// checked every time a frame is popped.
//
// A run ends with one terminal signal (Ok, NoInputNode, ValidationError,
// AuthRequired, OtherError or Cancelled), returned as a *RunError for every
// outcome but Ok. Individual node failures stay visible on each node's
// status and error fields.
package engine
