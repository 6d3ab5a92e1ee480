// Package controlflow implements the four control-flow primitives: transform
// (function nodes), branch (condition nodes), fan-out router and delay (wait
// nodes).
//
// A primitive produces a payload and a selection of the node's outgoing
// edges. Selections are indexes into the edge slice the caller passed in, in
// ascending order, so the caller keeps edge declaration order.
package controlflow
