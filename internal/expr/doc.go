// Package expr is the sandboxed evaluator behind the function and condition
// nodes.
//
// Expressions are written in HCL expression syntax. The only variable in
// scope is `input`, the payload the node received. Only a curated set of
// pure functions from the cty standard library is callable, source text is
// length-limited, and every evaluation runs under a wall-clock budget:
//
//	upper(input)
//	length(input) > 3
//	{ name = input.name, tags = [for t in input.tags : lower(t)] }
package expr
