package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Pipeline is the unified, format-agnostic representation of a pipeline
// graph: its nodes in declaration order and its edges in declaration order.
type Pipeline struct {
	Nodes []*Node
	Edges []*Edge
	// Files lists the source files the pipeline was assembled from.
	Files []string
}

// Node is the format-agnostic representation of a `node` block.
type Node struct {
	Kind string
	ID   string
	// Attributes holds the evaluated attribute values of the block.
	Attributes map[string]cty.Value
	DeclRange  hcl.Range
}

// Edge is the format-agnostic representation of an `edge` block.
type Edge struct {
	From      string
	To        string
	Handle    string
	DeclRange hcl.Range
}

// NodeByID returns the node declared with the given id.
func (p *Pipeline) NodeByID(id string) (*Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}
