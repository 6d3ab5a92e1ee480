package hcl

import "github.com/hashicorp/hcl/v2"

// rootSchema lists the top-level blocks a pipeline file may contain.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "node", LabelNames: []string{"kind", "id"}},
		{Type: "edge"},
	},
}

// edgeBlock is the body of an `edge` block.
type edgeBlock struct {
	From   string  `hcl:"from"`
	To     string  `hcl:"to"`
	Handle *string `hcl:"handle,optional"`
}
