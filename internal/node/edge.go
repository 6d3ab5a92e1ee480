package node

// Edge is a directed connection from one node to another. Handle names the
// source's output port ("true", "false", "out-2") and is empty for nodes
// with a single output.
type Edge struct {
	From   string
	To     string
	Handle string
}

// HasHandle reports whether the edge is tagged with an output port.
func (e Edge) HasHandle() bool {
	return e.Handle != ""
}
