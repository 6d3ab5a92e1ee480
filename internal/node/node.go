package node

import (
	"maps"

	"github.com/zclconf/go-cty/cty"
)

// Node is a single vertex in the pipeline graph. Values of this type are
// snapshots: the node store hands out copies and every mutation goes through
// the store's Update entry point.
type Node struct {
	// ID is the opaque identifier assigned by the editor.
	ID string
	// Kind selects the handler or control-flow primitive for this node.
	Kind Kind
	// Status is the node's position in the run lifecycle.
	Status Status
	// Fields is the kind-specific state bag: configuration attributes
	// (model, expression, url, ...) plus runtime fields the engine writes
	// (value, error, active_port).
	Fields map[string]cty.Value
}

// Well-known field names shared by the engine and handlers.
const (
	// FieldValue holds an entry node's input or a node's last produced payload.
	FieldValue = "value"
	// FieldError holds the message of the fault that put the node in StatusError.
	FieldError = "error"
	// FieldSyntaxError holds the compile error of a node's expression.
	FieldSyntaxError = "syntax_error"
	// FieldActivePort is the branch port selected by the last evaluation.
	FieldActivePort = "active_port"
)

// New creates a node in StatusIdle with a copy of the given fields.
func New(id string, kind Kind, fields map[string]cty.Value) Node {
	return Node{
		ID:     id,
		Kind:   kind,
		Status: StatusIdle,
		Fields: maps.Clone(fields),
	}
}

// Clone returns a copy of the node whose Fields map can be mutated without
// affecting the original.
func (n Node) Clone() Node {
	c := n
	c.Fields = maps.Clone(n.Fields)
	if c.Fields == nil {
		c.Fields = make(map[string]cty.Value)
	}
	return c
}

// Field returns the named field, or cty.NilVal when it is absent.
func (n Node) Field(name string) cty.Value {
	if v, ok := n.Fields[name]; ok {
		return v
	}
	return cty.NilVal
}

// known reports the named field when it is present, non-null and known.
func (n Node) known(name string) (cty.Value, bool) {
	v, ok := n.Fields[name]
	if !ok || v.IsNull() || !v.IsKnown() {
		return cty.NilVal, false
	}
	return v, true
}

// String returns the named field as a Go string. Missing, null, unknown or
// non-string fields yield the empty string.
func (n Node) String(name string) string {
	v, ok := n.known(name)
	if !ok || !v.Type().Equals(cty.String) {
		return ""
	}
	return v.AsString()
}

// Int returns the named numeric field truncated to an int, or def when the
// field is missing or not a number.
func (n Node) Int(name string, def int) int {
	v, ok := n.known(name)
	if !ok || !v.Type().Equals(cty.Number) {
		return def
	}
	i, _ := v.AsBigFloat().Int64()
	return int(i)
}

// Float returns the named numeric field, or def when the field is missing or
// not a number.
func (n Node) Float(name string, def float64) float64 {
	v, ok := n.known(name)
	if !ok || !v.Type().Equals(cty.Number) {
		return def
	}
	f, _ := v.AsBigFloat().Float64()
	return f
}

// Bool returns the named boolean field, or def when the field is missing or
// not a bool.
func (n Node) Bool(name string, def bool) bool {
	v, ok := n.known(name)
	if !ok || !v.Type().Equals(cty.Bool) {
		return def
	}
	return v.True()
}
