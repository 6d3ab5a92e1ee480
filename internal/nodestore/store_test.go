package nodestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

func TestPatch_Apply(t *testing.T) {
	orig := node.New("c", node.KindCondition, map[string]cty.Value{
		"expression":  cty.StringVal("true"),
		"active_port": cty.StringVal("true"),
	})

	p := StatusPatch(node.StatusCompleted).
		With("value", cty.StringVal("hello")).
		Without("active_port")
	got := p.Apply(orig)

	assert.Equal(t, node.StatusCompleted, got.Status)
	assert.Equal(t, "hello", got.String("value"))
	_, has := got.Fields["active_port"]
	assert.False(t, has)

	// The original node is untouched.
	assert.Equal(t, node.StatusIdle, orig.Status)
	assert.Equal(t, "true", orig.String("active_port"))
	_, has = orig.Fields["value"]
	assert.False(t, has)
}

func TestPatch_WithDoesNotAlias(t *testing.T) {
	base := Patch{}.With("a", cty.True)
	derived := base.With("b", cty.False)

	assert.Len(t, base.Set, 1)
	assert.Len(t, derived.Set, 2)
}

func TestPatch_NilStatusKeepsStatus(t *testing.T) {
	n := node.New("x", node.KindWait, nil)
	n.Status = node.StatusError
	got := Patch{}.With("error", cty.StringVal("boom")).Apply(n)
	assert.Equal(t, node.StatusError, got.Status)
}
