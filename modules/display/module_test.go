package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

func TestMessageOutput(t *testing.T) {
	var out bytes.Buffer
	reg := registry.New()
	(&Module{Out: &out}).Register(reg)

	in := cty.StringVal("line one\nline two")
	resp, err := reg.Dispatch(ctxlog.Discard(), registry.Request{
		Node:    node.New("answer", node.KindMessageOutput, nil),
		Payload: in,
	})
	require.NoError(t, err)
	assert.Equal(t, in, resp.Payload)
	assert.Equal(t, in, resp.Fields[node.FieldValue])
	assert.Equal(t, "answer:\n      line one\n      line two\n", out.String())
}

func TestImageOutput(t *testing.T) {
	reg := registry.New()
	(&Module{}).Register(reg)

	resp, err := reg.Dispatch(ctxlog.Discard(), registry.Request{
		Node:    node.New("img", node.KindImageOutput, nil),
		Payload: cty.StringVal("data:image/png;base64,iVBOR"),
	})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("image/png"), resp.Fields[FieldMime])

	_, err = reg.Dispatch(ctxlog.Discard(), registry.Request{
		Node:    node.New("img", node.KindImageOutput, nil),
		Payload: cty.StringVal("just words"),
	})
	assert.Error(t, err)

	_, err = reg.Dispatch(ctxlog.Discard(), registry.Request{
		Node:    node.New("img", node.KindImageOutput, nil),
		Payload: cty.StringVal("data:text/plain;base64,aGk="),
	})
	assert.Error(t, err)
}
