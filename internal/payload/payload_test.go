package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestIsEmpty(t *testing.T) {
	testCases := []struct {
		name string
		val  cty.Value
		want bool
	}{
		{"null", Empty, true},
		{"unknown", cty.UnknownVal(cty.String), true},
		{"empty string", cty.StringVal(""), true},
		{"whitespace", cty.StringVal(" \t\n"), true},
		{"text", cty.StringVal("hello"), false},
		{"zero", cty.Zero, false},
		{"object", cty.ObjectVal(map[string]cty.Value{"a": cty.True}), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsEmpty(tc.val))
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(Empty))
	assert.Equal(t, "hello", Text(cty.StringVal("hello")))
	assert.Equal(t, "42", Text(cty.NumberIntVal(42)))
	assert.Equal(t, "1.5", Text(cty.NumberFloatVal(1.5)))
	assert.Equal(t, "true", Text(cty.True))
	assert.Equal(t, `{"a":"b"}`, Text(cty.ObjectVal(map[string]cty.Value{"a": cty.StringVal("b")})))
}

func TestFromGo_JSONShapes(t *testing.T) {
	v, err := FromGo(map[string]any{"name": "x", "tags": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "x", v.GetAttr("name").AsString())
	assert.Equal(t, 2, v.GetAttr("tags").LengthInt())

	v, err = FromGo(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = FromGo("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v.AsString())
}

func TestToGo(t *testing.T) {
	got, err := ToGo(cty.ObjectVal(map[string]cty.Value{
		"n":    cty.NumberIntVal(2),
		"list": cty.TupleVal([]cty.Value{cty.StringVal("a")}),
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2), "list": []any{"a"}}, got)

	got, err = ToGo(Empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ToGo(cty.UnknownVal(cty.String))
	require.Error(t, err)
}

func TestDigest_StableAndDistinct(t *testing.T) {
	a := Digest(cty.StringVal("hello"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, Digest(cty.StringVal("hello")))
	assert.NotEqual(t, a, Digest(cty.StringVal("world")))
}
