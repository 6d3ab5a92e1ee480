package hcl

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

func writeGrid(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeGrid(t, dir, "prompt.txt", "from a file")
	writeGrid(t, dir, "grid.hcl", `
node "prompt_input" "in" {
  value = file("prompt.txt")
}

node "condition" "cond" {
  expression = "length(input) > 3"
}

node "router" "r" {
  outputs = 3
  mode    = "single"
}

node "key_value" "kv" {
  token = env.KV_TOKEN
}

edge {
  from = "in"
  to   = "cond"
}

edge {
  from   = "cond"
  to     = "r"
  handle = "true"
}
`)

	l := &Loader{Env: map[string]string{"KV_TOKEN": "secret"}}
	p, err := l.Load(ctxlog.Discard(), dir)
	require.NoError(t, err)

	require.Len(t, p.Nodes, 4)
	assert.Equal(t, "prompt_input", p.Nodes[0].Kind)
	assert.Equal(t, "in", p.Nodes[0].ID)
	assert.Equal(t, cty.StringVal("from a file"), p.Nodes[0].Attributes["value"])
	assert.Equal(t, cty.StringVal("length(input) > 3"), p.Nodes[1].Attributes["expression"])
	assert.True(t, p.Nodes[2].Attributes["outputs"].Equals(cty.NumberIntVal(3)).True())
	assert.Equal(t, cty.StringVal("secret"), p.Nodes[3].Attributes["token"])

	require.Len(t, p.Edges, 2)
	assert.Equal(t, "in", p.Edges[0].From)
	assert.Equal(t, "cond", p.Edges[0].To)
	assert.Empty(t, p.Edges[0].Handle)
	assert.Equal(t, "true", p.Edges[1].Handle)
	assert.Equal(t, "grid.hcl", filepath.Base(p.Edges[1].DeclRange.Filename))
}

func TestLoader_MergesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeGrid(t, dir, "a.hcl", `node "prompt_input" "first" { value = "1" }`)
	writeGrid(t, dir, "b/b.hcl", `node "message_output" "second" {}`)

	p, err := (&Loader{Env: map[string]string{}}).Load(ctxlog.Discard(), filepath.Join(dir, "**", "*.hcl"))
	require.NoError(t, err)
	require.Len(t, p.Nodes, 2)
	assert.Equal(t, "first", p.Nodes[0].ID)
	assert.Equal(t, "second", p.Nodes[1].ID)
	assert.Len(t, p.Files, 2)
}

func TestLoader_FileBase64(t *testing.T) {
	dir := t.TempDir()
	writeGrid(t, dir, "doc.pdf", "%PDF-1.4")
	writeGrid(t, dir, "grid.hcl", `node "pdf_upload" "doc" { value = filebase64("doc.pdf") }`)

	p, err := (&Loader{Env: map[string]string{}}).Load(ctxlog.Discard(), dir)
	require.NoError(t, err)
	want := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	assert.Equal(t, cty.StringVal(want), p.Nodes[0].Attributes["value"])
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `node "prompt_input" "in" {`, "failed to parse"},
		{"unknown block", `step "x" "y" {}`, "failed to decode"},
		{"edge missing to", "edge {\n  from = \"a\"\n}", "invalid edge"},
		{"missing file", `node "pdf_upload" "doc" { value = file("nope.pdf") }`, "attribute 'value'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeGrid(t, dir, "grid.hcl", tc.body)
			_, err := (&Loader{Env: map[string]string{}}).Load(ctxlog.Discard(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoader_NoFiles(t *testing.T) {
	_, err := NewLoader().Load(ctxlog.Discard(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl pipeline files")
}
