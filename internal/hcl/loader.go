package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	// Env is exposed to attributes as the `env` object. Nil means the
	// process environment.
	Env map[string]string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths and merges their blocks into
// one pipeline, keeping declaration order across files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.Resolve(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl pipeline files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	env := l.Env
	if env == nil {
		env = environ()
	}

	p := &config.Pipeline{Files: files}
	parser := hclparse.NewParser()
	for _, file := range files {
		if err := l.loadFile(ctx, parser, file, env, p); err != nil {
			return nil, err
		}
	}

	logger.Debug("HCL loading complete.", "nodes", len(p.Nodes), "edges", len(p.Edges))
	return p, nil
}

func (l *Loader) loadFile(ctx context.Context, parser *hclparse.Parser, file string, env map[string]string, p *config.Pipeline) error {
	hclFile, diags := parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
	}

	content, diags := hclFile.Body.Content(rootSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	evalCtx := evalContext(filepath.Dir(file), env)
	for _, block := range content.Blocks {
		switch block.Type {
		case "node":
			n, err := translateNode(ctx, block, evalCtx)
			if err != nil {
				return err
			}
			p.Nodes = append(p.Nodes, n)
		case "edge":
			var eb edgeBlock
			if diags := gohcl.DecodeBody(block.Body, evalCtx, &eb); diags.HasErrors() {
				return fmt.Errorf("invalid edge at %s: %w", block.DefRange, diags)
			}
			e := &config.Edge{From: eb.From, To: eb.To, DeclRange: block.DefRange}
			if eb.Handle != nil {
				e.Handle = *eb.Handle
			}
			p.Edges = append(p.Edges, e)
		}
	}
	return nil
}

// translateNode evaluates a node block's attributes into the agnostic model.
func translateNode(ctx context.Context, block *hcl.Block, evalCtx *hcl.EvalContext) (*config.Node, error) {
	kind, id := block.Labels[0], block.Labels[1]

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("node '%s': %w", id, diags)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]cty.Value, len(attrs))
	for _, name := range names {
		val, diags := attrs[name].Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("node '%s', attribute '%s': %w", id, name, diags)
		}
		values[name] = val
	}

	ctxlog.FromContext(ctx).Debug("Translated node block.", "kind", kind, "id", id, "attributes", len(values))
	return &config.Node{
		Kind:       kind,
		ID:         id,
		Attributes: values,
		DeclRange:  block.DefRange,
	}, nil
}
