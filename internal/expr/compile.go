package expr

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// MaxSourceLen bounds the size of an expression's source text.
const MaxSourceLen = 4096

// InputVar is the only variable an expression may reference.
const InputVar = "input"

var (
	// ErrEmpty is returned for blank expressions.
	ErrEmpty = errors.New("expression is empty")
	// ErrTooLong is returned for sources longer than MaxSourceLen.
	ErrTooLong = errors.New("expression is too long")
	// ErrForbidden is returned when an expression references a variable
	// other than input or calls a function outside the whitelist.
	ErrForbidden = errors.New("expression uses a forbidden name")
)

// Program is a compiled, validated expression.
type Program struct {
	Source    string
	Functions []string
	expr      hclsyntax.Expression
}

// Compile parses and validates an expression.
func Compile(src string) (*Program, error) {
	if len(src) > MaxSourceLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLong, len(src), MaxSourceLen)
	}
	if isBlank(src) {
		return nil, ErrEmpty
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("syntax error: %s", diags.Error())
	}

	for _, traversal := range parsed.Variables() {
		if root := traversal.RootName(); root != InputVar {
			return nil, fmt.Errorf("%w: variable %q is not in scope, only %q is", ErrForbidden, root, InputVar)
		}
	}

	called := make(map[string]struct{})
	walkForFunctions(parsed, called)
	names := make([]string, 0, len(called))
	for name := range called {
		if !Allowed(name) {
			return nil, fmt.Errorf("%w: function %q is not available", ErrForbidden, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return &Program{Source: src, Functions: names, expr: parsed}, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// walkForFunctions recursively walks the AST, collecting function call names.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}

// Cache compiles each distinct source text once and remembers the outcome,
// including compile errors.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	prog *Program
	err  error
}

// NewCache creates an empty compile cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Compile returns the cached result for src, compiling it on first use.
func (c *Cache) Compile(src string) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[src]; ok {
		return e.prog, e.err
	}
	prog, err := Compile(src)
	c.entries[src] = cacheEntry{prog: prog, err: err}
	return prog, err
}

// Len returns the number of distinct sources compiled so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
