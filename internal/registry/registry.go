package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vk/flowgrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface that all capability modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(r *Registry)

func (f ModuleFunc) Register(r *Registry) { f(r) }

// Request is the input of a handler dispatch.
type Request struct {
	// Node is a snapshot of the node being dispatched.
	Node node.Node
	// Payload is the value forwarded along the incoming edge.
	Payload cty.Value
	// Previous is the payload the parent node itself received.
	Previous cty.Value
}

// Response is the output of a successful dispatch.
type Response struct {
	// Payload replaces the forwarded value for the node's children.
	Payload cty.Value
	// Fields are written to the node together with StatusCompleted.
	Fields map[string]cty.Value
}

// Handler dispatches one node. It fails only by returning an error, ideally
// one of the typed faults from internal/faults.
type Handler func(ctx context.Context, req Request) (Response, error)

// Registry holds the handlers registered for a single application instance.
type Registry struct {
	handlers map[node.Kind]Handler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{handlers: make(map[node.Kind]Handler)}
}

// RegisterHandler registers the handler for a node kind.
func (r *Registry) RegisterHandler(kind node.Kind, h Handler) {
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler for node kind '%s' already registered", kind))
	}
	if kind.IsEntry() || kind.IsControlFlow() {
		panic(fmt.Sprintf("node kind '%s' is handled by the engine and cannot be registered", kind))
	}
	slog.Debug("Registering node handler.", "kind", kind)
	r.handlers[kind] = h
}

// Handler returns the handler registered for kind.
func (r *Registry) Handler(kind node.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Dispatch invokes the handler for the request's node kind.
func (r *Registry) Dispatch(ctx context.Context, req Request) (Response, error) {
	h, ok := r.handlers[req.Node.Kind]
	if !ok {
		return Response{}, fmt.Errorf("no handler registered for node kind '%s'", req.Node.Kind)
	}
	return h(ctx, req)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []node.Kind {
	kinds := make([]node.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
