package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// traceRecorder is an Observer that renders events as stable text lines.
type traceRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *traceRecorder) RunStarted(_ context.Context, run RunInfo) {
	r.add(fmt.Sprintf("run started entries=%d", run.Entries))
}

func (r *traceRecorder) NodeTransition(_ context.Context, t Transition) {
	r.add(fmt.Sprintf("%s %s -> %s", t.NodeID, t.From, t.To))
}

func (r *traceRecorder) RunFinished(_ context.Context, _ RunInfo, out Outcome) {
	r.add(fmt.Sprintf("run finished signal=%s dispatched=%d", out.Signal, out.Dispatched))
}

func (r *traceRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *traceRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n") + "\n"
}

// call is one handler invocation seen by the recording module.
type call struct {
	ID       string
	Payload  string
	Previous string
}

// recordingModule registers handlers for the display and generator kinds.
// Display nodes echo the payload; text generators append their node id, so
// payload flow is visible in assertions. Faults can be injected per node id.
type recordingModule struct {
	mu     sync.Mutex
	calls  []call
	faults map[string]error
	hooks  map[string]func()
}

func newRecordingModule() *recordingModule {
	return &recordingModule{faults: map[string]error{}, hooks: map[string]func(){}}
}

func (m *recordingModule) Register(r *registry.Registry) {
	r.RegisterHandler(node.KindMessageOutput, m.handle(false))
	r.RegisterHandler(node.KindTextGenerator, m.handle(true))
}

func (m *recordingModule) handle(appendID bool) registry.Handler {
	return func(ctx context.Context, req registry.Request) (registry.Response, error) {
		m.mu.Lock()
		m.calls = append(m.calls, call{ID: req.Node.ID, Payload: payload.Text(req.Payload), Previous: payload.Text(req.Previous)})
		hook := m.hooks[req.Node.ID]
		fault := m.faults[req.Node.ID]
		m.mu.Unlock()

		if hook != nil {
			hook()
		}
		if fault != nil {
			return registry.Response{}, fault
		}
		out := req.Payload
		if appendID {
			out = cty.StringVal(payload.Text(req.Payload) + "+" + req.Node.ID)
		}
		return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
	}
}

func (m *recordingModule) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.ID
	}
	return out
}

func (m *recordingModule) callsTo(id string) []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call
	for _, c := range m.calls {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

// pipeline is a small builder for test graphs.
type pipeline struct {
	p config.Pipeline
}

func newPipeline() *pipeline {
	return &pipeline{}
}

func (b *pipeline) node(kind node.Kind, id string, kv ...any) *pipeline {
	attrs := map[string]cty.Value{}
	for i := 0; i < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case string:
			attrs[kv[i].(string)] = cty.StringVal(v)
		case int:
			attrs[kv[i].(string)] = cty.NumberIntVal(int64(v))
		case cty.Value:
			attrs[kv[i].(string)] = v
		}
	}
	b.p.Nodes = append(b.p.Nodes, &config.Node{Kind: string(kind), ID: id, Attributes: attrs})
	return b
}

func (b *pipeline) edge(from, to string, handle ...string) *pipeline {
	e := &config.Edge{From: from, To: to}
	if len(handle) > 0 {
		e.Handle = handle[0]
	}
	b.p.Edges = append(b.p.Edges, e)
	return b
}

// harness wires a pipeline, the recording module and a trace recorder
// into an engine.
type harness struct {
	ctx    context.Context
	engine *Engine
	graph  graph.Graph
	module *recordingModule
	trace  *traceRecorder
}

func newHarness(t *testing.T, b *pipeline, opts Options) *harness {
	t.Helper()
	ctx := ctxlog.Discard()

	g, err := graph.Build(ctx, &b.p)
	require.NoError(t, err)

	reg := registry.New()
	mod := newRecordingModule()
	mod.Register(reg)

	trace := &traceRecorder{}
	opts.Observers = append(opts.Observers, trace)

	e, err := New(ctx, g, reg, opts)
	require.NoError(t, err)

	return &harness{ctx: ctx, engine: e, graph: g, module: mod, trace: trace}
}

func (h *harness) node(t *testing.T, id string) node.Node {
	t.Helper()
	n, ok := h.graph.Node(h.ctx, id)
	require.True(t, ok, "node %s", id)
	return n
}

func assertGolden(t *testing.T, name string, trace *traceRecorder) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(trace.String()))
}
