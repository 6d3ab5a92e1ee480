package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vk/flowgrid/internal/controlflow"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Engine runs one pipeline graph. Only one run may be active at a time.
type Engine struct {
	graph    graph.Graph
	registry *registry.Registry
	prims    *controlflow.Primitives
	opts     Options

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelCauseFunc
}

// Report describes a finished run.
type Report struct {
	RunID      string
	Signal     Signal
	Dispatched int
	Started    time.Time
	Finished   time.Time
}

// New creates an engine over g and prepares its nodes (expression syntax
// checks, router bounds).
func New(ctx context.Context, g graph.Graph, reg *registry.Registry, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	prims := controlflow.New(opts.ExprBudget)
	prims.Sleep = opts.Sleep

	e := &Engine{graph: g, registry: reg, prims: prims, opts: opts}
	if err := e.Prepare(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() graph.Graph {
	return e.graph
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Prepare compiles every expression once, recording syntax errors on the
// nodes, and clamps router configuration. It is called by New and should be
// called again after nodes are edited.
func (e *Engine) Prepare(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, n := range e.graph.Nodes(ctx) {
		p, changed := controlflow.Prepare(e.prims.Cache, n)
		if !changed {
			continue
		}
		updated, err := e.graph.Update(ctx, n.ID, p)
		if err != nil {
			return fmt.Errorf("prepare node '%s': %w", n.ID, err)
		}
		if msg := updated.String(node.FieldSyntaxError); msg != "" {
			logger.Warn("Expression does not compile.", "node", n.ID, "kind", n.Kind, "error", msg)
		}
	}
	return nil
}

// SyntaxErrors returns the nodes whose expression failed to compile, keyed
// by node id.
func (e *Engine) SyntaxErrors(ctx context.Context) map[string]string {
	out := make(map[string]string)
	for _, n := range e.graph.Nodes(ctx) {
		if msg := n.String(node.FieldSyntaxError); msg != "" {
			out[n.ID] = msg
		}
	}
	return out
}

// Cancel requests the active run to stop. The run stops before dispatching
// its next node; an in-flight handler call is left to finish.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel(ErrCancelled)
	return true
}

// Run executes the graph once. It returns a nil error for runs that end Ok
// and a *RunError carrying the terminal signal otherwise. ErrRunInProgress
// is returned unwrapped when another run is active.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	c, err := e.Claim()
	if err != nil {
		return Report{}, err
	}
	return c.Run(ctx)
}

// Claim holds the run gate of an engine until it is run or released.
type Claim struct {
	engine *Engine
	spent  atomic.Bool
}

// Claim takes the run gate without starting a run, so the caller can edit
// the graph knowing no other run starts in between. It returns
// ErrRunInProgress when the gate is already taken.
func (e *Engine) Claim() (*Claim, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	return &Claim{engine: e}, nil
}

// Run executes the graph once under the claim and then releases it. A claim
// runs at most once; later calls return ErrClaimSpent.
func (c *Claim) Run(ctx context.Context) (Report, error) {
	if !c.spent.CompareAndSwap(false, true) {
		return Report{}, ErrClaimSpent
	}
	defer c.engine.running.Store(false)
	return c.engine.run(ctx)
}

// Release gives the gate back without running. It is a no-op once the
// claim has run or been released.
func (c *Claim) Release() {
	if c.spent.CompareAndSwap(false, true) {
		c.engine.running.Store(false)
	}
}

func (e *Engine) run(ctx context.Context) (Report, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel(nil)
	}()

	r := &run{
		engine: e,
		info:   RunInfo{ID: ulid.Make().String(), Started: time.Now()},
	}
	runCtx = ctxlog.With(runCtx, "run_id", r.info.ID)

	err := r.execute(runCtx)

	out := Outcome{Signal: SignalOf(err), Dispatched: r.dispatched, Finished: time.Now()}
	if err != nil {
		out.Message = err.Error()
	}
	for _, o := range e.opts.Observers {
		o.RunFinished(runCtx, r.info, out)
	}

	logger := ctxlog.FromContext(runCtx)
	if err != nil {
		logger.Warn("🏁 Run finished with an error.", "signal", out.Signal.String(), "dispatched", r.dispatched, "error", err)
	} else {
		logger.Info("🏁 Run finished.", "signal", out.Signal.String(), "dispatched", r.dispatched)
	}

	return Report{
		RunID:      r.info.ID,
		Signal:     out.Signal,
		Dispatched: r.dispatched,
		Started:    r.info.Started,
		Finished:   out.Finished,
	}, err
}

// run holds the state of a single Run call.
type run struct {
	engine     *Engine
	info       RunInfo
	dispatched int
	shared     map[string]struct{}
}

func (r *run) execute(ctx context.Context) error {
	e := r.engine
	logger := ctxlog.FromContext(ctx)

	before := make(map[string]node.Node)
	for _, n := range e.graph.Nodes(ctx) {
		before[n.ID] = n
	}
	reset, err := e.graph.ResetForRun(ctx)
	if err != nil {
		return newRunError(SignalOtherError, "", err, "reset failed: %v", err)
	}

	entries := e.graph.Entries(ctx)
	r.info.Entries = len(entries)
	for _, o := range e.opts.Observers {
		o.RunStarted(ctx, r.info)
	}
	for _, id := range reset {
		r.notify(ctx, before[id], node.StatusError, node.StatusIdle, payload.Empty, "")
	}

	if len(entries) == 0 {
		return newRunError(SignalNoInputNode, "", nil, "no input node: add a prompt, upload or webhook node to start a run")
	}
	logger.Info("🚀 Run started.", "entries", len(entries))

	if e.opts.ShareVisited {
		r.shared = make(map[string]struct{})
	}

	var first *RunError
	for _, entry := range entries {
		if err := cancelled(ctx); err != nil {
			return err
		}

		value := entry.Field(node.FieldValue)
		if payload.IsEmpty(value) {
			if entry.Kind == node.KindPromptInput {
				msg := fmt.Sprintf("prompt input '%s' is empty", entry.ID)
				if err := r.fail(ctx, entry, value, errors.New(msg), nil); err != nil {
					return newRunError(SignalOtherError, entry.ID, err, "%v", err)
				}
				return newRunError(SignalValidationError, entry.ID, nil, "%s", msg)
			}
			logger.Warn("Skipping entry node without input.", "node", entry.ID, "kind", entry.Kind)
			continue
		}

		if err := r.complete(ctx, entry, value, nil); err != nil {
			return newRunError(SignalOtherError, entry.ID, err, "%v", err)
		}

		err := r.traverse(ctx, entry, value)
		if err == nil {
			continue
		}
		var re *RunError
		if !errors.As(err, &re) {
			re = newRunError(SignalOtherError, entry.ID, err, "%v", err)
		}
		if re.Signal == SignalCancelled {
			return re
		}
		logger.Warn("Entry traversal aborted.", "entry", entry.ID, "signal", re.Signal.String(), "error", re.Message)
		if first == nil {
			first = re
		}
	}

	if first != nil {
		return first
	}
	return nil
}

// notify emits a transition to every observer.
func (r *run) notify(ctx context.Context, n node.Node, from, to node.Status, in cty.Value, errMsg string) {
	if len(r.engine.opts.Observers) == 0 {
		return
	}
	t := Transition{
		RunID:         r.info.ID,
		NodeID:        n.ID,
		Kind:          n.Kind,
		From:          from,
		To:            to,
		PayloadDigest: payload.Digest(in),
		Error:         errMsg,
		At:            time.Now(),
	}
	for _, o := range r.engine.opts.Observers {
		o.NodeTransition(ctx, t)
	}
}

func (r *run) start(ctx context.Context, n node.Node, in cty.Value) error {
	if err := r.engine.graph.MarkRunning(ctx, n.ID); err != nil {
		return err
	}
	r.notify(ctx, n, n.Status, node.StatusRunning, in, "")
	return nil
}

func (r *run) complete(ctx context.Context, n node.Node, in cty.Value, fields map[string]cty.Value) error {
	from := r.current(ctx, n)
	if err := r.engine.graph.MarkCompleted(ctx, n.ID, fields); err != nil {
		return err
	}
	r.notify(ctx, n, from, node.StatusCompleted, in, "")
	return nil
}

func (r *run) fail(ctx context.Context, n node.Node, in cty.Value, cause error, fields map[string]cty.Value) error {
	from := r.current(ctx, n)
	if len(fields) > 0 {
		if _, err := r.engine.graph.Update(ctx, n.ID, nodestore.Patch{Set: fields}); err != nil {
			return err
		}
	}
	if err := r.engine.graph.MarkFailed(ctx, n.ID, cause); err != nil {
		return err
	}
	r.notify(ctx, n, from, node.StatusError, in, cause.Error())
	return nil
}

// current returns the stored status of n, falling back to the snapshot.
func (r *run) current(ctx context.Context, n node.Node) node.Status {
	if cur, ok := r.engine.graph.Node(ctx, n.ID); ok {
		return cur.Status
	}
	return n.Status
}

func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx)
	default:
		return nil
	}
}

func cancelledError(ctx context.Context) *RunError {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, ErrCancelled) {
		return newRunError(SignalCancelled, "", ErrCancelled, "run cancelled")
	}
	return newRunError(SignalCancelled, "", ErrCancelled, "run cancelled: %v", cause)
}
