package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/controlflow"
	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/zclconf/go-cty/cty"
)

func TestRun_DepthFirstOrder(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		node(node.KindMessageOutput, "b").
		node(node.KindMessageOutput, "c").
		node(node.KindMessageOutput, "d").
		edge("in", "a").
		edge("in", "d").
		edge("a", "b").
		edge("a", "c").
		edge("b", "d"), Options{})

	report, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, SignalOk, report.Signal)
	assert.Equal(t, 4, report.Dispatched)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, []string{"a", "b", "d", "c"}, h.module.ids())
	assertGolden(t, "depth_first_order", h.trace)
}

func TestRun_BranchSelectsPort(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindCondition, "cond", "expression", "length(input) > 3").
		node(node.KindMessageOutput, "yes").
		node(node.KindMessageOutput, "no").
		edge("in", "cond").
		edge("cond", "yes", "true").
		edge("cond", "no", "false"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"yes"}, h.module.ids())
	assert.Equal(t, "true", h.node(t, "cond").String(node.FieldActivePort))
	assert.Equal(t, node.StatusIdle, h.node(t, "no").Status)
	assertGolden(t, "branch_scenario", h.trace)
}

func TestRun_BranchPositionalFallback(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hi").
		node(node.KindCondition, "cond", "expression", "length(input) > 3").
		node(node.KindMessageOutput, "first").
		node(node.KindMessageOutput, "second").
		edge("in", "cond").
		edge("cond", "first").
		edge("cond", "second"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, h.module.ids())
	assert.Equal(t, "false", h.node(t, "cond").String(node.FieldActivePort))
}

func TestRun_BranchFallbackMixedHandles(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hi").
		node(node.KindCondition, "cond", "expression", "length(input) > 3").
		node(node.KindMessageOutput, "tagged").
		node(node.KindMessageOutput, "plain").
		edge("in", "cond").
		edge("cond", "tagged", "true").
		edge("cond", "plain"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain"}, h.module.ids())
}

func TestRun_RouterFallbackMixedHandles(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindRouter, "r", "outputs", 3, "mode", "single", "index", 2).
		node(node.KindMessageOutput, "x").
		node(node.KindMessageOutput, "y").
		node(node.KindMessageOutput, "z").
		edge("in", "r").
		edge("r", "x", "out-0").
		edge("r", "y").
		edge("r", "z"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, h.module.ids())
}

func TestRun_BranchSyntaxErrorRoutesFalse(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindCondition, "cond", "expression", "length(").
		node(node.KindMessageOutput, "yes").
		node(node.KindMessageOutput, "no").
		edge("in", "cond").
		edge("cond", "yes", "true").
		edge("cond", "no", "false"), Options{})

	require.Contains(t, h.engine.SyntaxErrors(h.ctx), "cond")

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err, "expression faults do not abort the run")

	cond := h.node(t, "cond")
	assert.Equal(t, node.StatusError, cond.Status)
	assert.Equal(t, "false", cond.String(node.FieldActivePort))
	assert.NotEmpty(t, cond.String(node.FieldError))
	assert.Equal(t, []string{"no"}, h.module.ids())
}

func TestRun_RouterSingleClampsIndex(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindRouter, "r", "outputs", 3, "mode", "single", "index", 5).
		node(node.KindMessageOutput, "x").
		node(node.KindMessageOutput, "y").
		node(node.KindMessageOutput, "z").
		edge("in", "r").
		edge("r", "x", "out-0").
		edge("r", "y", "out-1").
		edge("r", "z", "out-2"), Options{})

	assert.Equal(t, 2, h.node(t, "r").Int(controlflow.FieldIndex, -1))

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, h.module.ids())
}

func TestRun_RouterAllFiresEveryEdge(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindRouter, "r", "outputs", 2, "mode", "all").
		node(node.KindMessageOutput, "x").
		node(node.KindMessageOutput, "y").
		edge("in", "r").
		edge("r", "x", "out-0").
		edge("r", "y", "out-1"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, h.module.ids())
}

func TestRun_TransformReplacesPayload(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindFunction, "fn", "expression", "upper(input)").
		node(node.KindMessageOutput, "out").
		edge("in", "fn").
		edge("fn", "out"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)

	calls := h.module.callsTo("out")
	require.Len(t, calls, 1)
	assert.Equal(t, "HELLO", calls[0].Payload)
	assert.Equal(t, "hello", calls[0].Previous)
}

func TestRun_TransformFailureKeepsPayload(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindFunction, "fn", "expression", "tonumber(input)").
		node(node.KindMessageOutput, "out").
		edge("in", "fn").
		edge("fn", "out"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, node.StatusError, h.node(t, "fn").Status)
	calls := h.module.callsTo("out")
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Payload)
}

func TestRun_TransformOverBudgetKeepsFiring(t *testing.T) {
	items := make([]cty.Value, 200000)
	for i := range items {
		items[i] = cty.StringVal("item")
	}
	in := cty.ListVal(items)

	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", in).
		node(node.KindFunction, "fn", "expression", `join(",", [for x in input : upper(x)])`).
		node(node.KindMessageOutput, "first").
		node(node.KindMessageOutput, "second").
		edge("in", "fn").
		edge("fn", "first").
		edge("fn", "second"), Options{ExprBudget: time.Nanosecond})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)

	fn := h.node(t, "fn")
	assert.Equal(t, node.StatusError, fn.Status)
	assert.Contains(t, fn.String(node.FieldError), "time budget")
	assert.Equal(t, []string{"first", "second"}, h.module.ids())
	assert.Equal(t, payload.Text(in), h.module.callsTo("first")[0].Payload)
}

func TestRun_DelayUsesSleeper(t *testing.T) {
	var mu sync.Mutex
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
		return nil
	}

	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindWait, "w", "wait_ms", 2, "unit", "s").
		node(node.KindMessageOutput, "out").
		edge("in", "w").
		edge("w", "out"), Options{Sleep: sleep})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
	assert.Equal(t, []string{"out"}, h.module.ids())
}

func TestRun_PreviousPayload(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hi").
		node(node.KindTextGenerator, "g").
		node(node.KindMessageOutput, "o").
		edge("in", "g").
		edge("g", "o"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)

	calls := h.module.callsTo("o")
	require.Len(t, calls, 1)
	assert.Equal(t, "hi+g", calls[0].Payload)
	assert.Equal(t, "hi", calls[0].Previous)
	assert.Equal(t, cty.StringVal("hi+g"), h.node(t, "g").Field(node.FieldValue))
}

func TestRun_EmptyPromptIsValidationError(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "   ").
		node(node.KindMessageOutput, "out").
		edge("in", "out"), Options{})

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, SignalValidationError, report.Signal)
	assert.Equal(t, 0, report.Dispatched)
	assert.Equal(t, node.StatusError, h.node(t, "in").Status)
	assert.Empty(t, h.module.ids())

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "in", re.NodeID)
}

func TestRun_EmptyUploadIsSkipped(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindWebhook, "hook").
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		node(node.KindMessageOutput, "b").
		edge("hook", "a").
		edge("in", "b"), Options{})

	_, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, h.module.ids())
	assert.Equal(t, node.StatusIdle, h.node(t, "hook").Status)
}

func TestRun_NoInputNode(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindMessageOutput, "out"), Options{})

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, SignalNoInputNode, report.Signal)
	assert.Equal(t, SignalNoInputNode, SignalOf(err))
}

func TestRun_CycleTerminates(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		node(node.KindMessageOutput, "b").
		edge("in", "a").
		edge("a", "b").
		edge("b", "a").
		edge("b", "in"), Options{})

	report, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	// a, b, and the entry once more through b -> in.
	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, []string{"a", "b"}, h.module.ids())
}

func TestRun_CycleBackToEntry(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindTextGenerator, "gen").
		edge("in", "gen").
		edge("gen", "in"), Options{})

	report, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, []string{"gen"}, h.module.ids())
	assert.Equal(t, node.StatusCompleted, h.node(t, "in").Status)
	assert.Equal(t, "hello", h.node(t, "in").String(node.FieldValue), "an entry reached through an edge keeps its own value")
	assertGolden(t, "cycle_back_to_entry", h.trace)
}

func TestRun_VisitedScope(t *testing.T) {
	build := func() *pipeline {
		return newPipeline().
			node(node.KindPromptInput, "in1", "value", "one").
			node(node.KindPromptInput, "in2", "value", "two").
			node(node.KindMessageOutput, "shared").
			edge("in1", "shared").
			edge("in2", "shared")
	}

	t.Run("per entry", func(t *testing.T) {
		h := newHarness(t, build(), Options{})
		_, err := h.engine.Run(h.ctx)
		require.NoError(t, err)

		calls := h.module.callsTo("shared")
		require.Len(t, calls, 2)
		assert.Equal(t, "one", calls[0].Payload)
		assert.Equal(t, "two", calls[1].Payload)
	})

	t.Run("shared across entries", func(t *testing.T) {
		h := newHarness(t, build(), Options{ShareVisited: true})
		_, err := h.engine.Run(h.ctx)
		require.NoError(t, err)
		assert.Len(t, h.module.callsTo("shared"), 1)
	})
}

func TestRun_ConfigErrorSkipsSubtree(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindTextGenerator, "cfg").
		node(node.KindMessageOutput, "under").
		node(node.KindMessageOutput, "sibling").
		edge("in", "cfg").
		edge("in", "sibling").
		edge("cfg", "under"), Options{})
	h.module.faults["cfg"] = faults.Config(string(node.KindTextGenerator), "model")

	report, err := h.engine.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, SignalOk, report.Signal)

	assert.Equal(t, []string{"cfg", "sibling"}, h.module.ids())
	cfg := h.node(t, "cfg")
	assert.Equal(t, node.StatusError, cfg.Status)
	assert.Equal(t, "text_generator: model: is required", cfg.String(node.FieldError))
}

func TestRun_HandlerFaultAbortsRootOnly(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in1", "value", "one").
		node(node.KindPromptInput, "in2", "value", "two").
		node(node.KindMessageOutput, "bad").
		node(node.KindMessageOutput, "after").
		node(node.KindMessageOutput, "other").
		edge("in1", "bad").
		edge("in1", "after").
		edge("in2", "other"), Options{})
	h.module.faults["bad"] = errors.New("boom")

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, SignalOtherError, report.Signal)
	assert.Equal(t, []string{"bad", "other"}, h.module.ids())

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "bad", re.NodeID)
	assert.Equal(t, "boom", h.node(t, "bad").String(node.FieldError))
}

func TestRun_FirstFaultDecidesSignal(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in1", "value", "one").
		node(node.KindPromptInput, "in2", "value", "two").
		node(node.KindMessageOutput, "auth").
		node(node.KindMessageOutput, "bad").
		edge("in1", "auth").
		edge("in2", "bad"), Options{})
	h.module.faults["auth"] = &faults.ProviderError{Provider: "openai", Status: 403, Message: "forbidden"}
	h.module.faults["bad"] = errors.New("boom")

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, SignalAuthRequired, report.Signal)
	assert.ErrorIs(t, err, faults.ErrAuthRequired)
	assert.Equal(t, []string{"auth", "bad"}, h.module.ids())
}

func TestRun_AuthMessageMarkers(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindTextGenerator, "g").
		edge("in", "g"), Options{})
	h.module.faults["g"] = errors.New("permission denied for model")

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, SignalAuthRequired, report.Signal)
}

func TestRun_MaxDepth(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		node(node.KindMessageOutput, "b").
		node(node.KindMessageOutput, "c").
		edge("in", "a").
		edge("a", "b").
		edge("b", "c"), Options{MaxDepth: 2})

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxDepth)
	assert.Equal(t, SignalOtherError, report.Signal)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, []string{"a", "b"}, h.module.ids())
}

func TestRun_ResetBetweenRuns(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "bad").
		edge("in", "bad"), Options{})
	h.module.faults["bad"] = errors.New("boom")

	_, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, node.StatusError, h.node(t, "bad").Status)

	delete(h.module.faults, "bad")
	_, err = h.engine.Run(h.ctx)
	require.NoError(t, err)

	bad := h.node(t, "bad")
	assert.Equal(t, node.StatusCompleted, bad.Status)
	assert.Empty(t, bad.String(node.FieldError))
	assertGolden(t, "reset_between_runs", h.trace)
}

func TestRun_CancelStopsBeforeNextDispatch(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		node(node.KindMessageOutput, "b").
		edge("in", "a").
		edge("a", "b"), Options{})
	h.module.hooks["a"] = func() {
		assert.True(t, h.engine.Cancel())
	}

	report, err := h.engine.Run(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, SignalCancelled, report.Signal)
	assert.Equal(t, []string{"a"}, h.module.ids())
	assert.Equal(t, node.StatusCompleted, h.node(t, "a").Status)
	assert.False(t, h.engine.Cancel(), "no run is active")
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		edge("in", "a"), Options{})

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()

	report, err := h.engine.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, SignalCancelled, report.Signal)
	assert.Empty(t, h.module.ids())
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, newPipeline().
		node(node.KindPromptInput, "in", "value", "hello").
		node(node.KindMessageOutput, "a").
		edge("in", "a"), Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	h.module.hooks["a"] = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Run(h.ctx)
		done <- err
	}()

	<-entered
	assert.True(t, h.engine.Running())
	_, err := h.engine.Run(h.ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.engine.Running())
}

func TestClaim(t *testing.T) {
	build := func() *harness {
		return newHarness(t, newPipeline().
			node(node.KindPromptInput, "in", "value", "hello").
			node(node.KindMessageOutput, "a").
			edge("in", "a"), Options{})
	}

	t.Run("a held claim blocks other runs", func(t *testing.T) {
		h := build()
		c, err := h.engine.Claim()
		require.NoError(t, err)
		assert.True(t, h.engine.Running())

		_, err = h.engine.Claim()
		assert.ErrorIs(t, err, ErrRunInProgress)
		_, err = h.engine.Run(h.ctx)
		assert.ErrorIs(t, err, ErrRunInProgress)
		assert.Empty(t, h.module.ids())

		report, err := c.Run(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Dispatched)
		assert.False(t, h.engine.Running())

		_, err = c.Run(h.ctx)
		assert.ErrorIs(t, err, ErrClaimSpent)
		assert.Equal(t, []string{"a"}, h.module.ids())
	})

	t.Run("release frees the gate once", func(t *testing.T) {
		h := build()
		c, err := h.engine.Claim()
		require.NoError(t, err)
		c.Release()
		assert.False(t, h.engine.Running())

		next, err := h.engine.Claim()
		require.NoError(t, err)
		c.Release()
		assert.True(t, h.engine.Running(), "a stale release must not free a newer claim")
		next.Release()
		assert.False(t, h.engine.Running())

		_, err = c.Run(h.ctx)
		assert.ErrorIs(t, err, ErrClaimSpent)
	})
}

func TestSignalString(t *testing.T) {
	tests := map[Signal]string{
		SignalOk:              "ok",
		SignalNoInputNode:     "no_input_node",
		SignalValidationError: "validation_error",
		SignalAuthRequired:    "auth_required",
		SignalOtherError:      "other_error",
		SignalCancelled:       "cancelled",
	}
	for sig, want := range tests {
		assert.Equal(t, want, sig.String())
	}
	assert.Equal(t, SignalOtherError, SignalOf(errors.New("plain")))
	assert.Equal(t, SignalOk, SignalOf(nil))
}
