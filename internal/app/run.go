package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
)

// SyntaxError lists the nodes whose expressions do not compile.
type SyntaxError struct {
	Nodes map[string]string
}

func (e *SyntaxError) Error() string {
	ids := make([]string, 0, len(e.Nodes))
	for id := range e.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = fmt.Sprintf("node '%s': %s", id, e.Nodes[id])
	}
	return "expression syntax errors:\n- " + strings.Join(lines, "\n- ")
}

// Run executes the pipeline once and returns the engine's report.
func (a *App) Run(ctx context.Context) (engine.Report, error) {
	return a.run(ctx, a.engine.Run)
}

// runClaimed executes the pipeline under a gate the caller already holds.
func (a *App) runClaimed(ctx context.Context, c *engine.Claim) (engine.Report, error) {
	return a.run(ctx, c.Run)
}

func (a *App) run(ctx context.Context, start func(context.Context) (engine.Report, error)) (engine.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if len(a.graph.Nodes(ctx)) == 0 {
		a.logger.Warn("No nodes found in graph, execution not required.")
	}
	report, err := start(ctx)

	a.logger.Debug("App.Run method finished.", "run_id", report.RunID)
	return report, err
}

// Validate reports expression syntax errors found while preparing the
// engine. Loading, graph and registry errors were already returned by
// NewApp.
func (a *App) Validate(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if errs := a.engine.SyntaxErrors(ctx); len(errs) > 0 {
		return &SyntaxError{Nodes: errs}
	}
	a.logger.Info("✅ Pipeline is valid.", "nodes", len(a.graph.Nodes(ctx)), "entries", len(a.graph.Entries(ctx)))
	return nil
}
