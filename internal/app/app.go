package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/history"
	"github.com/vk/flowgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	logger   *slog.Logger
	config   *Config
	settings *Settings
	registry *registry.Registry
	graph    graph.Graph
	engine   *engine.Engine
	history  *history.Store

	httpServer *http.Server
	// background tracks runs started by webhook deliveries.
	background sync.WaitGroup
}

// NewApp is the constructor for the main application. It loads the settings
// file and the pipeline, builds the graph and prepares the engine. When no
// modules are given the core modules are registered.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	settings := &Settings{}
	if cfg.SettingsPath != "" {
		s, err := LoadSettings(cfg.SettingsPath)
		if err != nil {
			return nil, err
		}
		settings = s
	}
	merged := *cfg
	settings.apply(&merged)
	if err := merged.validate(); err != nil {
		return nil, err
	}

	logger := newLogger(merged.LogLevel, merged.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	p, err := loader.Load(ctx, merged.GridPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	logger.Debug("Pipeline loaded.", "files", len(p.Files), "nodes", len(p.Nodes), "edges", len(p.Edges))

	g, err := graph.Build(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules(settings, outW)
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", reg.Kinds())

	if err := reg.Validate(ctx, g.Nodes(ctx)); err != nil {
		return nil, err
	}

	a := &App{
		outW:     outW,
		ctx:      ctx,
		logger:   logger,
		config:   &merged,
		settings: settings,
		registry: reg,
		graph:    g,
	}

	opts := engine.Options{
		ShareVisited: merged.ShareVisited,
		MaxDepth:     merged.MaxDepth,
		ExprBudget:   merged.ExprBudget,
	}
	if merged.HistoryPath != "" {
		store, err := history.Open(merged.HistoryPath)
		if err != nil {
			return nil, err
		}
		a.history = store
		opts.Observers = append(opts.Observers, store)
		logger.Debug("Run history enabled.", "path", merged.HistoryPath)
	}

	e, err := engine.New(ctx, g, reg, opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to prepare engine: %w", err)
	}
	a.engine = e
	return a, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Engine returns the application's engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Close waits for background runs and releases the run history.
func (a *App) Close() error {
	a.background.Wait()
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}
