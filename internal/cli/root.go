package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/flowgrid/internal/app"
	"github.com/vk/flowgrid/internal/hcl"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Grid        []string
	Settings    string
	LogLevel    string
	LogFormat   string
	HistoryPath string
}

// NewRootCommand creates the root command of the flowgrid CLI. Logs and
// pipeline output go to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "flowgrid",
		Short: "flowgrid - run node-based pipelines",
		Long: `flowgrid runs pipelines of nodes connected by edges, declared in HCL files.

Entry nodes (prompts, uploads, webhooks) feed payloads through control-flow
nodes (function, condition, router, wait) into capability nodes that call
external services, and into output nodes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.PersistentFlags().StringSliceVarP(&opts.Grid, "grid", "g", nil, "grid file, directory or glob (repeatable)")
	cmd.PersistentFlags().StringVar(&opts.Settings, "config", "", "YAML settings file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), default info")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json|auto), default auto")
	cmd.PersistentFlags().StringVar(&opts.HistoryPath, "history", "", "SQLite file to record runs in")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns an error whose exit code is
// given by ExitCode.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	cmd := NewRootCommand(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Unknown commands and argument errors come from cobra itself.
		return usageError(err)
	}
	return err
}

// engineFlags are shared by the commands that run the engine.
type engineFlags struct {
	shareVisited bool
	maxDepth     int
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.shareVisited, "share-visited", false, "dispatch a node at most once per run, across all entry nodes")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "maximum number of hops from an entry node, default 256")
}

// buildConfig turns flags and positional grid paths into a validated config.
func buildConfig(opts *RootOptions, args []string, ef *engineFlags, port int) (*app.Config, error) {
	cfg := app.Config{
		GridPaths:    append(append([]string{}, opts.Grid...), args...),
		SettingsPath: opts.Settings,
		LogLevel:     opts.LogLevel,
		LogFormat:    opts.LogFormat,
		HistoryPath:  opts.HistoryPath,
		Port:         port,
	}
	if ef != nil {
		cfg.ShareVisited = ef.shareVisited
		cfg.MaxDepth = ef.maxDepth
	}
	c, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return c, nil
}

func newApp(out io.Writer, cfg *app.Config) (*app.App, error) {
	a, err := app.NewApp(out, cfg, hcl.NewLoader())
	if err != nil {
		return nil, &ExitError{Code: ExitOtherError, Message: err.Error()}
	}
	return a, nil
}
