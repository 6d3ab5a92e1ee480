package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	ef := &engineFlags{}
	var port int
	cmd := &cobra.Command{
		Use:   "serve [grid-path...]",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve loads the pipeline and exposes it over HTTP:

  GET  /health          liveness
  GET  /nodes           node status and fields
  POST /runs            run the pipeline once and return its report
  POST /runs/cancel     cancel the active run
  GET  /runs            recorded runs (requires --history)
  GET  /runs/{id}       one recorded run with its transitions
  POST /webhooks/{id}   deliver a body to a webhook node and start a run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(rootOpts, args, ef, port)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Serve(ctx); err != nil {
				return &ExitError{Code: ExitOtherError, Message: err.Error()}
			}
			return nil
		},
	}
	ef.register(cmd)
	cmd.Flags().IntVar(&port, "port", 0, "listen port, default 8080")
	return cmd
}
