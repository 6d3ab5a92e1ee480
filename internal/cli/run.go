package cli

import (
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	ef := &engineFlags{}
	cmd := &cobra.Command{
		Use:   "run [grid-path...]",
		Short: "Run a pipeline once",
		Long: `Run loads the pipeline, runs every entry node's subgraph once and exits.

The exit code reflects the terminal signal of the run: 0 ok, 1 other error,
3 validation error, 4 no input node, 5 authentication required, 6 cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(rootOpts, args, ef, 0)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.Run(cmd.Context())
			return runExitError(err)
		},
	}
	ef.register(cmd)
	return cmd
}
