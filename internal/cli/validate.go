package cli

import (
	"github.com/spf13/cobra"
	"github.com/vk/flowgrid/internal/app"
	"github.com/vk/flowgrid/internal/hcl"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [grid-path...]",
		Short: "Validate a pipeline without running it",
		Long: `Validate loads the pipeline, builds the graph, checks that every node kind
has a handler and compiles every expression. Nothing is dispatched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(rootOpts, args, nil, 0)
			if err != nil {
				return err
			}
			a, err := app.NewApp(cmd.OutOrStdout(), cfg, hcl.NewLoader())
			if err != nil {
				return &ExitError{Code: ExitValidation, Message: err.Error()}
			}
			defer a.Close()

			if err := a.Validate(cmd.Context()); err != nil {
				return &ExitError{Code: ExitValidation, Message: err.Error()}
			}
			return nil
		},
	}
	return cmd
}
