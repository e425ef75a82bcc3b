package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/vzpilot/internal/workflow"
)

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the setup assistant steps in the order they run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bodies are never invoked here, so no driver is needed.
			defs := workflow.SetupAssistant(nil, workflow.DefaultSetupOptions())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tNAME")
			for i, def := range defs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, def.ID, def.Name)
			}
			return tw.Flush()
		},
	}
}
