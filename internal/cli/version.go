package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/app"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.BuildSummary())
		},
	}
}
