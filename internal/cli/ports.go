package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/app"
)

func newPortsCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and which ones are authorized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.Initialize(cmd.Context(), app.Options{
				Overrides:  global.overrides(),
				Capability: detectCapability,
				Enumerate:  enumeratePorts,
				Notifier:   notifier,
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ports, err := rt.ListPorts(cmd.Context(), enumeratePorts)
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PORT\tMATCHES\tAUTHORIZED")
			for _, p := range ports {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Info.Label(), yesNo(p.Matches), yesNo(p.Authorized))
			}

			return w.Flush()
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
