package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/app"
)

func newForgetCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget [port]",
		Short: "Forget a remembered port, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			port := ""
			if len(args) == 1 {
				port = args[0]
			}
			n, err := rt.ForgetPort(cmd.Context(), port)
			if err != nil {
				return err
			}

			switch {
			case port != "" && n == 0:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s was not authorized.\n", port)
			case port != "":
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s.\n", port)
			default:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forgot %d port(s).\n", n)
			}

			return nil
		},
	}
}
