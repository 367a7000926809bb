package cli

import (
	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/app"
	"github.com/skobkin/picodbg/internal/notifications"
	"github.com/skobkin/picodbg/internal/transport"
)

// Host hooks replaced in tests. A nil notifier means native desktop notifications.
var (
	detectCapability = transport.DetectCapability
	enumeratePorts   = transport.EnumeratePorts
	notifier         notifications.Sender
)

type globalFlags struct {
	configDir string
	logLevel  string
}

// NewRootCommand builds the picodbg command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   app.Name,
		Short: "Serial debug console for Raspberry Pi Pico boards",
		Long: `picodbg connects to a Pico running a debug firmware over USB serial,
prints its output line by line and lets you restart the board or ask the
debug program to quit.

Ports you pick once are remembered and reused on the next start.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "directory for config, grants and logs (default is the user config dir)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCommand(flags),
		newPortsCommand(flags),
		newForgetCommand(flags),
		newVersionCommand(),
	)

	return root
}

func (f *globalFlags) overrides() app.Overrides {
	return app.Overrides{
		ConfigDir: f.configDir,
		LogLevel:  f.logLevel,
	}
}
