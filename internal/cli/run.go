package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/app"
	"github.com/skobkin/picodbg/internal/console"
	"github.com/skobkin/picodbg/internal/debugger"
	"github.com/skobkin/picodbg/internal/platform"
)

const runHelp = "Commands: r = restart board, q = quit debug program, x = leave picodbg"

type runFlags struct {
	vendorID     string
	baudRate     int
	restartDelay string
	autoSelect   bool
}

func newRunCommand(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the board and stream its debug output",
		Long: `Connect to the most recently used authorized port, or ask which matching
port to use, and print every line the board sends.

While running, type a command and press Enter:
  r   restart the board and reconnect after the restart delay
  q   ask the debug program to quit
  x   leave picodbg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, global, flags)
		},
	}
	cmd.Flags().StringVar(&flags.vendorID, "vid", "", "USB vendor ID (hex) offered for authorization")
	cmd.Flags().IntVar(&flags.baudRate, "baud", 0, "serial baud rate")
	cmd.Flags().StringVar(&flags.restartDelay, "restart-delay", "", "pause between restart and reconnect, e.g. 2s")
	cmd.Flags().BoolVar(&flags.autoSelect, "auto", false, "pick the only matching port without asking")

	return cmd
}

func runSession(cmd *cobra.Command, global *globalFlags, flags *runFlags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	overrides := global.overrides()
	overrides.VendorID = flags.vendorID
	overrides.BaudRate = flags.baudRate
	overrides.RestartDelay = flags.restartDelay
	overrides.AutoSelect = flags.autoSelect

	input := app.NewInput(cmd.InOrStdin(), nil)
	rt, err := app.Initialize(ctx, app.Options{
		Overrides:  overrides,
		Input:      input,
		PromptOut:  cmd.ErrOrStderr(),
		Capability: detectCapability,
		Enumerate:  enumeratePorts,
		Notifier:   notifier,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	logger := rt.LogManager.Logger("cli")
	lock, err := platform.AcquireInstanceLock(rt.Paths.RootDir, app.Name)
	switch {
	case errors.Is(err, platform.ErrInstanceAlreadyRunning):
		return fmt.Errorf("another %s console is using %s: %w", app.Name, rt.Paths.RootDir, err)
	case err != nil:
		logger.Warn("instance lock unavailable", "error", err)
	default:
		defer func() { _ = lock.Release() }()
	}
	renderer := console.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), rt.LogManager.Logger("console"))
	stopRenderer := renderer.Start(rt.Bus)
	defer stopRenderer()

	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), runHelp)

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		dispatchCommands(rt.Ctx, input.Commands(), rt.Session, cancel, cmd.ErrOrStderr())
	}()

	if err := rt.Session.Start(rt.Ctx); err != nil {
		return err
	}
	logger.Debug("initial session ended; waiting for commands")

	select {
	case <-rt.Ctx.Done():
	case <-inputDone:
	}

	return nil
}

// sessionController is the part of the session driven by terminal commands.
type sessionController interface {
	Restart(ctx context.Context) *debugger.RestartTimer
	Exit()
}

func dispatchCommands(ctx context.Context, commands <-chan string, session sessionController, leave func(), errOut io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-commands:
			if !ok {
				return
			}
			switch strings.ToLower(line) {
			case "":
			case "r", "restart":
				session.Restart(ctx)
			case "q", "quit":
				session.Exit()
			case "x", "exit", "leave":
				leave()
				return
			default:
				_, _ = fmt.Fprintf(errOut, "Unknown command %q. %s\n", line, runHelp)
			}
		}
	}
}
