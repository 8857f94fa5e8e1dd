// internal/cli/root.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dp800ctl/internal/model"
)

const skipInit = "skip-init"

var errNoCommand = errors.New("no command given")

// NewRootCommand builds the command tree for one invocation
func NewRootCommand(app *Application) *cobra.Command {
	root := &cobra.Command{
		Use:   "dp800",
		Short: "Control a Rigol DP800 power supply over SCPI",
		Long: `dp800 sends SCPI commands to a Rigol DP832/DP832A over LAN (or RS-232).

Settings are read from ~/.dp800config, then ./.dp800config, then flags.

Examples:
  # Show all channels
  dp800 state

  # Program channel 1 to 5 V / 0.5 A and switch it on
  dp800 set 1 -v 5 -c 0.5
  dp800 on 1

  # Save the display to a file
  dp800 screenshot -o display.bmp`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Annotations:   map[string]string{skipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errNoCommand
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipInit] != "" {
				return nil
			}
			return app.initialize(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	root.SetOut(app.opts.Stdout)
	root.SetErr(app.opts.Stderr)

	// Connection flags
	flags := root.PersistentFlags()
	flags.String("ip", "192.168.0.55", "instrument IP address")
	flags.Int("port", 5555, "instrument SCPI socket port")
	flags.String("transport", "tcp", "transport: tcp or serial")
	flags.String("serial-port", "", "serial device for --transport serial")
	flags.Int("baud", 9600, "serial baud rate")
	flags.Duration("timeout", 5*time.Second, "connect and per-reply timeout")

	// Output flags
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("verbose", false, "log SCPI traffic to stderr")

	root.AddCommand(
		newIDCommand(app),
		newStateCommand(app),
		newSetCommand(app),
		newOutputCommand(app, "on", true),
		newOutputCommand(app, "off", false),
		newPresetCommand(app),
		newScreenshotCommand(app),
		newPortsCommand(app),
		newVersionCommand(app),
	)
	return root
}

// Run executes args and returns the process exit code. Every error is
// reported on stderr before returning.
func Run(ctx context.Context, args []string, opts Options) int {
	app := NewApplication(opts)
	root := NewRootCommand(app)
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		app.close()
		fmt.Fprintf(opts.Stderr, "Error: %s\n", describe(err))
	}
	return ExitCode(err)
}

// describe prefixes classified errors with their kind
func describe(err error) string {
	kind := model.KindOf(err)
	if kind == model.KindUnknown {
		return err.Error() + "\nRun 'dp800 --help' for usage."
	}
	return kind.String() + ": " + err.Error()
}
