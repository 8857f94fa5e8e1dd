// internal/cli/commands.go
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dp800ctl/internal/discovery"
	"dp800ctl/internal/service"
	"dp800ctl/internal/validator"
)

func newIDCommand(app *Application) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the instrument identification (*IDN?)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := app.powerService.Identify(cmd.Context())
			if err != nil {
				return err
			}
			app.printer.Println("Device ID: %s", info.IDN)
			return nil
		},
	}
}

func newStateCommand(app *Application) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show setpoints, protection and output state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := validator.ValidateState(channel)
			if err != nil {
				return err
			}

			states, err := app.powerService.State(cmd.Context(), req)
			if err != nil {
				return err
			}
			app.printer.ChannelStates(states)
			return nil
		},
	}
	cmd.Flags().StringVarP(&channel, "channel", "c", "", "channel 1-3 (default: all channels)")
	return cmd
}

func newSetCommand(app *Application) *cobra.Command {
	var voltage, current string

	cmd := &cobra.Command{
		Use:   "set CHANNEL [-v VOLTS] [-c AMPS]",
		Short: "Program voltage and/or current; without values, show them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v, c *string
			if cmd.Flags().Changed("voltage") {
				v = &voltage
			}
			if cmd.Flags().Changed("current") {
				c = &current
			}

			req, err := validator.ValidateSet(args[0], v, c)
			if err != nil {
				return err
			}

			if req.IsQuery() {
				sp, err := app.powerService.QuerySetpoints(cmd.Context(), req.Channel)
				if err != nil {
					return err
				}
				app.printer.Setpoints(sp)
				return nil
			}

			if err := app.powerService.ApplySetpoints(cmd.Context(), req); err != nil {
				return err
			}

			var items []string
			if req.Voltage != nil {
				items = append(items, "voltage to "+validator.FormatValue(*req.Voltage)+" V")
			}
			if req.Current != nil {
				items = append(items, "current to "+validator.FormatValue(*req.Current)+" A")
			}
			app.printer.Println("Channel %d: Set %s", req.Channel, strings.Join(items, " and "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&voltage, "voltage", "v", "", "voltage in volts")
	cmd.Flags().StringVarP(&current, "current", "c", "", "current in amps")
	return cmd
}

func newOutputCommand(app *Application, name string, enabled bool) *cobra.Command {
	state := strings.ToUpper(name)

	return &cobra.Command{
		Use:   name + " {1|2|3|all}",
		Short: "Turn channel output " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := validator.ValidateOutput(args[0])
			if err != nil {
				return err
			}

			if err := app.powerService.SetOutput(cmd.Context(), target, enabled); err != nil {
				return err
			}

			if target.All {
				app.printer.Println("All channels turned %s", state)
			} else {
				app.printer.Println("Channel %d turned %s", target.Channel, state)
			}
			return nil
		},
	}
}

func newPresetCommand(app *Application) *cobra.Command {
	return &cobra.Command{
		Use:   "preset {0|1|2|3|4}",
		Short: "Recall a stored setup (0 = DEFAULT, 1-4 = USER1-USER4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := validator.ValidatePreset(args[0])
			if err != nil {
				return err
			}

			if err := app.powerService.RecallPreset(cmd.Context(), preset); err != nil {
				return err
			}
			app.printer.Println("Recalled preset %s", preset.Name())
			return nil
		},
	}
}

func newScreenshotCommand(app *Application) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "screenshot [-o FILE]",
		Short: "Save the instrument display as a BMP file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := validator.ValidateScreenshot(output, app.config.Device.IP, app.opts.Now())
			if err != nil {
				return err
			}

			result, err := app.powerService.Screenshot(cmd.Context(), req)
			if err != nil {
				return err
			}
			app.printer.Println("Screenshot saved to: %s", result.Path)

			tools := app.config.Tools
			if tools.ScreenshotViewer == "" {
				return nil
			}
			command, err := service.LaunchViewer(tools.ScreenshotViewer, result.Path, tools.ScreenshotDebug, app.logger)
			if err != nil {
				// the screenshot itself succeeded
				app.logger.Debug("Viewer failed", zap.Error(err))
				cmd.PrintErrf("Warning: %v\n", err)
				return nil
			}
			app.printer.Println("Opening screenshot with: %s", command)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: screenshot_<ip>_<timestamp>.bmp)")
	return cmd
}

func newPortsCommand(app *Application) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports; with --probe, identify what answers on each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := discovery.NewSerialScanner(app.driverRegistry, app.config.Device.BaudRate, app.config.Device.Timeout, app.logger)
			ports, err := scanner.Scan(cmd.Context(), probe)
			if err != nil {
				return err
			}
			printPorts(app.printer, ports, probe)
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "send *IDN? on every port at the configured baud rate")
	return cmd
}

func printPorts(p *Printer, ports []*discovery.DiscoveredPort, probe bool) {
	if len(ports) == 0 {
		p.Println("No serial ports found")
		return
	}
	for _, port := range ports {
		switch {
		case !probe:
			p.Println("%s", port.Port)
		case port.Err != nil:
			p.Println("%s: no answer (%v)", port.Port, port.Err)
		case port.Supported:
			p.Println("%s: %s (supported)", port.Port, port.Identity.Raw)
		default:
			p.Println("%s: %s (unsupported)", port.Port, port.Identity.Raw)
		}
	}
}

func newVersionCommand(app *Application) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipInit: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("dp800 version %s\n", Version)
		},
	}
}
