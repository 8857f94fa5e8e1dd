// internal/cli/output.go
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"dp800ctl/internal/model"
)

// Printer renders command results, colored per channel when enabled
type Printer struct {
	out     io.Writer
	enabled bool
}

var channelColors = map[model.Channel]color.Attribute{
	model.Channel1: color.FgYellow,
	model.Channel2: color.FgCyan,
	model.Channel3: color.FgMagenta,
}

// NewPrinter creates a printer writing to out
func NewPrinter(out io.Writer, enabled bool) *Printer {
	return &Printer{out: out, enabled: enabled}
}

func (p *Printer) style(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// Println writes one plain line
func (p *Printer) Println(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// ChannelState prints one channel block
func (p *Printer) ChannelState(state *model.ChannelState) {
	attr, ok := channelColors[state.Channel]
	if !ok {
		attr = color.Reset
	}
	line := p.style(attr)
	bold := p.style(attr, color.Bold)

	fmt.Fprintln(p.out, line.Sprintf("Channel %d:", state.Channel))
	fmt.Fprintln(p.out, line.Sprint("  Output Enabled:  ")+bold.Sprint(onOff(state.OutputEnabled)))
	fmt.Fprintln(p.out, line.Sprintf("  Set Voltage:     %8.3f V", state.VoltageSetpoint))
	fmt.Fprintln(p.out, line.Sprintf("  Set Current:     %8.3f A", state.CurrentSetpoint))
	fmt.Fprintln(p.out, line.Sprintf("  OVP Value:       %8.3f V", state.OVPValue))
	fmt.Fprintln(p.out, line.Sprintf("  OVP Enabled:     %s", onOff(state.OVPEnabled)))
	fmt.Fprintln(p.out, line.Sprintf("  OCP Value:       %8.3f A", state.OCPValue))
	fmt.Fprintln(p.out, line.Sprintf("  OCP Enabled:     %s", onOff(state.OCPEnabled)))
}

// ChannelStates prints blocks separated by a blank line
func (p *Printer) ChannelStates(states []*model.ChannelState) {
	for i, state := range states {
		if i > 0 {
			fmt.Fprintln(p.out)
		}
		p.ChannelState(state)
	}
}

// Setpoints prints the programmed values of one channel
func (p *Printer) Setpoints(sp *model.Setpoints) {
	attr, ok := channelColors[sp.Channel]
	if !ok {
		attr = color.Reset
	}
	fmt.Fprintln(p.out, p.style(attr).Sprintf("Channel %d Parameters: voltage=%.3f V, current=%.3f A",
		sp.Channel, sp.Voltage, sp.Current))
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
