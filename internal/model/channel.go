// internal/model/channel.go
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Channel is a DP800 output channel number
type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
	Channel3 Channel = 3
)

// Limits holds the programmable maximums of one channel
type Limits struct {
	VoltageMax decimal.Decimal
	CurrentMax decimal.Decimal
}

// ChannelLimits is the DP832/DP832A limit table. Channel count for "all"
// is derived from it.
var ChannelLimits = map[Channel]Limits{
	Channel1: {VoltageMax: decimal.RequireFromString("32"), CurrentMax: decimal.RequireFromString("3.2")},
	Channel2: {VoltageMax: decimal.RequireFromString("32"), CurrentMax: decimal.RequireFromString("3.2")},
	Channel3: {VoltageMax: decimal.RequireFromString("5.3"), CurrentMax: decimal.RequireFromString("3.2")},
}

// Channels returns every channel in ascending order
func Channels() []Channel {
	return []Channel{Channel1, Channel2, Channel3}
}

// Valid reports whether the channel exists on the instrument
func (c Channel) Valid() bool {
	_, ok := ChannelLimits[c]
	return ok
}

// Limits returns the channel's limits; ok is false for unknown channels
func (c Channel) Limits() (Limits, bool) {
	l, ok := ChannelLimits[c]
	return l, ok
}

func (c Channel) String() string {
	return strconv.Itoa(int(c))
}

// ParseChannel parses "1".."3"
func ParseChannel(s string) (Channel, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Channel(n).Valid() {
		return 0, Validationf(ErrInvalidChannel, "%q (must be 1-%d)", s, len(ChannelLimits))
	}
	return Channel(n), nil
}

// ChannelState is a snapshot of one channel read from the instrument
type ChannelState struct {
	Channel         Channel `json:"channel"`
	OutputEnabled   bool    `json:"output_enabled"`
	VoltageSetpoint float64 `json:"set_voltage"`
	CurrentSetpoint float64 `json:"set_current"`
	OVPValue        float64 `json:"ovp_value"`
	OVPEnabled      bool    `json:"ovp_enabled"`
	OCPValue        float64 `json:"ocp_value"`
	OCPEnabled      bool    `json:"ocp_enabled"`
}

// Setpoints are the programmed voltage and current of a channel
type Setpoints struct {
	Channel Channel `json:"channel"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

// OutputTarget selects one channel or all of them
type OutputTarget struct {
	All     bool
	Channel Channel
}

// Channels expands the target to concrete channels
func (t OutputTarget) Channels() []Channel {
	if t.All {
		return Channels()
	}
	return []Channel{t.Channel}
}

func (t OutputTarget) String() string {
	if t.All {
		return "all"
	}
	return t.Channel.String()
}

// Preset is a stored setup slot
type Preset int

const (
	PresetDefault Preset = iota
	PresetUser1
	PresetUser2
	PresetUser3
	PresetUser4
)

// Valid reports whether the preset index exists
func (p Preset) Valid() bool {
	return p >= PresetDefault && p <= PresetUser4
}

// Name returns the SCPI token for the preset
func (p Preset) Name() string {
	if p == PresetDefault {
		return "DEFAULT"
	}
	return fmt.Sprintf("USER%d", int(p))
}

func (p Preset) String() string {
	return p.Name()
}
