// pkg/driver/interfaces.go
package driver

import (
	"context"

	"github.com/shopspring/decimal"

	"dp800ctl/internal/model"
)

// Commander is the SCPI session a driver talks through
type Commander interface {
	Send(ctx context.Context, command string) error
	Query(ctx context.Context, command string) (string, error)
	QueryBinary(ctx context.Context, command string) ([]byte, error)
}

// PowerSupplyDriver is implemented by every supported programmable supply
type PowerSupplyDriver interface {
	// Device information
	GetDeviceInfo() *DeviceInfo
	Channels() []model.Channel

	// Readback
	ChannelState(ctx context.Context, channel model.Channel) (*model.ChannelState, error)
	Setpoints(ctx context.Context, channel model.Channel) (*model.Setpoints, error)

	// Programming
	SetVoltage(ctx context.Context, channel model.Channel, volts decimal.Decimal) error
	SetCurrent(ctx context.Context, channel model.Channel, amps decimal.Decimal) error
	SetOutput(ctx context.Context, channel model.Channel, enabled bool) error
	RecallPreset(ctx context.Context, preset model.Preset) error

	// Display
	Screenshot(ctx context.Context) ([]byte, error)
}
