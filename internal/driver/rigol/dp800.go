// internal/driver/rigol/dp800.go
package rigol

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dp800ctl/internal/model"
	"dp800ctl/internal/validator"
	"dp800ctl/pkg/driver"
)

// Manufacturer is the first *IDN? field of every RIGOL instrument
const Manufacturer = "RIGOL TECHNOLOGIES"

// SupportedModels are the DP800 models whose limits match model.ChannelLimits
var SupportedModels = []string{"DP832", "DP832A"}

// DP800Driver implements driver.PowerSupplyDriver over SCPI
type DP800Driver struct {
	session    driver.Commander
	logger     *zap.Logger
	deviceInfo *driver.DeviceInfo
}

// NewDP800Driver creates a driver for an already identified instrument
func NewDP800Driver(identity model.Identity, session driver.Commander, logger *zap.Logger) (driver.PowerSupplyDriver, error) {
	if session == nil {
		return nil, fmt.Errorf("rigol: nil session")
	}

	return &DP800Driver{
		session: session,
		logger: logger.With(
			zap.String("model", identity.Model),
			zap.String("serial", identity.Serial),
		),
		deviceInfo: driver.NewDeviceInfo(identity, len(model.Channels())),
	}, nil
}

// GetDeviceInfo returns the identification this driver was created with
func (d *DP800Driver) GetDeviceInfo() *driver.DeviceInfo {
	return d.deviceInfo
}

// Channels returns the channels of the instrument
func (d *DP800Driver) Channels() []model.Channel {
	return model.Channels()
}

// ChannelState reads setpoints, protection and output state of one channel
func (d *DP800Driver) ChannelState(ctx context.Context, channel model.Channel) (*model.ChannelState, error) {
	if err := d.checkChannel(channel); err != nil {
		return nil, err
	}

	state := &model.ChannelState{Channel: channel}
	n := int(channel)

	floats := []struct {
		command string
		target  *float64
	}{
		{fmt.Sprintf(cmdQueryVoltage, n), &state.VoltageSetpoint},
		{fmt.Sprintf(cmdQueryCurrent, n), &state.CurrentSetpoint},
		{fmt.Sprintf(cmdQueryOVP, n), &state.OVPValue},
		{fmt.Sprintf(cmdQueryOCP, n), &state.OCPValue},
	}
	for _, f := range floats {
		v, err := d.queryFloat(ctx, f.command)
		if err != nil {
			return nil, err
		}
		*f.target = v
	}

	flags := []struct {
		command string
		target  *bool
	}{
		{fmt.Sprintf(cmdQueryOVPEnabled, n), &state.OVPEnabled},
		{fmt.Sprintf(cmdQueryOCPEnabled, n), &state.OCPEnabled},
		{fmt.Sprintf(cmdQueryOutput, n), &state.OutputEnabled},
	}
	for _, f := range flags {
		v, err := d.queryBool(ctx, f.command)
		if err != nil {
			return nil, err
		}
		*f.target = v
	}

	d.logger.Debug("Channel state read",
		zap.Int("channel", n),
		zap.Float64("voltage", state.VoltageSetpoint),
		zap.Float64("current", state.CurrentSetpoint),
		zap.Bool("output", state.OutputEnabled),
	)
	return state, nil
}

// Setpoints reads the programmed voltage and current
func (d *DP800Driver) Setpoints(ctx context.Context, channel model.Channel) (*model.Setpoints, error) {
	if err := d.checkChannel(channel); err != nil {
		return nil, err
	}

	voltage, err := d.queryFloat(ctx, fmt.Sprintf(cmdQueryVoltage, int(channel)))
	if err != nil {
		return nil, err
	}
	current, err := d.queryFloat(ctx, fmt.Sprintf(cmdQueryCurrent, int(channel)))
	if err != nil {
		return nil, err
	}
	return &model.Setpoints{Channel: channel, Voltage: voltage, Current: current}, nil
}

// SetVoltage programs the voltage setpoint
func (d *DP800Driver) SetVoltage(ctx context.Context, channel model.Channel, volts decimal.Decimal) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.session.Send(ctx, fmt.Sprintf(cmdSetVoltage, int(channel), validator.FormatValue(volts)))
}

// SetCurrent programs the current setpoint
func (d *DP800Driver) SetCurrent(ctx context.Context, channel model.Channel, amps decimal.Decimal) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.session.Send(ctx, fmt.Sprintf(cmdSetCurrent, int(channel), validator.FormatValue(amps)))
}

// SetOutput switches a channel output on or off
func (d *DP800Driver) SetOutput(ctx context.Context, channel model.Channel, enabled bool) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.session.Send(ctx, fmt.Sprintf(cmdSetOutput, int(channel), onOff(enabled)))
}

// RecallPreset loads a stored setup
func (d *DP800Driver) RecallPreset(ctx context.Context, preset model.Preset) error {
	if !preset.Valid() {
		return model.Validationf(model.ErrInvalidPreset, "%d", int(preset))
	}
	return d.session.Send(ctx, fmt.Sprintf(cmdRecallPreset, preset.Name()))
}

// Screenshot returns the display image as sent by the instrument (BMP)
func (d *DP800Driver) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := d.session.QueryBinary(ctx, cmdScreenshot)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Screenshot received", zap.Int("bytes", len(data)))
	return data, nil
}

func (d *DP800Driver) checkChannel(channel model.Channel) error {
	if !channel.Valid() {
		return model.Validationf(model.ErrInvalidChannel, "%d (must be 1-%d)", int(channel), len(model.ChannelLimits))
	}
	return nil
}

func (d *DP800Driver) queryFloat(ctx context.Context, command string) (float64, error) {
	reply, err := d.session.Query(ctx, command)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, malformed(command, reply, "a number")
	}
	return v, nil
}

func (d *DP800Driver) queryBool(ctx context.Context, command string) (bool, error) {
	reply, err := d.session.Query(ctx, command)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	default:
		return false, malformed(command, reply, "ON or OFF")
	}
}

func malformed(command, reply, expected string) error {
	return model.NewError(model.KindProtocol, "query "+command,
		fmt.Errorf("%w: got %q, expected %s", model.ErrMalformedReply, reply, expected))
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}
