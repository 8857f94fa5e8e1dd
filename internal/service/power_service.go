// internal/service/power_service.go
package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"dp800ctl/internal/config"
	internalDriver "dp800ctl/internal/driver"
	"dp800ctl/internal/model"
	"dp800ctl/internal/protocol"
	"dp800ctl/internal/scpi"
	"dp800ctl/internal/utils"
	"dp800ctl/internal/validator"
	"dp800ctl/pkg/driver"
)

// PowerService runs one instrument operation per call. Each call opens its
// own connection, identifies the instrument and closes the connection on
// every return path.
type PowerService struct {
	config         *config.Config
	driverRegistry *internalDriver.Registry
	logger         *utils.ServiceLogger
}

// ScreenshotResult describes a saved screenshot
type ScreenshotResult struct {
	Path string
	Size int
}

// NewPowerService creates a new power supply service
func NewPowerService(cfg *config.Config, driverRegistry *internalDriver.Registry, logger *zap.Logger) *PowerService {
	return &PowerService{
		config:         cfg,
		driverRegistry: driverRegistry,
		logger:         utils.NewServiceLogger(logger, "power-service"),
	}
}

// Identify returns the identification of the connected instrument
func (ps *PowerService) Identify(ctx context.Context) (*driver.DeviceInfo, error) {
	var info *driver.DeviceInfo
	err := ps.run(ctx, model.OperationTypeIdentify, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		info = d.GetDeviceInfo()
		return nil
	})
	return info, err
}

// State reads the requested channels in order
func (ps *PowerService) State(ctx context.Context, req validator.StateRequest) ([]*model.ChannelState, error) {
	var states []*model.ChannelState
	err := ps.run(ctx, model.OperationTypeState, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		for _, ch := range req.Channels {
			state, err := d.ChannelState(ctx, ch)
			if err != nil {
				return err
			}
			states = append(states, state)
		}
		return nil
	}, zap.Int("channels", len(req.Channels)))
	return states, err
}

// QuerySetpoints reads the programmed voltage and current of a channel
func (ps *PowerService) QuerySetpoints(ctx context.Context, channel model.Channel) (*model.Setpoints, error) {
	var setpoints *model.Setpoints
	err := ps.run(ctx, model.OperationTypeQuerySetpoints, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		var err error
		setpoints, err = d.Setpoints(ctx, channel)
		return err
	}, zap.Int("channel", int(channel)))
	return setpoints, err
}

// ApplySetpoints programs whichever of voltage and current the request carries,
// voltage first
func (ps *PowerService) ApplySetpoints(ctx context.Context, req validator.SetRequest) error {
	fields := []zap.Field{zap.Int("channel", int(req.Channel))}
	if req.Voltage != nil {
		fields = append(fields, zap.String("voltage", req.Voltage.String()))
	}
	if req.Current != nil {
		fields = append(fields, zap.String("current", req.Current.String()))
	}

	return ps.run(ctx, model.OperationTypeSet, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		if req.Voltage != nil {
			if err := d.SetVoltage(ctx, req.Channel, *req.Voltage); err != nil {
				return err
			}
		}
		if req.Current != nil {
			if err := d.SetCurrent(ctx, req.Channel, *req.Current); err != nil {
				return err
			}
		}
		return nil
	}, fields...)
}

// SetOutput switches the target channels on or off, stopping at the first failure
func (ps *PowerService) SetOutput(ctx context.Context, target model.OutputTarget, enabled bool) error {
	return ps.run(ctx, model.OperationTypeOutput, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		for _, ch := range target.Channels() {
			if err := d.SetOutput(ctx, ch, enabled); err != nil {
				return err
			}
		}
		return nil
	}, zap.String("target", target.String()), zap.Bool("enabled", enabled))
}

// RecallPreset loads a stored setup
func (ps *PowerService) RecallPreset(ctx context.Context, preset model.Preset) error {
	return ps.run(ctx, model.OperationTypePreset, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		return d.RecallPreset(ctx, preset)
	}, zap.String("preset", preset.Name()))
}

// Screenshot captures the display and writes it verbatim to req.Path.
// The connection is released before the file is written.
func (ps *PowerService) Screenshot(ctx context.Context, req validator.ScreenshotRequest) (*ScreenshotResult, error) {
	var data []byte
	err := ps.run(ctx, model.OperationTypeScreenshot, func(ctx context.Context, d driver.PowerSupplyDriver) error {
		var err error
		data, err = d.Screenshot(ctx)
		return err
	}, zap.String("path", req.Path))
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(req.Path, data, 0o644); err != nil {
		return nil, model.NewError(model.KindIO, "write screenshot", err)
	}

	ps.logger.Debug("Screenshot written",
		zap.String("path", req.Path),
		zap.Int("bytes", len(data)),
	)
	return &ScreenshotResult{Path: req.Path, Size: len(data)}, nil
}

// run wraps fn in an operation log entry and a scoped device session
func (ps *PowerService) run(ctx context.Context, operation model.OperationType, fn func(context.Context, driver.PowerSupplyDriver) error, fields ...zap.Field) error {
	opLogger := utils.NewOperationLogger(ps.logger.Logger, string(operation))
	opLogger.Start(fields...)

	if err := ps.withDevice(ctx, opLogger.Logger(), fn); err != nil {
		opLogger.Error(err,
			zap.String("status", string(model.OperationStatusFailed)),
			zap.String("kind", model.KindOf(err).String()),
		)
		return err
	}

	opLogger.Success(zap.String("status", string(model.OperationStatusSuccess)))
	return nil
}

// withDevice opens the configured endpoint, identifies the instrument,
// hands its driver to fn and always closes the connection afterwards
func (ps *PowerService) withDevice(ctx context.Context, logger *zap.Logger, fn func(context.Context, driver.PowerSupplyDriver) error) error {
	endpoint := EndpointFromConfig(ps.config)

	proto, err := protocol.CreateProtocol(endpoint, logger)
	if err != nil {
		return err
	}

	deviceLogger := utils.NewDeviceLogger(logger, proto.Address(), string(proto.GetProtocolType()))

	logger.Debug("Connecting to instrument", zap.String("endpoint", Describe(endpoint)))
	if err := proto.Open(ctx); err != nil {
		deviceLogger.LogConnection("open", false, err)
		return err
	}
	deviceLogger.LogConnection("open", true, nil)
	defer func() {
		stats := proto.Stats()
		err := proto.Close()
		if err != nil {
			logger.Warn("Failed to close connection", zap.Error(err))
		}
		deviceLogger.LogConnection("close", err == nil, err)
		logger.Debug("Connection released",
			zap.Int64("bytes_written", stats.BytesWritten),
			zap.Int64("bytes_read", stats.BytesRead),
			zap.Int64("errors", stats.ErrorCount),
		)
	}()

	session := scpi.NewSession(proto, logger)

	reply, err := session.Query(ctx, scpi.IdentifyQuery)
	if err != nil {
		return err
	}
	identity, err := model.ParseIdentity(reply)
	if err != nil {
		return err
	}

	drv, err := ps.driverRegistry.CreateDriver(identity, session)
	if err != nil {
		return err
	}

	info := drv.GetDeviceInfo()
	info.ConnectionType = proto.GetProtocolType()
	info.Address = proto.Address()

	logger.Debug("Instrument identified",
		zap.String("manufacturer", identity.Manufacturer),
		zap.String("model", identity.Model),
		zap.String("serial", identity.Serial),
		zap.String("firmware", identity.Firmware),
	)

	return fn(ctx, drv)
}

// EndpointFromConfig maps the [device] section to a transport endpoint
func EndpointFromConfig(cfg *config.Config) protocol.Endpoint {
	timeout := cfg.Device.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return protocol.Endpoint{
		Type:     cfg.Device.Transport,
		Host:     cfg.Device.IP,
		Port:     cfg.Device.Port,
		Device:   cfg.Device.SerialPort,
		BaudRate: cfg.Device.BaudRate,
		Timeout:  timeout,
	}
}

// Describe returns a short human readable form of the endpoint
func Describe(endpoint protocol.Endpoint) string {
	if endpoint.Type == model.ConnectionTypeSerial {
		return fmt.Sprintf("%s @ %d baud", endpoint.Device, endpoint.BaudRate)
	}
	return fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port)
}
