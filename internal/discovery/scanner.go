// internal/discovery/scanner.go
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	internalDriver "dp800ctl/internal/driver"
	"dp800ctl/internal/model"
	"dp800ctl/internal/protocol"
	"dp800ctl/internal/scpi"
)

// DiscoveredPort is one serial port and, when probed, what answered on it
type DiscoveredPort struct {
	Port      string          `json:"port"`
	Identity  *model.Identity `json:"identity,omitempty"`
	Supported bool            `json:"supported"`
	Err       error           `json:"-"`
}

// ProtocolFactory opens transports; protocol.CreateProtocol in production
type ProtocolFactory func(endpoint protocol.Endpoint, logger *zap.Logger) (protocol.DeviceProtocol, error)

// PortLister enumerates serial ports; protocol.ListSerialPorts in production
type PortLister func() ([]string, error)

// SerialScanner lists serial ports and optionally asks each one for *IDN?
type SerialScanner struct {
	logger   *zap.Logger
	registry *internalDriver.Registry
	list     PortLister
	open     ProtocolFactory
	baudRate int
	timeout  time.Duration
}

// NewSerialScanner creates a scanner probing at the given baud rate
func NewSerialScanner(registry *internalDriver.Registry, baudRate int, timeout time.Duration, logger *zap.Logger) *SerialScanner {
	return &SerialScanner{
		logger:   logger.With(zap.String("scanner", "serial")),
		registry: registry,
		list:     protocol.ListSerialPorts,
		open:     protocol.CreateProtocol,
		baudRate: baudRate,
		timeout:  timeout,
	}
}

// WithSources replaces port enumeration and transport creation
func (s *SerialScanner) WithSources(list PortLister, open ProtocolFactory) *SerialScanner {
	s.list = list
	s.open = open
	return s
}

// Scan lists the ports. With probe set every port is opened in turn and
// identified; a port that fails to answer is reported, not fatal.
func (s *SerialScanner) Scan(ctx context.Context, probe bool) ([]*DiscoveredPort, error) {
	ports, err := s.list()
	if err != nil {
		return nil, model.NewError(model.KindIO, "list serial ports", err)
	}
	s.logger.Debug("Found serial ports", zap.Strings("ports", ports))

	discovered := make([]*DiscoveredPort, 0, len(ports))
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return discovered, model.NewError(model.KindConnection, "scan", ctx.Err())
		default:
		}

		entry := &DiscoveredPort{Port: port}
		if probe {
			s.probePort(ctx, entry)
		}
		discovered = append(discovered, entry)
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports", len(discovered)))
	return discovered, nil
}

func (s *SerialScanner) probePort(ctx context.Context, entry *DiscoveredPort) {
	logger := s.logger.With(zap.String("port", entry.Port))

	proto, err := s.open(protocol.Endpoint{
		Type:     model.ConnectionTypeSerial,
		Device:   entry.Port,
		BaudRate: s.baudRate,
		Timeout:  s.timeout,
	}, logger)
	if err != nil {
		entry.Err = err
		return
	}

	if err := proto.Open(ctx); err != nil {
		entry.Err = err
		return
	}
	defer proto.Close()

	reply, err := scpi.NewSession(proto, logger).Query(ctx, scpi.IdentifyQuery)
	if err != nil {
		entry.Err = err
		return
	}

	identity, err := model.ParseIdentity(reply)
	if err != nil {
		entry.Err = err
		return
	}
	entry.Identity = &identity
	entry.Supported = s.registry.IsSupported(identity)
}
