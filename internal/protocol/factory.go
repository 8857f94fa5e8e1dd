// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"dp800ctl/internal/model"
)

// Endpoint describes where the instrument is and how to reach it
type Endpoint struct {
	Type     model.ConnectionType
	Host     string
	Port     int
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// CreateProtocol creates a protocol based on the endpoint's connection type
func CreateProtocol(endpoint Endpoint, logger *zap.Logger) (DeviceProtocol, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, model.NewError(model.KindConfiguration, "create protocol", err)
	}

	switch endpoint.Type {
	case model.ConnectionTypeSerial:
		return createSerialProtocol(endpoint, logger), nil
	case model.ConnectionTypeTCP:
		return createTCPProtocol(endpoint, logger), nil
	default:
		return nil, model.NewError(model.KindConfiguration, "create protocol",
			fmt.Errorf("unsupported protocol type: %s", endpoint.Type))
	}
}

// createSerialProtocol creates a serial protocol (DP800 rear panel: 8N1, no flow control)
func createSerialProtocol(endpoint Endpoint, logger *zap.Logger) DeviceProtocol {
	serialConfig := &SerialConfig{
		Port:     endpoint.Device,
		BaudRate: endpoint.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  endpoint.Timeout,
	}

	logger.Debug("Creating serial protocol",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

// createTCPProtocol creates a TCP protocol
func createTCPProtocol(endpoint Endpoint, logger *zap.Logger) DeviceProtocol {
	tcpConfig := &TCPConfig{
		Host:         endpoint.Host,
		Port:         endpoint.Port,
		KeepAlive:    false,
		Timeout:      endpoint.Timeout,
		ReadTimeout:  endpoint.Timeout,
		WriteTimeout: endpoint.Timeout,
	}

	logger.Debug("Creating TCP protocol",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
	)

	return NewTCPConnection(tcpConfig, logger)
}

// ValidateEndpoint validates configuration for the endpoint's protocol type
func ValidateEndpoint(endpoint Endpoint) error {
	switch endpoint.Type {
	case model.ConnectionTypeSerial:
		return validateSerialEndpoint(endpoint)
	case model.ConnectionTypeTCP:
		return validateTCPEndpoint(endpoint)
	default:
		return fmt.Errorf("unsupported connection type: %s", endpoint.Type)
	}
}

// validateSerialEndpoint validates serial configuration
func validateSerialEndpoint(endpoint Endpoint) error {
	if endpoint.Device == "" {
		return fmt.Errorf("serial port is required (set [device] serialport or --serial-port)")
	}

	// rates offered by the DP800 utility menu
	validRates := []int{4800, 9600, 19200, 38400, 57600, 115200}
	for _, validRate := range validRates {
		if endpoint.BaudRate == validRate {
			return nil
		}
	}
	return fmt.Errorf("invalid baud rate: %d", endpoint.BaudRate)
}

// validateTCPEndpoint validates TCP configuration
func validateTCPEndpoint(endpoint Endpoint) error {
	if endpoint.Host == "" {
		return fmt.Errorf("TCP host is required")
	}

	if endpoint.Port < 1 || endpoint.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", endpoint.Port)
	}

	return nil
}
