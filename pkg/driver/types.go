// pkg/driver/types.go
package driver

import (
	"dp800ctl/internal/model"
)

// DeviceInfo contains basic device information
type DeviceInfo struct {
	Manufacturer    string               `json:"manufacturer"`
	Model           string               `json:"model"`
	SerialNumber    string               `json:"serial_number"`
	FirmwareVersion string               `json:"firmware_version"`
	ConnectionType  model.ConnectionType `json:"connection_type"`
	Address         string               `json:"address"`
	ChannelCount    int                  `json:"channel_count"`
	IDN             string               `json:"idn"`
}

// NewDeviceInfo fills DeviceInfo from a parsed *IDN? reply
func NewDeviceInfo(identity model.Identity, channelCount int) *DeviceInfo {
	return &DeviceInfo{
		Manufacturer:    identity.Manufacturer,
		Model:           identity.Model,
		SerialNumber:    identity.Serial,
		FirmwareVersion: identity.Firmware,
		ChannelCount:    channelCount,
		IDN:             identity.Raw,
	}
}
