// internal/model/device.go
package model

import (
	"fmt"
	"strings"
)

// ConnectionType represents how the instrument is connected
type ConnectionType string

const (
	ConnectionTypeTCP    ConnectionType = "TCP"
	ConnectionTypeSerial ConnectionType = "SERIAL"
)

// ParseConnectionType maps a config or flag token to a ConnectionType
func ParseConnectionType(s string) (ConnectionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TCP", "LAN":
		return ConnectionTypeTCP, nil
	case "SERIAL", "RS232":
		return ConnectionTypeSerial, nil
	default:
		return "", fmt.Errorf("unsupported transport %q (must be tcp or serial)", s)
	}
}

// Identity is the parsed reply to *IDN?
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
	Raw          string `json:"raw"`
}

// ParseIdentity splits an IEEE 488.2 identification string
// ("RIGOL TECHNOLOGIES,DP832A,DP8B264501878,00.01.19").
// Only manufacturer and model are required.
func ParseIdentity(s string) (Identity, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Identity{}, &Error{Kind: KindProtocol, Op: "parse identity", Err: ErrEmptyReply}
	}

	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return Identity{}, &Error{
			Kind: KindProtocol,
			Op:   "parse identity",
			Err:  fmt.Errorf("%w: invalid identification format %q", ErrMalformedReply, raw),
		}
	}

	id := Identity{
		Manufacturer: strings.TrimSpace(parts[0]),
		Model:        strings.TrimSpace(parts[1]),
		Raw:          raw,
	}
	if len(parts) > 2 {
		id.Serial = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		id.Firmware = strings.TrimSpace(parts[3])
	}
	return id, nil
}

func (i Identity) String() string {
	return i.Raw
}
