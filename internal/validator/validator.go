// internal/validator/validator.go
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dp800ctl/internal/model"
)

// SetRequest is a validated "set" invocation. With neither value present it
// reads the setpoints back instead of writing them.
type SetRequest struct {
	Channel model.Channel
	Voltage *decimal.Decimal
	Current *decimal.Decimal
}

// IsQuery reports whether the request only reads the setpoints
func (r SetRequest) IsQuery() bool {
	return r.Voltage == nil && r.Current == nil
}

// StateRequest selects the channels to report
type StateRequest struct {
	Channels []model.Channel
}

// ScreenshotRequest holds the resolved output file
type ScreenshotRequest struct {
	Path      string
	Generated bool
}

// ValidateSet checks channel and bounds. voltage and current are nil when
// the flag was not given.
func ValidateSet(channel string, voltage, current *string) (SetRequest, error) {
	ch, err := model.ParseChannel(channel)
	if err != nil {
		return SetRequest{}, err
	}
	limits, _ := ch.Limits()

	req := SetRequest{Channel: ch}
	if voltage != nil {
		v, err := parseBounded("voltage", *voltage, limits.VoltageMax, "V", ch)
		if err != nil {
			return SetRequest{}, err
		}
		req.Voltage = &v
	}
	if current != nil {
		c, err := parseBounded("current", *current, limits.CurrentMax, "A", ch)
		if err != nil {
			return SetRequest{}, err
		}
		req.Current = &c
	}
	return req, nil
}

func parseBounded(name, raw string, max decimal.Decimal, unit string, ch model.Channel) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, model.Validationf(model.ErrInvalidValue, "%s %q is not a number", name, raw)
	}
	if value.IsNegative() || value.GreaterThan(max) {
		return decimal.Decimal{}, model.Validationf(model.ErrOutOfRange,
			"%s %s %s on channel %d (allowed 0-%s %s)", name, value.String(), unit, ch, max.String(), unit)
	}
	return value, nil
}

// ValidateState accepts an empty channel (all channels) or 1-3
func ValidateState(channel string) (StateRequest, error) {
	if channel == "" {
		return StateRequest{Channels: model.Channels()}, nil
	}
	ch, err := model.ParseChannel(channel)
	if err != nil {
		return StateRequest{}, err
	}
	return StateRequest{Channels: []model.Channel{ch}}, nil
}

// ValidateOutput accepts a channel number or "all"
func ValidateOutput(token string) (model.OutputTarget, error) {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, "all") {
		return model.OutputTarget{All: true}, nil
	}

	n, err := strconv.Atoi(token)
	if err != nil || !model.Channel(n).Valid() {
		return model.OutputTarget{}, model.Validationf(model.ErrInvalidChannel,
			"%q (must be 1-%d or 'all')", token, len(model.ChannelLimits))
	}
	return model.OutputTarget{Channel: model.Channel(n)}, nil
}

// ValidatePreset accepts 0 (DEFAULT) through 4 (USER4)
func ValidatePreset(token string) (model.Preset, error) {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil || !model.Preset(n).Valid() {
		return 0, model.Validationf(model.ErrInvalidPreset, "%q (must be 0-%d)", token, int(model.PresetUser4))
	}
	return model.Preset(n), nil
}

// ValidateScreenshot checks that output can be created. An empty output
// yields a timestamped name in the working directory.
func ValidateScreenshot(output, ip string, now time.Time) (ScreenshotRequest, error) {
	if output == "" {
		return ScreenshotRequest{Path: DefaultScreenshotName(ip, now), Generated: true}, nil
	}

	info, err := os.Stat(output)
	if err == nil && info.IsDir() {
		return ScreenshotRequest{}, model.Validationf(model.ErrInvalidPath, "%s is a directory", output)
	}

	dir := filepath.Dir(output)
	if err := checkWritableDir(dir); err != nil {
		return ScreenshotRequest{}, model.Validationf(model.ErrInvalidPath, "%s: %v", output, err)
	}
	return ScreenshotRequest{Path: output}, nil
}

// DefaultScreenshotName returns screenshot_<ip>_<timestamp>.bmp
func DefaultScreenshotName(ip string, now time.Time) string {
	return fmt.Sprintf("screenshot_%s_%s.bmp", ip, now.Format("2006-01-02T15:04:05"))
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory %s does not exist", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".dp800-write-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable", dir)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// FormatValue renders a setpoint for the wire. Whole numbers keep one
// decimal place so 12 is sent as 12.0.
func FormatValue(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return d.StringFixed(1)
	}
	return s
}
