// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dp800ctl/internal/model"
)

// FileName is the name of the user and local configuration files
const FileName = ".dp800config"

// Config represents the effective configuration of one invocation
type Config struct {
	Device  DeviceConfig
	Display DisplayConfig
	Tools   ToolsConfig
	Logging LoggingConfig

	// Files lists the configuration files that were merged, lowest priority first
	Files []string
}

// DeviceConfig represents how to reach the instrument
type DeviceConfig struct {
	IP         string
	Port       int
	Transport  model.ConnectionType
	SerialPort string
	BaudRate   int
	Timeout    time.Duration
}

// DisplayConfig represents output presentation
type DisplayConfig struct {
	Color bool
}

// ToolsConfig represents external tool integration
type ToolsConfig struct {
	ScreenshotViewer string
	ScreenshotDebug  bool
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// rawConfig mirrors the INI layout; values stay strings until validated
type rawConfig struct {
	Device struct {
		IP         string `mapstructure:"ip"`
		Port       string `mapstructure:"port"`
		Transport  string `mapstructure:"transport"`
		SerialPort string `mapstructure:"serialport"`
		BaudRate   string `mapstructure:"baudrate"`
		Timeout    string `mapstructure:"timeout"`
	} `mapstructure:"device"`
	Display struct {
		Color string `mapstructure:"color"`
	} `mapstructure:"display"`
	Tools struct {
		ScreenshotViewer string `mapstructure:"screenshotviewer"`
		ScreenshotDebug  string `mapstructure:"screenshotdebug"`
	} `mapstructure:"tools"`
	Logging struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		Output     string `mapstructure:"output"`
		MaxSize    string `mapstructure:"maxsize"`
		MaxBackups string `mapstructure:"maxbackups"`
		MaxAge     string `mapstructure:"maxage"`
		Compress   string `mapstructure:"compress"`
	} `mapstructure:"logging"`
}

// Options locate the configuration sources
type Options struct {
	// HomeDir holds the user file; empty skips it
	HomeDir string
	// WorkDir holds the local file; empty skips it
	WorkDir string
	// Flags are the parsed command-line flags; only flags that were set override files
	Flags *pflag.FlagSet
}

// flagKeys binds config keys to command-line flag names
var flagKeys = map[string]string{
	"device.ip":         "ip",
	"device.port":       "port",
	"device.transport":  "transport",
	"device.serialport": "serial-port",
	"device.baudrate":   "baud",
	"device.timeout":    "timeout",
}

// Load resolves defaults, then ~/.dp800config, then ./.dp800config, then flags
func Load(opts Options) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, model.NewError(model.KindConfiguration, "init config", err)
	}

	setDefaults(v)

	var files []string
	for _, dir := range []string{opts.HomeDir, opts.WorkDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, FileName)
		merged, err := mergeFile(v, path)
		if err != nil {
			return nil, err
		}
		if merged {
			files = appendUnique(files, path)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, model.NewError(model.KindConfiguration, "bind flags", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, model.NewError(model.KindConfiguration, "decode config", err)
	}

	cfg, err := build(&raw)
	if err != nil {
		return nil, err
	}
	cfg.Files = files

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Device defaults
	v.SetDefault("device.ip", "192.168.0.55")
	v.SetDefault("device.port", "5555")
	v.SetDefault("device.transport", "tcp")
	v.SetDefault("device.serialport", "")
	v.SetDefault("device.baudrate", "9600")
	v.SetDefault("device.timeout", "5s")

	// Display defaults
	v.SetDefault("display.color", "true")

	// Tools defaults
	v.SetDefault("tools.screenshotviewer", "")
	v.SetDefault("tools.screenshotdebug", "false")

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.maxsize", "10")
	v.SetDefault("logging.maxbackups", "3")
	v.SetDefault("logging.maxage", "28")
	v.SetDefault("logging.compress", "false")
}

// mergeFile merges one INI file; a missing file is skipped
func mergeFile(v *viper.Viper, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, model.NewError(model.KindConfiguration, "read "+path, err)
	}

	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return false, model.NewError(model.KindConfiguration, "parse "+path, err)
	}
	return true, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	// Inverted and shortcut flags are applied as explicit overrides
	if set, on := boolFlag(flags, "no-color"); set && on {
		v.Set("display.color", "false")
	}
	if set, on := boolFlag(flags, "verbose"); set && on {
		v.Set("logging.level", "debug")
	}
	return nil
}

func boolFlag(flags *pflag.FlagSet, name string) (set, value bool) {
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return false, false
	}
	b, err := strconv.ParseBool(f.Value.String())
	return true, err == nil && b
}

// build validates raw values and produces the typed configuration
func build(raw *rawConfig) (*Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Device.IP = strings.TrimSpace(raw.Device.IP)
	if cfg.Device.IP == "" {
		return nil, keyError("device.ip", "must not be empty")
	}
	if cfg.Device.Port, err = parseInt("device.port", raw.Device.Port); err != nil {
		return nil, err
	}
	if cfg.Device.Port < 1 || cfg.Device.Port > 65535 {
		return nil, keyError("device.port", "%d is outside 1-65535", cfg.Device.Port)
	}
	if cfg.Device.Transport, err = model.ParseConnectionType(raw.Device.Transport); err != nil {
		return nil, keyError("device.transport", "%v", err)
	}
	cfg.Device.SerialPort = strings.TrimSpace(raw.Device.SerialPort)
	if cfg.Device.BaudRate, err = parseInt("device.baudrate", raw.Device.BaudRate); err != nil {
		return nil, err
	}
	if cfg.Device.Timeout, err = time.ParseDuration(strings.TrimSpace(raw.Device.Timeout)); err != nil || cfg.Device.Timeout <= 0 {
		return nil, keyError("device.timeout", "invalid duration %q", raw.Device.Timeout)
	}

	if cfg.Display.Color, err = ParseBool("display.color", raw.Display.Color); err != nil {
		return nil, err
	}

	cfg.Tools.ScreenshotViewer = strings.TrimSpace(raw.Tools.ScreenshotViewer)
	if cfg.Tools.ScreenshotDebug, err = ParseBool("tools.screenshotdebug", raw.Tools.ScreenshotDebug); err != nil {
		return nil, err
	}

	if err := buildLogging(&cfg.Logging, raw); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func buildLogging(l *LoggingConfig, raw *rawConfig) error {
	var err error

	l.Level = strings.ToLower(strings.TrimSpace(raw.Logging.Level))
	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return keyError("logging.level", "must be one of: %v", validLevels)
	}

	l.Format = strings.ToLower(strings.TrimSpace(raw.Logging.Format))
	if l.Format != "console" && l.Format != "json" {
		return keyError("logging.format", "must be console or json")
	}
	l.Output = strings.TrimSpace(raw.Logging.Output)

	if l.MaxSize, err = parseInt("logging.maxsize", raw.Logging.MaxSize); err != nil {
		return err
	}
	if l.MaxBackups, err = parseInt("logging.maxbackups", raw.Logging.MaxBackups); err != nil {
		return err
	}
	if l.MaxAge, err = parseInt("logging.maxage", raw.Logging.MaxAge); err != nil {
		return err
	}
	l.Compress, err = ParseBool("logging.compress", raw.Logging.Compress)
	return err
}

// ParseBool accepts true/false, 1/0 and on/off in any case
func ParseBool(key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	default:
		return false, keyError(key, "invalid boolean %q (use true/false, 1/0 or on/off)", value)
	}
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, keyError(key, "invalid integer %q", value)
	}
	return n, nil
}

func keyError(key, format string, args ...interface{}) error {
	return model.NewError(model.KindConfiguration, key, fmt.Errorf(format, args...))
}

func appendUnique(paths []string, path string) []string {
	for _, p := range paths {
		if p == path {
			return paths
		}
	}
	return append(paths, path)
}

// GetDeviceAddr returns the instrument's host:port
func (c *Config) GetDeviceAddr() string {
	return net.JoinHostPort(c.Device.IP, strconv.Itoa(c.Device.Port))
}

// ColorEnabled reports whether colored output was requested
func (c *Config) ColorEnabled() bool {
	return c.Display.Color
}
