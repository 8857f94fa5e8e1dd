// internal/config/ini_codec.go
package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// iniCodec lets viper read configparser-style files. Section names become the
// first key segment ("[device] ip" -> "device.ip").
type iniCodec struct{}

var iniLoadOptions = ini.LoadOptions{
	Insensitive:            true,
	IgnoreInlineComment:    true,
	AllowNonUniqueSections: true,
}

// Decode implements viper.Decoder. Keys outside a section and repeated
// section headers are rejected.
func (iniCodec) Decode(b []byte, v map[string]any) error {
	f, err := ini.LoadSources(iniLoadOptions, b)
	if err != nil {
		return fmt.Errorf("malformed INI: %w", err)
	}

	seen := make(map[string]bool)
	for _, section := range f.Sections() {
		name := section.Name()
		keys := section.KeysHash()

		if strings.EqualFold(name, ini.DefaultSection) {
			if len(keys) > 0 {
				return fmt.Errorf("malformed INI: key %q appears before any section header", firstKey(section))
			}
			continue
		}
		if seen[name] {
			return fmt.Errorf("malformed INI: section [%s] appears more than once", name)
		}
		seen[name] = true

		m := make(map[string]any, len(keys))
		for k, val := range keys {
			m[k] = val
		}
		v[name] = m
	}
	return nil
}

func firstKey(section *ini.Section) string {
	if names := section.KeyStrings(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// Encode implements viper.Encoder
func (iniCodec) Encode(v map[string]any) ([]byte, error) {
	f := ini.Empty()

	for name, value := range v {
		m, ok := value.(map[string]any)
		if !ok {
			if _, err := f.Section("").NewKey(name, fmt.Sprint(value)); err != nil {
				return nil, err
			}
			continue
		}

		section, err := f.NewSection(name)
		if err != nil {
			return nil, err
		}
		for k, val := range m {
			if _, err := section.NewKey(k, fmt.Sprint(val)); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newViper returns an isolated viper instance that understands INI
func newViper() (*viper.Viper, error) {
	registry := viper.NewCodecRegistry()
	if err := registry.RegisterCodec("ini", iniCodec{}); err != nil {
		return nil, fmt.Errorf("register ini codec: %w", err)
	}

	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetConfigType("ini")
	return v, nil
}
