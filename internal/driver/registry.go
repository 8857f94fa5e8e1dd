// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dp800ctl/internal/model"
	"dp800ctl/pkg/driver"
)

// DriverFactory creates a driver bound to an identified instrument session
type DriverFactory func(identity model.Identity, session driver.Commander, logger *zap.Logger) (driver.PowerSupplyDriver, error)

// Registry manages driver registration and lookup by *IDN? fields
type Registry struct {
	drivers map[DriverKey]DriverFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// DriverKey uniquely identifies a driver
type DriverKey struct {
	Manufacturer string
	Model        string
}

func (k DriverKey) String() string {
	return k.Manufacturer + " " + k.Model
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[DriverKey]DriverFactory),
		logger:  logger,
	}
}

// Register registers a driver factory. A model of "*" matches any model of
// the manufacturer.
func (r *Registry) Register(manufacturer, modelName string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := DriverKey{Manufacturer: manufacturer, Model: modelName}
	r.drivers[key] = factory
	r.logger.Debug("Driver registered",
		zap.String("manufacturer", manufacturer),
		zap.String("model", modelName),
	)
}

// CreateDriver validates the identity and creates its driver. Unknown
// devices are reported as protocol errors.
func (r *Registry) CreateDriver(identity model.Identity, session driver.Commander) (driver.PowerSupplyDriver, error) {
	factory, err := r.lookup(identity)
	if err != nil {
		return nil, err
	}
	return factory(identity, session, r.logger)
}

func (r *Registry) lookup(identity model.Identity) (DriverFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Try exact match first
	key := DriverKey{Manufacturer: identity.Manufacturer, Model: identity.Model}
	if factory, exists := r.drivers[key]; exists {
		return factory, nil
	}

	// Try manufacturer match (any model)
	key.Model = "*"
	if factory, exists := r.drivers[key]; exists {
		return factory, nil
	}

	models := r.modelsOf(identity.Manufacturer)
	if len(models) == 0 {
		return nil, model.NewError(model.KindProtocol, "identify device",
			fmt.Errorf("%w: manufacturer %q (expected %s), device ID: %s",
				model.ErrUnsupportedDevice, identity.Manufacturer, strings.Join(r.manufacturers(), ", "), identity.Raw))
	}
	return nil, model.NewError(model.KindProtocol, "identify device",
		fmt.Errorf("%w: model %q (expected one of %s), device ID: %s",
			model.ErrUnsupportedDevice, identity.Model, strings.Join(models, ", "), identity.Raw))
}

func (r *Registry) modelsOf(manufacturer string) []string {
	var models []string
	for key := range r.drivers {
		if key.Manufacturer == manufacturer {
			models = append(models, key.Model)
		}
	}
	sort.Strings(models)
	return models
}

func (r *Registry) manufacturers() []string {
	set := make(map[string]bool)
	for key := range r.drivers {
		set[key.Manufacturer] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListDrivers returns all registered drivers, sorted
func (r *Registry) ListDrivers() []DriverKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]DriverKey, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// IsSupported checks if a device is supported
func (r *Registry) IsSupported(identity model.Identity) bool {
	_, err := r.lookup(identity)
	return err == nil
}
