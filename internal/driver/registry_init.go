// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"dp800ctl/internal/driver/rigol"
)

// RegisterDefaultDrivers registers all default device drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registerRigolDrivers(registry, logger)
}

// registerRigolDrivers registers the DP800 family models that share the
// three-channel limit table
func registerRigolDrivers(registry *Registry, logger *zap.Logger) {
	for _, m := range rigol.SupportedModels {
		registry.Register(rigol.Manufacturer, m, rigol.NewDP800Driver)
	}

	logger.Debug("RIGOL power supply drivers registered",
		zap.Int("models", len(rigol.SupportedModels)),
	)
}

// NewDefaultRegistry returns a registry with every built-in driver
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	registry := NewRegistry(logger)
	RegisterDefaultDrivers(registry, logger)
	return registry
}
