// internal/cli/app.go
package cli

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dp800ctl/internal/config"
	"dp800ctl/internal/driver"
	"dp800ctl/internal/model"
	"dp800ctl/internal/service"
	"dp800ctl/internal/utils"
)

// Version is set at build time with -ldflags "-X dp800ctl/internal/cli.Version=..."
var Version = "dev"

// Options carry the process environment into the command tree
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	HomeDir string
	WorkDir string
	Now     func() time.Time

	// ForceColor ignores terminal detection; color still needs [display] color
	ForceColor bool
}

// Application holds everything one invocation needs once configuration is resolved
type Application struct {
	opts Options

	config         *config.Config
	logger         *zap.Logger
	driverRegistry *driver.Registry
	powerService   *service.PowerService
	printer        *Printer
}

// NewApplication creates an application; it is initialized by the root command
func NewApplication(opts Options) *Application {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Application{opts: opts}
}

// initialize loads configuration and builds the logger, drivers and services
func (app *Application) initialize(flags *pflag.FlagSet) error {
	cfg, err := config.Load(config.Options{
		HomeDir: app.opts.HomeDir,
		WorkDir: app.opts.WorkDir,
		Flags:   flags,
	})
	if err != nil {
		return err
	}
	app.config = cfg

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return model.NewError(model.KindConfiguration, "logging", err)
	}
	app.logger = logger
	app.logger.Debug("Configuration resolved",
		zap.Strings("files", cfg.Files),
		zap.String("address", cfg.GetDeviceAddr()),
		zap.String("transport", string(cfg.Device.Transport)),
	)

	app.driverRegistry = driver.NewDefaultRegistry(logger)
	app.powerService = service.NewPowerService(cfg, app.driverRegistry, logger)
	app.printer = NewPrinter(app.opts.Stdout, app.colorEnabled())
	return nil
}

func (app *Application) colorEnabled() bool {
	if !app.config.ColorEnabled() {
		return false
	}
	return app.opts.ForceColor || !color.NoColor
}

func (app *Application) close() {
	if app.logger != nil {
		_ = utils.CloseLogger(app.logger)
	}
}
