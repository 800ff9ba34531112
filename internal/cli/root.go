// Package cli implements the i2c-eeprom command tree.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	eeprom "github.com/YdPater/i2c-tools"
	"github.com/YdPater/i2c-tools/bus"
	"github.com/YdPater/i2c-tools/internal/config"
	"github.com/YdPater/i2c-tools/internal/logger"
)

const rootLong = `I2C EEPROM toolkit for FTDI chipsets.

Reads, dumps, writes and programs 24Cxx style EEPROMs through an FTDI MPSSE
adapter (FT232H and friends), a Bus Pirate, or the "sim" in-memory device.

Settings come from flags, I2C_EEPROM_* environment variables and an optional
config file (` + config.DefaultFile + ` in the working directory), in that order.`

// Deps holds the injectable dependencies of the command tree.
// All fields are optional; nil values use production defaults.
type Deps struct {
	// NewLogger builds the logger once the log level is known.
	// Default: logger.New
	NewLogger func(level zapcore.Level) (logger.Logger, error)

	// OpenBus opens the adapter named by --adapter.
	// Default: bus.Open
	OpenBus func(target string, opts bus.Options) (i2c.BusCloser, error)

	// Adapters lists the attached adapters.
	// Default: bus.Adapters
	Adapters func() ([]bus.Adapter, error)
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.NewLogger == nil {
		d.NewLogger = logger.New
	}
	if d.OpenBus == nil {
		d.OpenBus = bus.Open
	}
	if d.Adapters == nil {
		d.Adapters = bus.Adapters
	}
}

// app is the state shared by the commands of one invocation.
type app struct {
	deps Deps

	cfgFile string
	yes     bool

	cfg     *config.Config
	catalog *eeprom.Catalog
	lggr    logger.Logger
}

// NewRootCmd returns the i2c-eeprom root command with every subcommand.
func NewRootCmd(deps Deps) *cobra.Command {
	deps.applyDefaults()
	a := &app{deps: deps, lggr: logger.Nop()}

	cmd := &cobra.Command{
		Use:          "i2c-eeprom",
		Short:        "I2C EEPROM toolkit for FTDI chipsets",
		Long:         rootLong,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.lggr.Sync()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	pf.String("adapter", bus.DefaultFTDIURL, "I2C adapter: ftdi://[vendor][:product[:index]]/1, buspirate:<port> or sim[:<image>]")
	pf.StringP("address", "a", "0x50", "EEPROM slave address in HEX")
	pf.StringP("eeprom-device", "d", "", "EEPROM model, see the models command")
	pf.Int("speed", 100, "bus clock in kHz")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Uint("retry-attempts", eeprom.DefaultAttempts, "transactions tried while the device does not acknowledge")
	pf.Duration("retry-delay", eeprom.DefaultDelay, "pause between attempts")
	pf.BoolVarP(&a.yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		newHeadCmd(a),
		newDumpCmd(a),
		newReadCmd(a),
		newWriteCmd(a),
		newProgramCmd(a),
		newVerifyCmd(a),
		newEraseCmd(a),
		newScanCmd(a),
		newAdaptersCmd(a),
		newModelsCmd(a),
	)

	return cmd
}

// load reads the configuration and builds the logger and model catalog.
func (a *app) load(cmd *cobra.Command) error {
	path := a.cfgFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}

	catalog := eeprom.DefaultCatalog()
	for _, m := range cfg.Models {
		if err := catalog.Add(m); err != nil {
			return fmt.Errorf("config model %q: %w", m.Name, err)
		}
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	lggr, err := a.deps.NewLogger(level)
	if err != nil {
		return err
	}

	a.cfg, a.catalog, a.lggr = cfg, catalog, lggr
	a.lggr.Debugw("Configuration loaded", "file", path, "adapter", cfg.Adapter, "address", cfg.Address, "device", cfg.Device)

	return nil
}

// model returns the EEPROM model selected with --eeprom-device.
func (a *app) model() (*eeprom.Model, error) {
	if a.cfg.Device == "" {
		return nil, errors.New("no EEPROM model selected, use --eeprom-device (see the models command)")
	}

	return a.catalog.Lookup(a.cfg.Device)
}

// openBus opens the configured adapter. m, when known, shapes the simulated
// device of the "sim" adapter.
func (a *app) openBus(addr uint16, m *eeprom.Model) (i2c.BusCloser, error) {
	opts := bus.Options{
		Speed: physic.Frequency(a.cfg.SpeedKHz) * physic.KiloHertz,
		Sim:   bus.SimConfig{Base: addr},
	}
	if m != nil {
		opts.Sim.Size = m.Size
		opts.Sim.PageSize = m.PageSize
		opts.Sim.AddrBytes = m.AddrBytes
	}

	b, err := a.deps.OpenBus(a.cfg.Adapter, opts)
	if err != nil {
		return nil, fmt.Errorf("open adapter %s: %w", a.cfg.Adapter, err)
	}
	a.lggr.Debugw("Adapter opened", "adapter", a.cfg.Adapter, "bus", b.String(), "speed", opts.Speed.String())

	return b, nil
}

// openDevice opens the bus and the selected EEPROM on it. The caller closes
// the returned bus.
func (a *app) openDevice() (*eeprom.EEPROM, i2c.BusCloser, error) {
	addr, err := eeprom.ParseSlaveAddress(a.cfg.Address)
	if err != nil {
		return nil, nil, err
	}
	m, err := a.model()
	if err != nil {
		return nil, nil, err
	}

	b, err := a.openBus(addr, m)
	if err != nil {
		return nil, nil, err
	}

	e, err := eeprom.New(b, addr, m, a.lggr.Named("eeprom"))
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	e.Attempts = a.cfg.Retry.Attempts
	e.Delay = a.cfg.Retry.Delay

	return e, b, nil
}

// deviceRunE adapts fn into a cobra RunE that runs it against the opened
// EEPROM and reports NACKs the way the tool always has.
func (a *app) deviceRunE(fn func(cmd *cobra.Command, args []string, e *eeprom.EEPROM) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, b, err := a.openDevice()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := b.Close(); cerr != nil {
				a.lggr.Warnw("Failed to close adapter", "err", cerr)
			}
		}()

		start := time.Now()
		err = fn(cmd, args, e)
		if errors.Is(err, bus.ErrNACK) {
			failColor.Fprintf(cmd.ErrOrStderr(), "[!] Received NACK message from device. %s failed!\n", cmd.Name())
		}
		a.lggr.Debugw("Command finished", "command", cmd.Name(), "elapsed", time.Since(start).String(), "err", err)

		return err
	}
}
