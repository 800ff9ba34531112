// Package bus opens the I2C masters the EEPROM tool talks through.
//
// Every transport implements periph's i2c.BusCloser, so the EEPROM code above
// never knows whether it drives an FTDI MPSSE engine, a Bus Pirate or the
// in-memory simulator.
package bus

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrNACK is returned when the addressed device did not acknowledge.
var ErrNACK = errors.New("NACK")

// DefaultFTDIURL selects the first FTDI device, interface 1.
const DefaultFTDIURL = "ftdi://:/1"

// DefaultSpeed is the standard-mode I2C clock.
const DefaultSpeed = 100 * physic.KiloHertz

// Options tune the bus returned by Open.
type Options struct {
	Speed physic.Frequency
	// Sim describes the simulated EEPROM used by the "sim" adapter.
	Sim SimConfig
}

// Open opens the adapter described by target:
//
//	ftdi://[vendor][:product[:index]]/interface
//	buspirate:<serial port>
//	sim[:<raw image file>]
func Open(target string, opts Options) (i2c.BusCloser, error) {
	switch {
	case strings.HasPrefix(target, "ftdi://"):
		return OpenFTDI(target, opts.Speed)
	case strings.HasPrefix(target, "buspirate:"):
		name := strings.TrimPrefix(strings.TrimPrefix(target, "buspirate:"), "//")
		if name == "" {
			return nil, errors.New("buspirate: serial port is required")
		}
		return OpenBusPirate(name, opts.Speed)
	case target == "sim" || strings.HasPrefix(target, "sim:"):
		s := NewSim(opts.Sim)
		if image := strings.TrimPrefix(target, "sim:"); image != target && image != "" {
			data, err := os.ReadFile(image)
			if err != nil {
				return nil, err
			}
			s.Load(data)
		}
		return s, nil
	}

	return nil, fmt.Errorf("unsupported adapter %q", target)
}
