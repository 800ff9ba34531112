package bus

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// Range of 7-bit addresses that are not reserved by the I2C specification.
const (
	ScanFirst uint16 = 0x03
	ScanLast  uint16 = 0x77
)

// Scan probes every address in [start, stop] with a one byte read and
// returns the addresses that acknowledged. A read is harmless on EEPROMs,
// unlike the zero-length write some tools use.
func Scan(ctx context.Context, b i2c.Bus, start, stop uint16) ([]uint16, error) {
	if start > stop || stop > 0x7F {
		return nil, fmt.Errorf("invalid address range [0x%02X, 0x%02X]", start, stop)
	}

	var found []uint16
	buf := make([]byte, 1)
	for addr := start; addr <= stop; addr++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		err := b.Tx(addr, nil, buf)
		switch {
		case err == nil:
			found = append(found, addr)
		case !errors.Is(err, ErrNACK):
			return found, fmt.Errorf("probe 0x%02X: %w", addr, err)
		}
	}

	return found, nil
}
