// Package eeprom reads and writes I2C EEPROMs through any periph I2C bus.
package eeprom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/YdPater/i2c-tools/internal/logger"
)

const (
	// DefaultAttempts bounds the transactions tried while a device NACKs.
	DefaultAttempts = 10
	// DefaultDelay is the pause between attempts, the write cycle time of
	// common 24Cxx parts.
	DefaultDelay = 5 * time.Millisecond

	HeadLength   = 100
	HeadRowWidth = 20
)

// EEPROM is one EEPROM chip on an I2C bus.
type EEPROM struct {
	Bus    i2c.Bus
	Addr   uint16
	Model  *Model
	Logger logger.Logger

	Attempts uint
	Delay    time.Duration
}

// New returns the EEPROM of the given model answering at the 7-bit slave
// address addr.
func New(b i2c.Bus, addr uint16, model *Model, lggr logger.Logger) (*EEPROM, error) {
	if addr > 0x7F {
		return nil, fmt.Errorf("%w: slave address 0x%X is not 7-bit", ErrInvalidAddress, addr)
	}
	if model == nil {
		return nil, errors.New("model is required")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if lggr == nil {
		lggr = logger.Nop()
	}

	return &EEPROM{
		Bus:      b,
		Addr:     addr,
		Model:    model,
		Logger:   lggr,
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
	}, nil
}

/*
 * @Description: read n bytes from cell addr, one transaction per read chunk
 * @param addr first cell
 * @param n number of bytes
 * @return data
 * @return err
 */
func (e *EEPROM) ReadAt(ctx context.Context, addr, n int) ([]byte, error) {
	if err := e.Model.CheckRange(addr, n); err != nil {
		return nil, err
	}

	data := make([]byte, n)
	for _, s := range e.Model.ReadPlan(addr, n) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slave, prefix := e.Model.Target(e.Addr, s.Addr)
		off := s.Addr - addr
		if err := e.tx(ctx, slave, prefix, data[off:off+s.Len]); err != nil {
			return nil, fmt.Errorf("read 0x%04X+%d: %w", s.Addr, s.Len, err)
		}
	}

	return data, nil
}

/*
 * @Description: read one cell
 * @return value
 * @return err
 */
func (e *EEPROM) ReadCell(ctx context.Context, addr int) (byte, error) {
	data, err := e.ReadAt(ctx, addr, 1)
	if err != nil {
		return 0, err
	}

	return data[0], nil
}

/*
 * @Description: write one cell: [addrHi, addrLo, value] then stop, and poll
 * until the device has programmed it
 * @return error
 */
func (e *EEPROM) WriteCell(ctx context.Context, addr int, value byte) error {
	return e.Write(ctx, addr, []byte{value}, nil)
}

/*
 * @Description: page-write data from cell addr; every page is acknowledged
 * before the next one starts
 * @param progress percent done, may be nil
 * @return error
 */
func (e *EEPROM) Write(ctx context.Context, addr int, data []byte, progress func(float64)) error {
	if err := e.Model.CheckRange(addr, len(data)); err != nil {
		return err
	}
	report := progressFunc(progress)

	plan := e.Model.WritePlan(addr, len(data))
	for i, s := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		report(float64(i) / float64(len(plan)) * 100.0)

		slave, prefix := e.Model.Target(e.Addr, s.Addr)
		off := s.Addr - addr
		w := append(append(make([]byte, 0, len(prefix)+s.Len), prefix...), data[off:off+s.Len]...)
		if err := e.tx(ctx, slave, w, nil); err != nil {
			return fmt.Errorf("write 0x%04X+%d: %w", s.Addr, s.Len, err)
		}
		if err := e.waitReady(ctx, slave, prefix); err != nil {
			return fmt.Errorf("write 0x%04X+%d: %w", s.Addr, s.Len, err)
		}
	}
	report(100)
	e.Logger.Debugw("Write finished", "addr", fmt.Sprintf("0x%04X", addr), "bytes", len(data), "pages", len(plan))

	return nil
}

// waitReady polls the device with an address-only write until it
// acknowledges, which it does once the internal write cycle is over.
func (e *EEPROM) waitReady(ctx context.Context, slave uint16, prefix []byte) error {
	return e.tx(ctx, slave, prefix, nil)
}

/*
 * @Description: print the first n bytes, HeadRowWidth per row
 * @return error
 */
func (e *EEPROM) DumpHead(ctx context.Context, w io.Writer, n int) error {
	if n <= 0 {
		n = HeadLength
	}
	data, err := e.ReadAt(ctx, 0, min(n, e.Model.Size))
	if err != nil {
		return err
	}

	return WriteRows(w, 0, data, HeadRowWidth)
}

/*
 * @Description: read the whole device chunk by chunk into w
 * @return error
 */
func (e *EEPROM) Dump(ctx context.Context, w io.Writer, progress func(float64)) error {
	report := progressFunc(progress)

	plan := e.Model.ReadPlan(0, e.Model.Size)
	for i, s := range plan {
		report(float64(i) / float64(len(plan)) * 100.0)
		data, err := e.ReadAt(ctx, s.Addr, s.Len)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	report(100)
	e.Logger.Infow("Dump finished", "model", e.Model.Name, "bytes", e.Model.Size, "chunks", len(plan))

	return nil
}

/*
 * @Description: compare the device with data expected at addr
 * @return error wrapping ErrVerify at the first differing cell
 */
func (e *EEPROM) Verify(ctx context.Context, addr int, data []byte) error {
	got, err := e.ReadAt(ctx, addr, len(data))
	if err != nil {
		return err
	}
	if bytes.Equal(got, data) {
		return nil
	}
	for i := range data {
		if got[i] != data[i] {
			return fmt.Errorf("%w at 0x%04X: wrote 0x%02X, read 0x%02X", ErrVerify, addr+i, data[i], got[i])
		}
	}

	return nil
}

/*
 * @Description: program an image file (.bin raw from cell 0, .hex Intel HEX)
 * @param verify read every segment back
 * @param progress percent done over all segments, may be nil
 * @return error
 */
func (e *EEPROM) WriteFile(ctx context.Context, path string, verify bool, progress func(float64)) error {
	segments, err := LoadImage(path)
	if err != nil {
		return err
	}
	total := 0
	for _, s := range segments {
		if err := e.Model.CheckRange(s.Addr, len(s.Data)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		total += len(s.Data)
	}
	if total == 0 {
		return fmt.Errorf("%s: image is empty", path)
	}

	report := progressFunc(progress)
	done := 0
	for _, s := range segments {
		base := float64(done) / float64(total) * 100.0
		weight := float64(len(s.Data)) / float64(total)
		err := e.Write(ctx, s.Addr, s.Data, func(p float64) {
			report(base + p*weight)
		})
		if err != nil {
			return err
		}
		if verify {
			if err := e.Verify(ctx, s.Addr, s.Data); err != nil {
				return err
			}
		}
		done += len(s.Data)
	}
	e.Logger.Infow("Image written", "path", path, "segments", len(segments), "bytes", total, "verified", verify)

	return nil
}

/*
 * @Description: write fill over the whole device
 * @return error
 */
func (e *EEPROM) Erase(ctx context.Context, fill byte, progress func(float64)) error {
	return e.Write(ctx, 0, bytes.Repeat([]byte{fill}, e.Model.Size), progress)
}
