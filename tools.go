package eeprom

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/avast/retry-go/v4"

	"github.com/YdPater/i2c-tools/bus"
)

var (
	ErrOutOfRange       = errors.New("address out of range")
	ErrVerify           = errors.New("verify failed")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidValue     = errors.New("invalid value")
	errMissingHexPrefix = errors.New("submit the entire HEX address with its 0x prefix (eg 0x0001)")
)

// ParseSlaveAddress parses a 7-bit slave address written in hex, with or
// without 0x ("0x50", "50").
func ParseSlaveAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 16)
	if err != nil || v > 0x7F {
		return 0, fmt.Errorf("%w: slave address %q must be hex in 0x00..0x7F", ErrInvalidAddress, s)
	}

	return uint16(v), nil
}

// ParseCellAddress parses a 0x-prefixed cell address of up to four hex
// digits and checks it is below size.
func ParseCellAddress(s string, size int) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, errMissingHexPrefix)
	}
	v, err := strconv.ParseUint(s[2:], 16, 16)
	if err != nil || len(s) > 6 {
		return 0, fmt.Errorf("%w %q: not a 2-byte HEX address", ErrInvalidAddress, s)
	}
	if int(v) >= size {
		return 0, fmt.Errorf("%w: 0x%04X is past the last cell 0x%04X", ErrOutOfRange, v, size-1)
	}

	return int(v), nil
}

// ParseByte parses a hex byte, with or without 0x.
func ParseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a HEX byte", ErrInvalidValue, s)
	}

	return byte(v), nil
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}

	return s
}

// WriteRows prints data as rows of width bytes, each row prefixed with the
// address of its first byte:
//
//	0x0000| 0xff 0xff ...
//
// and ends with an empty line.
func WriteRows(w io.Writer, base int, data []byte, width int) error {
	if width <= 0 {
		return fmt.Errorf("row width must be positive, got %d", width)
	}

	bw := bufio.NewWriter(w)
	for i, b := range data {
		col := i % width
		if col == 0 {
			fmt.Fprintf(bw, "0x%04x| ", base+i)
		}
		if col < width-1 && i < len(data)-1 {
			fmt.Fprintf(bw, "0x%02x ", b)
		} else {
			fmt.Fprintf(bw, "0x%02x\n", b)
		}
	}
	bw.WriteString("\n")

	return bw.Flush()
}

/*
 * @Description: run one bus transaction, repeating it while the device NACKs
 * @param addr 7-bit slave address
 * @return error
 */
func (e *EEPROM) tx(ctx context.Context, addr uint16, w, r []byte) error {
	attempts := e.Attempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			return e.Bus.Tx(addr, w, r)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(e.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, bus.ErrNACK)
		}),
		retry.OnRetry(func(n uint, err error) {
			e.Logger.Debugw("Device did not acknowledge, retrying", "slave", fmt.Sprintf("0x%02X", addr), "attempt", n+1, "err", err)
		}),
	)
}

// progressFunc never returns nil.
func progressFunc(progress func(float64)) func(float64) {
	if progress == nil {
		return func(float64) {}
	}

	return progress
}
