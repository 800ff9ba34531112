package bus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/physic"
)

// Bus Pirate binary mode commands, I2C submode.
const (
	bpResetBBIO   byte = 0x00 // back to raw bitbang, answers "BBIO1"
	bpModeI2C     byte = 0x02 // from BBIO, answers "I2C1"
	bpStart       byte = 0x02
	bpStop        byte = 0x03
	bpReadByte    byte = 0x04
	bpACK         byte = 0x06
	bpNACK        byte = 0x07
	bpExit        byte = 0x0F // from BBIO, back to the user terminal
	bpBulkWrite   byte = 0x10 // low nibble is count-1
	bpPeripherals byte = 0x40 // power, pull-ups, AUX, CS
	bpSetSpeed    byte = 0x60 // low bits select 5/50/100/400 kHz
)

const (
	bpBaudRate     = 115200
	bpEnterRetries = 20
	bpMaxBulk      = 16
	bpPowerPullups = bpPeripherals | 0x0C
	bpTimeout      = time.Second
)

// piratePort is the part of serial.Port the Bus Pirate driver uses.
type piratePort interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// BusPirate drives the I2C mode of a Bus Pirate over its serial port.
type BusPirate struct {
	port    piratePort
	name    string
	timeout time.Duration
	mu      sync.Mutex
}

// OpenBusPirate opens the serial port name, switches the Bus Pirate to binary
// I2C mode, and powers the target with pull-ups enabled.
func OpenBusPirate(name string, speed physic.Frequency) (*BusPirate, error) {
	mode := &serial.Mode{
		BaudRate: bpBaudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("buspirate: open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, err
	}

	b, err := newBusPirate(port, name, speed)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	return b, nil
}

func newBusPirate(port piratePort, name string, speed physic.Frequency) (*BusPirate, error) {
	b := &BusPirate{port: port, name: name, timeout: bpTimeout}
	if err := b.enter(); err != nil {
		return nil, err
	}
	if err := b.cmd(bpPowerPullups); err != nil {
		return nil, err
	}
	if speed != 0 {
		if err := b.SetSpeed(speed); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (b *BusPirate) String() string {
	return "buspirate(" + b.name + ")"
}

/*
 * @Description: enter binary bitbang mode, then the I2C submode
 * @return error
 */
func (b *BusPirate) enter() error {
	got := make([]byte, 0, 64)
	entered := false
	for i := 0; i < bpEnterRetries && !entered; i++ {
		if _, err := b.port.Write([]byte{bpResetBBIO}); err != nil {
			return err
		}
		temp := make([]byte, 32)
		n, err := b.port.Read(temp)
		if err != nil {
			return err
		}
		got = append(got, temp[:n]...)
		entered = bytes.Contains(got, []byte("BBIO1"))
	}
	if !entered {
		return errors.New("buspirate: no BBIO1 answer, is this a Bus Pirate?")
	}
	if err := b.port.ResetInputBuffer(); err != nil {
		return err
	}

	if _, err := b.port.Write([]byte{bpModeI2C}); err != nil {
		return err
	}
	reply := make([]byte, 4)
	if err := b.readFull(reply); err != nil {
		return err
	}
	if string(reply) != "I2C1" {
		return fmt.Errorf("buspirate: unexpected I2C mode answer %q", reply)
	}

	return nil
}

// SetSpeed implements i2c.Bus. The Bus Pirate only knows four clocks; the
// fastest one not above f is used.
func (b *BusPirate) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sel byte
	switch {
	case f >= 400*physic.KiloHertz:
		sel = 3
	case f >= 100*physic.KiloHertz:
		sel = 2
	case f >= 50*physic.KiloHertz:
		sel = 1
	}

	return b.cmd(bpSetSpeed | sel)
}

// Tx implements i2c.Bus: start, write, repeated start and read when r is
// not empty, stop.
func (b *BusPirate) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("buspirate: invalid 7-bit address 0x%X", addr)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.cmd(bpStart); err != nil {
		return err
	}
	err := b.tx(byte(addr), w, r)
	if stopErr := b.cmd(bpStop); err == nil {
		err = stopErr
	}

	return err
}

func (b *BusPirate) tx(addr byte, w, r []byte) error {
	if len(w) > 0 || len(r) == 0 {
		if err := b.bulkWrite(append([]byte{addr << 1}, w...)); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}
	if len(w) > 0 {
		if err := b.cmd(bpStart); err != nil {
			return err
		}
	}
	if err := b.bulkWrite([]byte{addr<<1 | 1}); err != nil {
		return err
	}

	for i := range r {
		if _, err := b.port.Write([]byte{bpReadByte}); err != nil {
			return err
		}
		if err := b.readFull(r[i : i+1]); err != nil {
			return err
		}
		ack := bpACK
		if i == len(r)-1 {
			ack = bpNACK
		}
		if err := b.cmd(ack); err != nil {
			return err
		}
	}

	return nil
}

func (b *BusPirate) bulkWrite(p []byte) error {
	for len(p) > 0 {
		n := min(len(p), bpMaxBulk)
		if err := b.cmd(bpBulkWrite | byte(n-1)); err != nil {
			return err
		}
		if _, err := b.port.Write(p[:n]); err != nil {
			return err
		}
		acks := make([]byte, n)
		if err := b.readFull(acks); err != nil {
			return err
		}
		for i, a := range acks {
			if a != 0x00 {
				return fmt.Errorf("buspirate: byte 0x%02X: %w", p[i], ErrNACK)
			}
		}
		p = p[n:]
	}

	return nil
}

// cmd sends a one byte command and waits for its 0x01 answer.
func (b *BusPirate) cmd(c byte) error {
	if _, err := b.port.Write([]byte{c}); err != nil {
		return err
	}
	reply := make([]byte, 1)
	if err := b.readFull(reply); err != nil {
		return fmt.Errorf("buspirate: command 0x%02X: %w", c, err)
	}
	if reply[0] != 0x01 {
		return fmt.Errorf("buspirate: command 0x%02X: unexpected answer 0x%02X", c, reply[0])
	}

	return nil
}

func (b *BusPirate) readFull(p []byte) error {
	timeout := time.After(b.timeout)
	got := 0
	for got < len(p) {
		select {
		case <-timeout:
			return errors.New("timeout")
		default:
			n, err := b.port.Read(p[got:])
			if err != nil {
				return err
			}
			got += n
		}
	}

	return nil
}

// Close leaves binary mode and closes the serial port.
func (b *BusPirate) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.port.Write([]byte{bpResetBBIO, bpExit}); err != nil {
		_ = b.port.Close()
		return err
	}

	return b.port.Close()
}
