package bus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// SimConfig describes the EEPROM a Sim pretends to be.
type SimConfig struct {
	// Base is the 7-bit slave address of the first block. Defaults to 0x50.
	Base uint16
	// Size in bytes. Defaults to 32 KiB.
	Size int
	// PageSize is the write page. Defaults to 64.
	PageSize int
	// AddrBytes is the cell address width, 1 or 2. Defaults to 2. One byte
	// parts answer on one slave address per 256-byte block.
	AddrBytes int
	// BusyNACKs is the number of transactions refused after each write
	// cycle, like a real part does while it programs its cells.
	BusyNACKs int
}

// Sim is an in-memory EEPROM on its own I2C bus.
type Sim struct {
	cfg SimConfig

	mu     sync.Mutex
	mem    []byte
	ptr    int
	busy   int
	writes int
	closed bool
}

// NewSim returns an erased (all 0xFF) simulated EEPROM.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Base == 0 {
		cfg.Base = 0x50
	}
	if cfg.Size <= 0 {
		cfg.Size = 0x8000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 64
	}
	if cfg.AddrBytes != 1 {
		cfg.AddrBytes = 2
	}

	mem := make([]byte, cfg.Size)
	for i := range mem {
		mem[i] = 0xFF
	}

	return &Sim{cfg: cfg, mem: mem}
}

// Load copies data to the start of the memory. Extra bytes are dropped.
func (s *Sim) Load(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.mem, data)
}

// Bytes returns a copy of the memory.
func (s *Sim) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.mem...)
}

// Writes returns the number of completed write cycles.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

func (s *Sim) String() string {
	return fmt.Sprintf("sim(0x%02X)", s.cfg.Base)
}

// Tx implements i2c.Bus.
//
// A write of the cell address alone moves the internal pointer, extra bytes
// are page-written with wrap-around inside the page, and reads are sequential
// from the pointer. An empty w reads from the current address.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("sim: bus closed")
	}
	block, ok := s.block(addr)
	if !ok {
		return fmt.Errorf("sim: address 0x%02X: %w", addr, ErrNACK)
	}
	if s.busy > 0 {
		s.busy--
		return fmt.Errorf("sim: write cycle in progress: %w", ErrNACK)
	}

	if len(w) >= s.cfg.AddrBytes {
		if s.cfg.AddrBytes == 2 {
			s.ptr = (int(w[0])<<8 | int(w[1])) % s.cfg.Size
		} else {
			s.ptr = (block<<8 | int(w[0])) % s.cfg.Size
		}
		if data := w[s.cfg.AddrBytes:]; len(data) > 0 {
			s.pageWrite(data)
		}
	}

	for i := range r {
		r[i] = s.mem[s.ptr]
		s.ptr = (s.ptr + 1) % s.cfg.Size
	}

	return nil
}

func (s *Sim) pageWrite(data []byte) {
	page := s.cfg.PageSize
	start := s.ptr - s.ptr%page
	off := s.ptr % page
	for i, b := range data {
		s.mem[(start+(off+i)%page)%s.cfg.Size] = b
	}
	s.ptr = (start + (off+len(data))%page) % s.cfg.Size
	s.busy = s.cfg.BusyNACKs
	s.writes++
}

// block maps a slave address to its 256-byte block for one byte parts.
func (s *Sim) block(addr uint16) (int, bool) {
	if s.cfg.AddrBytes == 2 {
		return 0, addr == s.cfg.Base
	}
	blocks := (s.cfg.Size + 0xFF) >> 8
	if addr < s.cfg.Base || int(addr-s.cfg.Base) >= blocks {
		return 0, false
	}

	return int(addr - s.cfg.Base), true
}

// SetSpeed implements i2c.Bus.
func (s *Sim) SetSpeed(physic.Frequency) error {
	return nil
}

// Close implements io.Closer.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	return nil
}
