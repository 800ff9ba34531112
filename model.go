package eeprom

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrUnknownModel = errors.New("unknown EEPROM model")

// DefaultReadChunk is the number of bytes fetched per read transaction.
const DefaultReadChunk = 256

// Model describes how an EEPROM part is addressed.
type Model struct {
	Name   string `mapstructure:"name" yaml:"name" toml:"name"`
	Vendor string `mapstructure:"vendor" yaml:"vendor" toml:"vendor"`
	Part   string `mapstructure:"part" yaml:"part" toml:"part"`
	// Size is the number of bytes read by a full dump.
	Size int `mapstructure:"size" yaml:"size" toml:"size"`
	// PageSize is the write page; a page write wraps inside its page.
	PageSize int `mapstructure:"page_size" yaml:"page_size" toml:"page_size"`
	// AddrBytes is the width of the cell address, 1 or 2. One byte parts
	// carry the address bits above bit 7 in the low bits of the slave
	// address.
	AddrBytes int `mapstructure:"addr_bytes" yaml:"addr_bytes" toml:"addr_bytes"`
	// ReadChunk overrides DefaultReadChunk.
	ReadChunk int `mapstructure:"read_chunk" yaml:"read_chunk,omitempty" toml:"read_chunk,omitempty"`
}

// Span is a contiguous run of cells.
type Span struct {
	Addr int
	Len  int
}

// Validate checks the model is usable.
func (m *Model) Validate() error {
	switch {
	case m.Name == "":
		return errors.New("model name is required")
	case m.Size <= 0:
		return fmt.Errorf("model %s: size must be positive", m.Name)
	case m.AddrBytes != 1 && m.AddrBytes != 2:
		return fmt.Errorf("model %s: addr_bytes must be 1 or 2, got %d", m.Name, m.AddrBytes)
	case m.AddrBytes == 2 && m.Size > 1<<16:
		return fmt.Errorf("model %s: two address bytes reach 64 KiB, size is %d", m.Name, m.Size)
	case m.AddrBytes == 1 && m.Size > 8<<8:
		return fmt.Errorf("model %s: one address byte and three block bits reach 2 KiB, size is %d", m.Name, m.Size)
	case m.PageSize <= 0 || m.PageSize > m.Size:
		return fmt.Errorf("model %s: page_size must be in (0, %d]", m.Name, m.Size)
	case m.ReadChunk < 0:
		return fmt.Errorf("model %s: read_chunk must not be negative", m.Name)
	case m.AddrBytes == 1 && 256%m.chunk() != 0:
		return fmt.Errorf("model %s: read_chunk must divide the 256 byte block", m.Name)
	case m.AddrBytes == 1 && 256%m.PageSize != 0:
		// a page write is sent to one block's slave address
		return fmt.Errorf("model %s: page_size must divide the 256 byte block", m.Name)
	}

	return nil
}

func (m *Model) chunk() int {
	if m.ReadChunk > 0 {
		return m.ReadChunk
	}

	return DefaultReadChunk
}

// Target returns the slave address and the cell address bytes that select
// cell on a part answering at slave.
func (m *Model) Target(slave uint16, cell int) (uint16, []byte) {
	if m.AddrBytes == 1 {
		return slave | uint16(cell>>8)&0x07, []byte{byte(cell)}
	}

	return slave, []byte{byte(cell >> 8), byte(cell)}
}

// ReadPlan splits [start, start+length) into reads aligned on the read
// chunk. The last read is cut at the end of the range, so a 0x3e80 byte
// part reads 0x3e full chunks and one of 0x80 bytes.
func (m *Model) ReadPlan(start, length int) []Span {
	return split(start, length, m.chunk())
}

// WritePlan splits [start, start+length) into writes that never cross a
// page boundary.
func (m *Model) WritePlan(start, length int) []Span {
	return split(start, length, m.PageSize)
}

func split(start, length, align int) []Span {
	var spans []Span
	for end := start + length; start < end; {
		n := min(align-start%align, end-start)
		spans = append(spans, Span{Addr: start, Len: n})
		start += n
	}

	return spans
}

// CheckRange fails with ErrOutOfRange unless [addr, addr+n) is on the part.
func (m *Model) CheckRange(addr, n int) error {
	if addr < 0 || n < 0 || addr+n > m.Size {
		return fmt.Errorf("%w: 0x%04X+%d on %s (%d bytes)", ErrOutOfRange, addr, n, m.Name, m.Size)
	}

	return nil
}

func (m *Model) String() string {
	return fmt.Sprintf("%s %s (%s)", m.Vendor, m.Part, humanize.IBytes(uint64(m.Size)))
}

// Catalog is a set of models keyed by name.
type Catalog struct {
	models map[string]*Model
}

// builtin are the parts known without configuration.
var builtin = []Model{
	// The three parts the tool was first written for. st_m24128bw dumps
	// 0x3e80 bytes, which is what existing dump files of it hold.
	{Name: "atmel_24c256", Vendor: "Atmel", Part: "24C256", Size: 0x8000, PageSize: 64, AddrBytes: 2},
	{Name: "st_m24215_w", Vendor: "STM", Part: "M24215-W", Size: 0x10000, PageSize: 128, AddrBytes: 2},
	{Name: "st_m24128bw", Vendor: "STM", Part: "M24128-BW", Size: 0x3e80, PageSize: 64, AddrBytes: 2},

	{Name: "atmel_24c02", Vendor: "Atmel", Part: "24C02", Size: 0x100, PageSize: 8, AddrBytes: 1},
	{Name: "atmel_24c04", Vendor: "Atmel", Part: "24C04", Size: 0x200, PageSize: 16, AddrBytes: 1},
	{Name: "atmel_24c08", Vendor: "Atmel", Part: "24C08", Size: 0x400, PageSize: 16, AddrBytes: 1},
	{Name: "atmel_24c16", Vendor: "Atmel", Part: "24C16", Size: 0x800, PageSize: 16, AddrBytes: 1},
	{Name: "atmel_24c32", Vendor: "Atmel", Part: "24C32", Size: 0x1000, PageSize: 32, AddrBytes: 2},
	{Name: "atmel_24c64", Vendor: "Atmel", Part: "24C64", Size: 0x2000, PageSize: 32, AddrBytes: 2},
	{Name: "atmel_24c128", Vendor: "Atmel", Part: "24C128", Size: 0x4000, PageSize: 64, AddrBytes: 2},
	{Name: "atmel_24c512", Vendor: "Atmel", Part: "24C512", Size: 0x10000, PageSize: 128, AddrBytes: 2},
}

// DefaultCatalog returns a catalog holding the built-in models.
func DefaultCatalog() *Catalog {
	c := &Catalog{models: make(map[string]*Model, len(builtin))}
	for _, m := range builtin {
		m := m
		c.models[m.Name] = &m
	}

	return c
}

// Add validates m and registers it, replacing a model of the same name.
func (c *Catalog) Add(m Model) error {
	m.Name = normalizeName(m.Name)
	if err := m.Validate(); err != nil {
		return err
	}
	c.models[m.Name] = &m

	return nil
}

// Lookup finds a model by name. Names are matched case-insensitively and
// "-" is accepted for "_".
func (c *Catalog) Lookup(name string) (*Model, error) {
	m, ok := c.models[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModel, name)
	}

	return m, nil
}

// Names returns the model names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Models returns the models ordered by name.
func (c *Catalog) Models() []*Model {
	out := make([]*Model, 0, len(c.models))
	for _, name := range c.Names() {
		out = append(out, c.models[name])
	}

	return out
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}
