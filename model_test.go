package eeprom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(t *testing.T, name string) *Model {
	t.Helper()

	m, err := DefaultCatalog().Lookup(name)
	require.NoError(t, err)

	return m
}

func TestModel_ReadPlan(t *testing.T) {
	t.Parallel()

	t.Run("24c256 reads 128 chunks of 256 bytes", func(t *testing.T) {
		t.Parallel()

		plan := lookup(t, "atmel_24c256").ReadPlan(0, 0x8000)
		require.Len(t, plan, 128)
		for i, s := range plan {
			assert.Equal(t, Span{Addr: i << 8, Len: 256}, s)
		}
	})

	t.Run("m24215-w reads 256 chunks", func(t *testing.T) {
		t.Parallel()

		plan := lookup(t, "st_m24215_w").ReadPlan(0, 0x10000)
		require.Len(t, plan, 256)
		assert.Equal(t, Span{Addr: 0xFF00, Len: 256}, plan[255])
	})

	t.Run("m24128-bw ends with a 0x80 byte tail", func(t *testing.T) {
		t.Parallel()

		m := lookup(t, "st_m24128bw")
		plan := m.ReadPlan(0, m.Size)
		require.Len(t, plan, 0x3f)
		assert.Equal(t, Span{Addr: 0x3d00, Len: 256}, plan[0x3d])
		assert.Equal(t, Span{Addr: 0x3e00, Len: 0x80}, plan[0x3e])
	})

	t.Run("unaligned range", func(t *testing.T) {
		t.Parallel()

		plan := lookup(t, "atmel_24c256").ReadPlan(0x1f0, 0x120)
		assert.Equal(t, []Span{{Addr: 0x1f0, Len: 0x10}, {Addr: 0x200, Len: 0x100}, {Addr: 0x300, Len: 0x10}}, plan)
	})

	t.Run("empty range", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, lookup(t, "atmel_24c256").ReadPlan(0x10, 0))
	})
}

func TestModel_WritePlan(t *testing.T) {
	t.Parallel()

	m := lookup(t, "atmel_24c256")
	assert.Equal(t, []Span{{Addr: 60, Len: 4}, {Addr: 64, Len: 6}}, m.WritePlan(60, 10))
	assert.Equal(t, []Span{{Addr: 0, Len: 64}, {Addr: 64, Len: 64}}, m.WritePlan(0, 128))
	assert.Equal(t, []Span{{Addr: 0x7fff, Len: 1}}, m.WritePlan(0x7fff, 1))
}

func TestModel_Target(t *testing.T) {
	t.Parallel()

	slave, prefix := lookup(t, "atmel_24c256").Target(0x50, 0x1234)
	assert.Equal(t, uint16(0x50), slave)
	assert.Equal(t, []byte{0x12, 0x34}, prefix)

	slave, prefix = lookup(t, "atmel_24c16").Target(0x50, 0x3f0)
	assert.Equal(t, uint16(0x53), slave)
	assert.Equal(t, []byte{0xf0}, prefix)

	slave, prefix = lookup(t, "atmel_24c02").Target(0x51, 0xff)
	assert.Equal(t, uint16(0x51), slave)
	assert.Equal(t, []byte{0xff}, prefix)
}

func TestModel_Validate(t *testing.T) {
	t.Parallel()

	valid := Model{Name: "x", Size: 0x1000, PageSize: 32, AddrBytes: 2}

	tests := []struct {
		name    string
		give    func(m *Model)
		wantErr string
	}{
		{name: "valid", give: func(*Model) {}},
		{name: "no name", give: func(m *Model) { m.Name = "" }, wantErr: "name is required"},
		{name: "no size", give: func(m *Model) { m.Size = 0 }, wantErr: "size must be positive"},
		{name: "three address bytes", give: func(m *Model) { m.AddrBytes = 3 }, wantErr: "addr_bytes"},
		{name: "too big for two bytes", give: func(m *Model) { m.Size = 0x20000; m.PageSize = 128 }, wantErr: "64 KiB"},
		{name: "too big for one byte", give: func(m *Model) { m.AddrBytes = 1 }, wantErr: "2 KiB"},
		{name: "page larger than part", give: func(m *Model) { m.PageSize = 0x2000 }, wantErr: "page_size"},
		{name: "negative chunk", give: func(m *Model) { m.ReadChunk = -1 }, wantErr: "read_chunk"},
		{
			name:    "chunk crossing blocks",
			give:    func(m *Model) { m.AddrBytes = 1; m.Size = 0x800; m.ReadChunk = 512 },
			wantErr: "read_chunk must divide the 256 byte block",
		},
		{
			name:    "page crossing blocks",
			give:    func(m *Model) { m.AddrBytes = 1; m.Size = 0x200; m.PageSize = 24 },
			wantErr: "page_size must divide the 256 byte block",
		},
		{
			name: "one byte part with block sized pages",
			give: func(m *Model) { m.AddrBytes = 1; m.Size = 0x800; m.PageSize = 256 },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := valid
			tt.give(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestModel_CheckRange(t *testing.T) {
	t.Parallel()

	m := lookup(t, "atmel_24c256")
	require.NoError(t, m.CheckRange(0, 0x8000))
	require.NoError(t, m.CheckRange(0x7fff, 1))
	require.ErrorIs(t, m.CheckRange(0x7fff, 2), ErrOutOfRange)
	require.ErrorIs(t, m.CheckRange(-1, 1), ErrOutOfRange)
}

func TestModel_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Atmel 24C256 (32 KiB)", lookup(t, "atmel_24c256").String())
	assert.Equal(t, "STM M24215-W (64 KiB)", lookup(t, "st_m24215_w").String())
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()

	m, err := c.Lookup("ATMEL-24C256")
	require.NoError(t, err)
	assert.Equal(t, "atmel_24c256", m.Name)

	_, err = c.Lookup("atmel_24c1024")
	require.ErrorIs(t, err, ErrUnknownModel)

	require.NoError(t, c.Add(Model{Name: "Microchip-24LC65", Vendor: "Microchip", Part: "24LC65", Size: 0x2000, PageSize: 64, AddrBytes: 2}))
	m, err = c.Lookup("microchip_24lc65")
	require.NoError(t, err)
	assert.Equal(t, 0x2000, m.Size)

	require.Error(t, c.Add(Model{Name: "broken"}))

	names := c.Names()
	assert.Len(t, names, 12)
	assert.IsIncreasing(t, names)
	assert.Equal(t, names[0], c.Models()[0].Name)

	// catalogs do not share models
	assert.Len(t, DefaultCatalog().Names(), 11)
}

func TestModel_WritePlan_StaysInBlock(t *testing.T) {
	t.Parallel()

	for _, m := range DefaultCatalog().Models() {
		if m.AddrBytes != 1 {
			continue
		}
		for _, s := range m.WritePlan(0, m.Size) {
			first, _ := m.Target(0x50, s.Addr)
			last, _ := m.Target(0x50, s.Addr+s.Len-1)
			assert.Equal(t, first, last, "%s write 0x%03X+%d crosses a block", m.Name, s.Addr, s.Len)
		}
	}
}
