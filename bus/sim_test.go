package bus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_ReadWrite(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{})
	require.NoError(t, s.Tx(0x50, []byte{0x12, 0x34, 0xDE, 0xAD}, nil))

	got := make([]byte, 3)
	require.NoError(t, s.Tx(0x50, []byte{0x12, 0x34}, got))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xFF}, got)
	assert.Equal(t, 1, s.Writes())

	// current address read continues after the last byte read
	next := make([]byte, 1)
	require.NoError(t, s.Tx(0x50, nil, next))
	assert.Equal(t, byte(0xFF), next[0])
}

func TestSim_PageWrap(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{Size: 256, PageSize: 8})
	require.NoError(t, s.Tx(0x50, []byte{0x00, 0x06, 1, 2, 3, 4}, nil))

	mem := s.Bytes()
	assert.Equal(t, []byte{3, 4, 0xFF, 0xFF, 0xFF, 0xFF, 1, 2}, mem[:8])
	assert.Equal(t, byte(0xFF), mem[8])
}

func TestSim_BusyNACKs(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{BusyNACKs: 2})
	require.NoError(t, s.Tx(0x50, []byte{0x00, 0x00, 0x42}, nil))

	require.ErrorIs(t, s.Tx(0x50, []byte{0x00, 0x00}, nil), ErrNACK)
	require.ErrorIs(t, s.Tx(0x50, []byte{0x00, 0x00}, nil), ErrNACK)

	got := make([]byte, 1)
	require.NoError(t, s.Tx(0x50, []byte{0x00, 0x00}, got))
	assert.Equal(t, byte(0x42), got[0])
}

func TestSim_WrongAddress(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{})
	require.ErrorIs(t, s.Tx(0x51, []byte{0x00, 0x00}, nil), ErrNACK)
}

func TestSim_OneByteBlocks(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{Size: 2048, PageSize: 16, AddrBytes: 1})
	require.NoError(t, s.Tx(0x53, []byte{0x10, 0x77}, nil))

	assert.Equal(t, byte(0x77), s.Bytes()[0x310])
	require.NoError(t, s.Tx(0x57, []byte{0x00}, nil))
	require.ErrorIs(t, s.Tx(0x58, []byte{0x00}, nil), ErrNACK)
}

func TestSim_Closed(t *testing.T) {
	t.Parallel()

	s := NewSim(SimConfig{})
	require.NoError(t, s.Close())
	require.Error(t, s.Tx(0x50, nil, nil))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	image := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(image, []byte{0x01, 0x02, 0x03}, 0o600))

	b, err := Open("sim:"+image, Options{Sim: SimConfig{Size: 16, PageSize: 8}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	got := make([]byte, 4)
	require.NoError(t, b.Tx(0x50, []byte{0x00, 0x00}, got))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0xFF}, got)

	b, err = Open("sim", Options{})
	require.NoError(t, err)
	assert.Equal(t, "sim(0x50)", b.String())

	_, err = Open("usb://nothing", Options{})
	require.ErrorContains(t, err, "unsupported adapter")

	_, err = Open("buspirate:", Options{})
	require.Error(t, err)
}
