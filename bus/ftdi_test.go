package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3/ftdi"
)

func TestParseFTDIURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		want    FTDISelector
		wantErr string
	}{
		{url: "ftdi://:/1", want: FTDISelector{Interface: 1}},
		{url: "ftdi:///1", want: FTDISelector{Interface: 1}},
		{url: "ftdi://ftdi:232h/1", want: FTDISelector{VenID: VendorFTDI, DevID: ProductFT232H, Interface: 1}},
		{url: "ftdi://0x403:0x6014:2/1", want: FTDISelector{VenID: 0x0403, DevID: 0x6014, Index: 2, Interface: 1}},
		{url: "ftdi://::1/1", want: FTDISelector{Index: 1, Interface: 1}},
		{url: "ftdi://ftdi:2232h/2", want: FTDISelector{VenID: VendorFTDI, DevID: ProductFT2232H, Interface: 2}},
		{url: "usb://:/1", wantErr: "not an ftdi:// URL"},
		{url: "ftdi://:", wantErr: "has no interface"},
		{url: "ftdi://:/0", wantErr: "invalid interface"},
		{url: "ftdi://acme:/1", wantErr: "vendor"},
		{url: "ftdi://ftdi:999999/1", wantErr: "product"},
		{url: "ftdi://ftdi:232h:FT123456/1", wantErr: "only numeric indexes"},
		{url: "ftdi://a:b:c:d/1", wantErr: "invalid device locator"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFTDIURL(tt.url)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFTDISelector_Match(t *testing.T) {
	t.Parallel()

	infos := []ftdi.Info{
		{Type: "FT232R", VenID: VendorFTDI, DevID: ProductFT232R},
		{Type: "FT232H", VenID: VendorFTDI, DevID: ProductFT232H},
		{Type: "FT232H", VenID: VendorFTDI, DevID: ProductFT232H},
	}

	idx, err := FTDISelector{Interface: 1}.Match(infos)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = FTDISelector{DevID: ProductFT232H, Index: 1, Interface: 1}.Match(infos)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = FTDISelector{DevID: ProductFT232H, Index: 2, Interface: 1}.Match(infos)
	require.ErrorContains(t, err, "out of range")

	_, err = FTDISelector{DevID: ProductFT4232H, Interface: 1}.Match(infos)
	require.ErrorContains(t, err, "no matching device")
}

func TestFTDIAdapters(t *testing.T) {
	t.Parallel()

	got := ftdiAdapters([]ftdi.Info{
		{Type: "FT232H", VenID: VendorFTDI, DevID: ProductFT232H},
		{Type: "FT232R", VenID: VendorFTDI, DevID: ProductFT232R},
		{Type: "FT232H", VenID: VendorFTDI, DevID: ProductFT232H},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "ftdi://0x0403:0x6014:0/1", got[0].URL)
	assert.Equal(t, "ftdi://0x0403:0x6001:0/1", got[1].URL)
	assert.Equal(t, "ftdi://0x0403:0x6014:1/1", got[2].URL)
	assert.Equal(t, "6014", got[2].PID)
	assert.Equal(t, "FT232H", got[0].Product)

	// the URLs round-trip through the parser
	sel, err := ParseFTDIURL(got[2].URL)
	require.NoError(t, err)
	assert.Equal(t, FTDISelector{VenID: VendorFTDI, DevID: ProductFT232H, Index: 1, Interface: 1}, sel)
}

func TestIsNACK(t *testing.T) {
	t.Parallel()

	assert.True(t, isNACK(errors.New("got NAK")))
	assert.True(t, isNACK(errors.New("i2c: NACK from 0x50")))
	assert.False(t, isNACK(errors.New("d2xx: device not opened")))
}

// fakeMPSSE records how the I2C port is requested and hands out bus.
type fakeMPSSE struct {
	pulls []gpio.Pull
	bus   *scriptedBus
	err   error
}

func (f *fakeMPSSE) I2C(pull gpio.Pull) (i2c.BusCloser, error) {
	f.pulls = append(f.pulls, pull)
	if f.err != nil {
		return nil, f.err
	}

	return f.bus, nil
}

// scriptedBus fails every Tx with txErr.
type scriptedBus struct {
	txErr    error
	speed    physic.Frequency
	speedErr error
	closed   bool
}

func (b *scriptedBus) String() string { return "scripted" }
func (b *scriptedBus) Tx(uint16, []byte, []byte) error { return b.txErr }
func (b *scriptedBus) Close() error { b.closed = true; return nil }
func (b *scriptedBus) SetSpeed(f physic.Frequency) error { b.speed = f; return b.speedErr }

func TestOpenMPSSE(t *testing.T) {
	t.Parallel()

	t.Run("floating lines and speed", func(t *testing.T) {
		t.Parallel()

		dev := &fakeMPSSE{bus: &scriptedBus{}}
		b, err := openMPSSE(dev, 400*physic.KiloHertz)
		require.NoError(t, err)
		assert.Equal(t, []gpio.Pull{gpio.Float}, dev.pulls)
		assert.Equal(t, 400*physic.KiloHertz, dev.bus.speed)
		assert.Equal(t, "scripted", b.String())
	})

	t.Run("periph NAK becomes ErrNACK", func(t *testing.T) {
		t.Parallel()

		dev := &fakeMPSSE{bus: &scriptedBus{txErr: errors.New("got NAK")}}
		b, err := openMPSSE(dev, 0)
		require.NoError(t, err)

		err = b.Tx(0x50, []byte{0, 0}, nil)
		require.ErrorIs(t, err, ErrNACK)
		assert.ErrorContains(t, err, "got NAK")
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()

		dev := &fakeMPSSE{bus: &scriptedBus{txErr: errors.New("d2xx: device not opened")}}
		b, err := openMPSSE(dev, 0)
		require.NoError(t, err)
		assert.NotErrorIs(t, b.Tx(0x50, nil, make([]byte, 1)), ErrNACK)
	})

	t.Run("scan skips absent devices", func(t *testing.T) {
		t.Parallel()

		dev := &fakeMPSSE{bus: &scriptedBus{txErr: errors.New("got NAK")}}
		b, err := openMPSSE(dev, 0)
		require.NoError(t, err)

		found, err := Scan(context.Background(), b, ScanFirst, ScanLast)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("speed refused", func(t *testing.T) {
		t.Parallel()

		dev := &fakeMPSSE{bus: &scriptedBus{speedErr: errors.New("unsupported")}}
		_, err := openMPSSE(dev, 5*physic.MegaHertz)
		require.ErrorContains(t, err, "set speed")
		assert.True(t, dev.bus.closed)
	})

	t.Run("port unavailable", func(t *testing.T) {
		t.Parallel()

		_, err := openMPSSE(&fakeMPSSE{err: errors.New("d2xx: busy")}, 0)
		require.ErrorContains(t, err, "failed to get I2C port")
	})
}
