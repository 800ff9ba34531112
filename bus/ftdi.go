package bus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// FTDI USB identifiers understood in adapter URLs.
const (
	VendorFTDI = 0x0403

	ProductFT232R  = 0x6001
	ProductFT2232H = 0x6010
	ProductFT4232H = 0x6011
	ProductFT232H  = 0x6014
	ProductFT230X  = 0x6015
)

var (
	vendorNames  = map[string]uint16{"ftdi": VendorFTDI}
	productNames = map[string]uint16{
		"232":   ProductFT232R,
		"232r":  ProductFT232R,
		"2232":  ProductFT2232H,
		"2232h": ProductFT2232H,
		"4232":  ProductFT4232H,
		"4232h": ProductFT4232H,
		"232h":  ProductFT232H,
		"230x":  ProductFT230X,
	}
)

// FTDISelector picks one device out of the FTDI devices on the host.
type FTDISelector struct {
	// VenID and DevID filter by USB ids; zero matches anything.
	VenID uint16
	DevID uint16
	// Index is the 0-based position among the matching devices.
	Index int
	// Interface is the MPSSE channel. Only 1 is driven.
	Interface int
}

// ParseFTDIURL parses an adapter URL of the form
// ftdi://[vendor][:product[:index]]/interface, e.g. "ftdi://:/1" or
// "ftdi://ftdi:232h:0/1". Vendor and product take names or numeric ids.
func ParseFTDIURL(url string) (FTDISelector, error) {
	var sel FTDISelector

	rest, ok := strings.CutPrefix(url, "ftdi://")
	if !ok {
		return sel, fmt.Errorf("ftdi: %q is not an ftdi:// URL", url)
	}
	locator, iface, ok := strings.Cut(rest, "/")
	if !ok || iface == "" {
		return sel, fmt.Errorf("ftdi: %q has no interface", url)
	}
	n, err := strconv.Atoi(iface)
	if err != nil || n < 1 {
		return sel, fmt.Errorf("ftdi: invalid interface %q", iface)
	}
	sel.Interface = n

	parts := strings.Split(locator, ":")
	if len(parts) > 3 {
		return sel, fmt.Errorf("ftdi: invalid device locator %q", locator)
	}
	if len(parts) > 0 && parts[0] != "" {
		if sel.VenID, err = parseUSBID(parts[0], vendorNames); err != nil {
			return sel, fmt.Errorf("ftdi: vendor: %w", err)
		}
	}
	if len(parts) > 1 && parts[1] != "" {
		if sel.DevID, err = parseUSBID(parts[1], productNames); err != nil {
			return sel, fmt.Errorf("ftdi: product: %w", err)
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			// periph does not report serial numbers, so only indexes select.
			return sel, fmt.Errorf("ftdi: device %q: only numeric indexes are supported", parts[2])
		}
		sel.Index = idx
	}

	return sel, nil
}

func parseUSBID(s string, names map[string]uint16) (uint16, error) {
	if id, ok := names[strings.ToLower(s)]; ok {
		return id, nil
	}
	id, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown id %q", s)
	}

	return uint16(id), nil
}

// Match returns the position in infos of the selected device.
func (s FTDISelector) Match(infos []ftdi.Info) (int, error) {
	seen := 0
	for i, info := range infos {
		if s.VenID != 0 && info.VenID != s.VenID {
			continue
		}
		if s.DevID != 0 && info.DevID != s.DevID {
			continue
		}
		if seen == s.Index {
			return i, nil
		}
		seen++
	}
	if seen == 0 {
		return -1, errors.New("ftdi: no matching device found")
	}

	return -1, fmt.Errorf("ftdi: device index %d out of range, %d matching", s.Index, seen)
}

// OpenFTDI opens the I2C master of the FTDI device selected by url and sets
// the bus clock when speed is non-zero.
func OpenFTDI(url string, speed physic.Frequency) (i2c.BusCloser, error) {
	sel, err := ParseFTDIURL(url)
	if err != nil {
		return nil, err
	}
	if sel.Interface != 1 {
		return nil, fmt.Errorf("ftdi: interface %d is not supported, use 1", sel.Interface)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host initialization failed: %w", err)
	}

	devs := ftdi.All()
	infos := make([]ftdi.Info, len(devs))
	for i, d := range devs {
		d.Info(&infos[i])
	}
	idx, err := sel.Match(infos)
	if err != nil {
		return nil, err
	}

	ft, ok := devs[idx].(*ftdi.FT232H)
	if !ok {
		return nil, fmt.Errorf("ftdi: %s (%s) has no MPSSE engine, I2C is unavailable", devs[idx], infos[idx].Type)
	}

	return openMPSSE(ft, speed)
}

// mpsseDevice is the part of *ftdi.FT232H that provides I2C.
type mpsseDevice interface {
	I2C(pull gpio.Pull) (i2c.BusCloser, error)
}

// openMPSSE opens the I2C master of dev. The lines float: periph cannot
// drive the internal pull-ups, EEPROM boards carry their own.
func openMPSSE(dev mpsseDevice, speed physic.Frequency) (i2c.BusCloser, error) {
	b, err := dev.I2C(gpio.Float)
	if err != nil {
		return nil, fmt.Errorf("ftdi: failed to get I2C port: %w", err)
	}
	if speed != 0 {
		if err := b.SetSpeed(speed); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("ftdi: set speed %s: %w", speed, err)
		}
	}

	return &ftdiBus{BusCloser: b}, nil
}

// ftdiBus maps periph's NACK errors onto ErrNACK.
type ftdiBus struct {
	i2c.BusCloser
}

func (b *ftdiBus) Tx(addr uint16, w, r []byte) error {
	err := b.BusCloser.Tx(addr, w, r)
	if err != nil && isNACK(err) {
		return fmt.Errorf("%v: %w", err, ErrNACK)
	}

	return err
}

// isNACK reports whether a periph error describes a missing acknowledge.
// periph returns a plain "got NAK" error for it.
func isNACK(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nak") || strings.Contains(msg, "nack")
}
