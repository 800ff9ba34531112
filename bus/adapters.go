package bus

import (
	"fmt"

	"go.bug.st/serial/enumerator"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Adapter describes an I2C capable adapter attached to the host.
type Adapter struct {
	Kind    string // "ftdi" or "serial"
	Name    string
	Product string
	VID     string
	PID     string
	Serial  string
	// URL is the --adapter value that opens it.
	URL string
}

// Adapters lists the FTDI devices periph can drive and the USB serial ports
// that may host a Bus Pirate. Host initialization failures only hide the
// FTDI part of the list.
func Adapters() ([]Adapter, error) {
	var out []Adapter

	if _, err := host.Init(); err == nil {
		devs := ftdi.All()
		infos := make([]ftdi.Info, len(devs))
		for i, d := range devs {
			d.Info(&infos[i])
		}
		for i, a := range ftdiAdapters(infos) {
			a.Name = devs[i].String()
			out = append(out, a)
		}
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return out, fmt.Errorf("serial enumeration failed: %w", err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		out = append(out, Adapter{
			Kind:    "serial",
			Name:    p.Name,
			Product: p.Product,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			URL:     "buspirate:" + p.Name,
		})
	}

	return out, nil
}

// ftdiAdapters builds one Adapter per info with a URL whose index counts
// devices sharing the same vendor and product ids.
func ftdiAdapters(infos []ftdi.Info) []Adapter {
	out := make([]Adapter, 0, len(infos))
	seen := map[[2]uint16]int{}
	for _, info := range infos {
		key := [2]uint16{info.VenID, info.DevID}
		idx := seen[key]
		seen[key]++
		out = append(out, Adapter{
			Kind:    "ftdi",
			Product: info.Type,
			VID:     fmt.Sprintf("%04x", info.VenID),
			PID:     fmt.Sprintf("%04x", info.DevID),
			URL:     fmt.Sprintf("ftdi://0x%04x:0x%04x:%d/1", info.VenID, info.DevID, idx),
		})
	}

	return out
}
