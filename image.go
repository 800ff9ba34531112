package eeprom

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// hexLineLength is the data bytes per Intel HEX record written by SaveImage.
const hexLineLength = 16

// Segment is a run of bytes to place at Addr.
type Segment struct {
	Addr int
	Data []byte
}

// IsHexFile reports whether path names an Intel HEX file.
func IsHexFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihx", ".ihex":
		return true
	}

	return false
}

// LoadImage reads an image file. Intel HEX files keep their segments; any
// other file is raw data for cell 0.
func LoadImage(path string) ([]Segment, error) {
	if !IsHexFile(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		return []Segment{{Addr: 0, Data: data}}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var segments []Segment
	for _, s := range mem.GetDataSegments() {
		segments = append(segments, Segment{Addr: int(s.Address), Data: s.Data})
	}

	return segments, nil
}

// SaveImage writes a dump. Intel HEX paths get 16 byte records from cell 0;
// other paths get the raw bytes, appended to an existing file when
// appendMode is set.
func SaveImage(path string, data []byte, appendMode bool) error {
	if IsHexFile(path) {
		if appendMode {
			return errors.New("cannot append to an Intel HEX file")
		}

		return saveHex(path, data)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func saveHex(path string, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(0, data); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mem.DumpIntelHex(f, hexLineLength); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
