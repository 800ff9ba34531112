package eeprom

import (
	"context"
	"io"
)

type Interface interface {
	// Read n bytes starting at cell addr
	ReadAt(ctx context.Context, addr, n int) ([]byte, error)

	// Read one cell
	ReadCell(ctx context.Context, addr int) (byte, error)

	// Write one cell and wait for the write cycle
	WriteCell(ctx context.Context, addr int, value byte) error

	// Page-write data starting at cell addr
	Write(ctx context.Context, addr int, data []byte, progress func(float64)) error

	// Print the first n bytes as hex rows
	DumpHead(ctx context.Context, w io.Writer, n int) error

	// Stream the whole device to w
	Dump(ctx context.Context, w io.Writer, progress func(float64)) error

	// Compare the device with data written at addr
	Verify(ctx context.Context, addr int, data []byte) error

	// Program an image file
	WriteFile(ctx context.Context, path string, verify bool, progress func(float64)) error

	// Fill the whole device
	Erase(ctx context.Context, fill byte, progress func(float64)) error
}

var _ Interface = (*EEPROM)(nil)
