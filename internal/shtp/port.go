package shtp

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Porter defines the minimal interface needed for the byte transport
// carrying SHTP cargo. This abstraction enables unit testing without real
// sensor hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with a configurable read timeout. A
// zero-byte read after the timeout signals "no data ready" to the framer.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// DefaultMode returns the serial mode for a BNO08x in UART-SHTP mode.
func DefaultMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: 3000000,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// DefaultReadTimeout bounds a single transport read so the data pump can
// observe "no data ready" instead of blocking forever.
const DefaultReadTimeout = 100 * time.Millisecond

// Open opens the serial port at the given path in UART-SHTP mode. A nil
// mode selects DefaultMode.
func Open(path string, mode *serial.Mode) (Porter, error) {
	if mode == nil {
		mode = DefaultMode()
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open sensor port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}
