package shtp

import (
	"errors"
	"fmt"
)

// ErrNoData is returned by ReadPacket when the transport has nothing to
// deliver within its read timeout. It is not a failure; the caller simply
// polls again later.
var ErrNoData = errors.New("shtp: no data ready")

// TransportError wraps a bus-level I/O failure. The byte stream must be
// assumed desynchronized; further decoding is unsafe until the caller
// takes corrective action (typically a device reset).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("shtp: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed wire structure: a bad header length,
// a missing continuation flag, or cargo shorter than announced. The framer
// discards buffered bytes and resynchronizes on the next header read.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "shtp: " + e.Reason }
