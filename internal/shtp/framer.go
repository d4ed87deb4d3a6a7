package shtp

import "fmt"

// DefaultMaxTransfer is the largest single transport transfer the framer
// assumes. Cargo longer than one transfer arrives as continuation
// segments, each preceded by a fresh header with the continuation flag
// set.
const DefaultMaxTransfer = 256

// maxIdleReads bounds how many consecutive empty reads the framer
// tolerates while a packet is partially assembled. A header promised more
// bytes than the bus delivered: that is a transport fault, not patience.
const maxIdleReads = 50

// Framer reassembles SHTP packets from bounded transport reads. It is a
// two-state byte-assembly machine (awaiting-header, awaiting-continuation)
// with no knowledge of report semantics.
//
// A Framer owns the outbound sequence counters for all six channels, so
// all writes to the device must also go through it.
type Framer struct {
	port        Porter
	maxTransfer int
	outSeq      [ChannelCount]uint8
}

// NewFramer wraps a transport. maxTransfer <= 0 selects
// DefaultMaxTransfer.
func NewFramer(port Porter, maxTransfer int) *Framer {
	if maxTransfer <= 0 {
		maxTransfer = DefaultMaxTransfer
	}
	return &Framer{port: port, maxTransfer: maxTransfer}
}

// ReadPacket assembles exactly one complete packet, or returns ErrNoData
// if the transport had nothing to deliver. On a malformed header the
// framer drains buffered bytes so the next call resynchronizes on a fresh
// header, and returns a *ProtocolError.
func (f *Framer) ReadPacket() (*Packet, error) {
	var hdr [HeaderLen]byte
	n, err := f.port.Read(hdr[:])
	if err != nil {
		return nil, &TransportError{Op: "read header", Err: err}
	}
	if n == 0 {
		return nil, ErrNoData
	}
	if n < HeaderLen {
		if err := f.readFull(hdr[n:]); err != nil {
			return nil, err
		}
	}

	length, continuation, channel, seq := parseHeader(hdr[:])
	if continuation {
		f.resync()
		return nil, &ProtocolError{Reason: "unexpected continuation header while awaiting packet start"}
	}
	if length < HeaderLen || length > MaxCargoLen {
		f.resync()
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed header: announced length %d", length)}
	}

	payload := make([]byte, 0, length-HeaderLen)
	remaining := length - HeaderLen

	// First transaction: whatever fits after the header.
	chunk := min(remaining, f.maxTransfer-HeaderLen)
	if chunk > 0 {
		buf := make([]byte, chunk)
		if err := f.readFull(buf); err != nil {
			return nil, err
		}
		payload = append(payload, buf...)
		remaining -= chunk
	}

	// Continuation transactions: each starts with a fresh header whose
	// continuation flag must be set.
	for remaining > 0 {
		if err := f.readFull(hdr[:]); err != nil {
			return nil, err
		}
		contLen, cont, contChannel, _ := parseHeader(hdr[:])
		if !cont || contChannel != channel {
			f.resync()
			return nil, &ProtocolError{Reason: "missing continuation flag in follow-on header"}
		}
		if contLen < HeaderLen || contLen > MaxCargoLen {
			f.resync()
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed continuation header: announced length %d", contLen)}
		}
		chunk = min(remaining, f.maxTransfer-HeaderLen)
		buf := make([]byte, chunk)
		if err := f.readFull(buf); err != nil {
			return nil, err
		}
		payload = append(payload, buf...)
		remaining -= chunk
	}

	return &Packet{Channel: channel, Seq: seq, Payload: payload}, nil
}

// WritePacket sends one packet on the given channel, prefixing the SHTP
// header and advancing that channel's outbound sequence number.
func (f *Framer) WritePacket(channel uint8, payload []byte) error {
	if int(channel) >= ChannelCount {
		return &ProtocolError{Reason: fmt.Sprintf("invalid outbound channel %d", channel)}
	}
	buf := make([]byte, HeaderLen+len(payload))
	putHeader(buf, len(buf), channel, f.outSeq[channel])
	copy(buf[HeaderLen:], payload)

	n, err := f.port.Write(buf)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(buf) {
		return &TransportError{Op: "write", Err: fmt.Errorf("short write: %d of %d bytes", n, len(buf))}
	}
	f.outSeq[channel]++
	return nil
}

// readFull reads until buf is filled. Mid-packet the transport has
// promised bytes, so repeated empty reads are a transport fault.
func (f *Framer) readFull(buf []byte) error {
	idle := 0
	for off := 0; off < len(buf); {
		n, err := f.port.Read(buf[off:])
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}
		if n == 0 {
			idle++
			if idle >= maxIdleReads {
				return &TransportError{Op: "read", Err: fmt.Errorf("transport stalled mid-packet after %d bytes", off)}
			}
			continue
		}
		idle = 0
		off += n
	}
	return nil
}

// resync discards whatever the transport has buffered so the next
// ReadPacket starts on a fresh header. Best effort: errors here are
// swallowed, the next read surfaces them.
func (f *Framer) resync() {
	buf := make([]byte, f.maxTransfer)
	for range maxIdleReads {
		n, err := f.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}
