package shtp

import "encoding/binary"

// SHTP logical channels. Channel assignment is fixed by the BNO08x
// firmware advertisement.
const (
	ChannelCommand     = 0 // SHTP command/advertisement
	ChannelExecutable  = 1 // device reset and sleep notifications
	ChannelControl     = 2 // SH-2 control: commands, responses, feature config
	ChannelInputReport = 3 // sensor input reports
	ChannelWakeReport  = 4 // wake-capable sensor input reports
	ChannelGyroRV      = 5 // gyro-integrated rotation vector fast path

	ChannelCount = 6
)

const (
	// HeaderLen is the fixed SHTP header size: 16-bit length (top bit is
	// the continuation flag), channel, sequence.
	HeaderLen = 4

	// MaxCargoLen bounds the announced packet length. Anything larger is a
	// malformed header: the largest cargo a BNO08x advertises is well under
	// this.
	MaxCargoLen = 1024

	continuationFlag = 0x8000
)

// Packet is one reassembled SHTP packet. Payload excludes the header.
// Packets are consumed once by the dispatcher and not retained.
type Packet struct {
	Channel uint8
	Seq     uint8
	Payload []byte
}

// parseHeader splits a 4-byte SHTP header into total packet length
// (header included), continuation flag, channel and sequence.
func parseHeader(hdr []byte) (length int, continuation bool, channel, seq uint8) {
	raw := binary.LittleEndian.Uint16(hdr[0:2])
	return int(raw &^ continuationFlag), raw&continuationFlag != 0, hdr[2], hdr[3]
}

// putHeader writes a 4-byte SHTP header for an outbound packet.
func putHeader(hdr []byte, length int, channel, seq uint8) {
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(length))
	hdr[2] = channel
	hdr[3] = seq
}
