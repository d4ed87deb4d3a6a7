package sh2

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DelayTickMicros is the resolution of the per-report delay and of the
// 0xFB/0xFA timebase deltas: 100 µs per tick.
const DelayTickMicros = 100

// UnknownReportError marks a report ID absent from the layout table.
// Recovered locally by the dispatcher: the bytes are skipped and decoding
// continues, so firmware newer than this table degrades gracefully.
type UnknownReportError struct {
	ID uint8
}

func (e *UnknownReportError) Error() string {
	return fmt.Sprintf("sh2: unknown report type 0x%02x", e.ID)
}

// ShortReportError marks cargo shorter than the layout's declared length.
type ShortReportError struct {
	ID   uint8
	Got  int
	Want int
}

func (e *ShortReportError) Error() string {
	return fmt.Sprintf("sh2: report 0x%02x truncated: %d of %d bytes", e.ID, e.Got, e.Want)
}

// Sample is one decoded report. Values follow the layout's storage order.
// DelayTicks is the 14-bit on-sensor delay in 100 µs ticks; Accuracy is
// the 2-bit status accuracy (0 unreliable .. 3 high), absent for
// no-header reports.
type Sample struct {
	Report      uint8
	Name        string
	Seq         uint8
	Accuracy    uint8
	HasAccuracy bool
	DelayTicks  uint16
	Values      []float64
}

// Decode turns one report's raw bytes into a Sample using the layout
// registered for id. Pure: identical bytes decode to identical samples.
func Decode(id uint8, raw []byte) (Sample, error) {
	layout, ok := Layouts[id]
	if !ok {
		return Sample{}, &UnknownReportError{ID: id}
	}
	if len(raw) < layout.Length {
		return Sample{}, &ShortReportError{ID: id, Got: len(raw), Want: layout.Length}
	}

	s := Sample{
		Report: id,
		Name:   layout.Name,
		Values: make([]float64, 0, len(layout.Fields)),
	}
	if !layout.NoHeader {
		// Report header: ID, sequence, status, delay LSB. Status bits 7:2
		// are the 6 MSBs of the 14-bit delay, bits 1:0 the accuracy.
		status := raw[2]
		s.Seq = raw[1]
		s.Accuracy = status & 0x03
		s.HasAccuracy = true
		s.DelayTicks = uint16(status&0xFC)<<6 | uint16(raw[3])
	}
	for _, f := range layout.Fields {
		s.Values = append(s.Values, fieldValue(raw, f))
	}
	return s, nil
}

// fieldValue extracts one little-endian integer field and applies its
// fixed-point scale.
func fieldValue(raw []byte, f Field) float64 {
	var v int64
	switch f.Width {
	case 1:
		if f.Signed {
			v = int64(int8(raw[f.Offset]))
		} else {
			v = int64(raw[f.Offset])
		}
	case 2:
		u := binary.LittleEndian.Uint16(raw[f.Offset:])
		if f.Signed {
			v = int64(int16(u))
		} else {
			v = int64(u)
		}
	case 4:
		u := binary.LittleEndian.Uint32(raw[f.Offset:])
		if f.Signed {
			v = int64(int32(u))
		} else {
			v = int64(u)
		}
	default:
		// Layout tables are static; an unsupported width is a programming
		// error, not wire data.
		panic(fmt.Sprintf("sh2: field %q has unsupported width %d", f.Name, f.Width))
	}
	return math.Ldexp(float64(v), -int(f.Q))
}

// timebaseLen is the wire size of a 0xFB/0xFA report: ID plus a signed
// 32-bit little-endian delta in 100 µs ticks.
const timebaseLen = 5

// TimebaseDelta extracts the signed delta from a Base Timestamp (0xFB) or
// Timestamp Rebase (0xFA) report. The value must be assembled as a signed
// 32-bit little-endian integer; naive unsigned assembly corrupts negative
// deltas.
func TimebaseDelta(raw []byte) (int32, error) {
	if len(raw) < timebaseLen {
		return 0, &ShortReportError{ID: raw[0], Got: len(raw), Want: timebaseLen}
	}
	return int32(binary.LittleEndian.Uint32(raw[1:timebaseLen])), nil
}
