package sh2

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// vec3Report builds a three-axis input report: 4-byte header plus three
// signed 16-bit little-endian values.
func vec3Report(id, seq, status, delayLSB uint8, x, y, z int16) []byte {
	raw := make([]byte, 10)
	raw[0] = id
	raw[1] = seq
	raw[2] = status
	raw[3] = delayLSB
	binary.LittleEndian.PutUint16(raw[4:], uint16(x))
	binary.LittleEndian.PutUint16(raw[6:], uint16(y))
	binary.LittleEndian.PutUint16(raw[8:], uint16(z))
	return raw
}

func TestDecodeAccelerometer(t *testing.T) {
	// status 0x07: delay MSBs 0b000001, accuracy 3.
	raw := vec3Report(ReportAccelerometer, 9, 0x07, 0x10, 256, -256, 128)
	s, err := Decode(ReportAccelerometer, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := Sample{
		Report:      ReportAccelerometer,
		Name:        "accelerometer",
		Seq:         9,
		Accuracy:    3,
		HasAccuracy: true,
		DelayTicks:  0x0110,
		Values:      []float64{1.0, -1.0, 0.5}, // Q8
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDelayFourteenBits(t *testing.T) {
	// Status bits 7:2 are the six MSBs of the delay. All ones in both
	// halves gives the full 14-bit range.
	raw := vec3Report(ReportGyroscope, 0, 0xFF, 0xFF, 0, 0, 0)
	s, err := Decode(ReportGyroscope, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.DelayTicks != 16383 {
		t.Errorf("DelayTicks = %d, want 16383", s.DelayTicks)
	}
	if s.Accuracy != 3 {
		t.Errorf("Accuracy = %d, want 3 (low two status bits)", s.Accuracy)
	}
}

func TestDecodeQScaling(t *testing.T) {
	// One raw LSB decodes to 2^-Q per report family.
	tests := []struct {
		id   uint8
		want float64
	}{
		{ReportAccelerometer, math.Ldexp(1, -8)},
		{ReportGyroscope, math.Ldexp(1, -9)},
		{ReportMagnetometer, math.Ldexp(1, -4)},
		{ReportLinearAcceleration, math.Ldexp(1, -8)},
		{ReportGravity, math.Ldexp(1, -8)},
	}
	for _, tc := range tests {
		raw := vec3Report(tc.id, 0, 0, 0, 1, 0, 0)
		s, err := Decode(tc.id, raw)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", ReportName(tc.id), err)
		}
		if s.Values[0] != tc.want {
			t.Errorf("%s: x = %v, want %v", ReportName(tc.id), s.Values[0], tc.want)
		}
	}
}

func TestDecodeRotationVectorReorder(t *testing.T) {
	// The wire carries (i, j, k, real); storage order is (real, i, j, k).
	raw := make([]byte, 14)
	raw[0] = ReportRotationVector
	binary.LittleEndian.PutUint16(raw[4:], 1)  // i
	binary.LittleEndian.PutUint16(raw[6:], 2)  // j
	binary.LittleEndian.PutUint16(raw[8:], 3)  // k
	binary.LittleEndian.PutUint16(raw[10:], 4) // real
	binary.LittleEndian.PutUint16(raw[12:], 4096)

	s, err := Decode(ReportRotationVector, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []float64{
		math.Ldexp(4, -14), // real
		math.Ldexp(1, -14), // i
		math.Ldexp(2, -14), // j
		math.Ldexp(3, -14), // k
		1.0,                // accuracy estimate, Q12
	}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeGyroIntegratedRV(t *testing.T) {
	// Channel-5 cargo has no report header: quaternion then angular
	// velocity, nothing else.
	raw := make([]byte, 14)
	binary.LittleEndian.PutUint16(raw[0:], 1)      // i
	binary.LittleEndian.PutUint16(raw[2:], 2)      // j
	binary.LittleEndian.PutUint16(raw[4:], 3)      // k
	binary.LittleEndian.PutUint16(raw[6:], 16384)  // real = 1.0 at Q14
	binary.LittleEndian.PutUint16(raw[8:], 1024)   // angvel x = 1.0 at Q10
	binary.LittleEndian.PutUint16(raw[10:], 0)     // angvel y
	binary.LittleEndian.PutUint16(raw[12:], 64512) // angvel z = -1.0 at Q10

	s, err := Decode(ReportGyroIntegratedRV, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.HasAccuracy {
		t.Error("HasAccuracy = true for a no-header report")
	}
	if s.DelayTicks != 0 {
		t.Errorf("DelayTicks = %d, want 0 for a no-header report", s.DelayTicks)
	}
	want := []float64{
		1.0,
		math.Ldexp(1, -14),
		math.Ldexp(2, -14),
		math.Ldexp(3, -14),
		1.0, 0.0, -1.0,
	}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnknownReport(t *testing.T) {
	_, err := Decode(0x42, []byte{0x42, 0, 0, 0})
	var uerr *UnknownReportError
	if !errors.As(err, &uerr) {
		t.Fatalf("Decode error = %v, want *UnknownReportError", err)
	}
	if uerr.ID != 0x42 {
		t.Errorf("ID = 0x%02x, want 0x42", uerr.ID)
	}
}

func TestDecodeShortReport(t *testing.T) {
	_, err := Decode(ReportAccelerometer, []byte{ReportAccelerometer, 0, 0, 0, 1, 2})
	var serr *ShortReportError
	if !errors.As(err, &serr) {
		t.Fatalf("Decode error = %v, want *ShortReportError", err)
	}
	if serr.Got != 6 || serr.Want != 10 {
		t.Errorf("Got/Want = %d/%d, want 6/10", serr.Got, serr.Want)
	}
}

func TestDecodePure(t *testing.T) {
	raw := vec3Report(ReportMagnetometer, 3, 0x0A, 0x20, 100, -50, 7)
	first, err := Decode(ReportMagnetometer, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	second, err := Decode(ReportMagnetometer, raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated decode differs (-first +second):\n%s", diff)
	}
}

func TestTimebaseDelta(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want int32
	}{
		{"positive", []byte{ReportBaseTimestamp, 0x40, 0x9C, 0x00, 0x00}, 40000},
		{"negative", []byte{ReportTimestampRebase, 0xFF, 0xFF, 0xFF, 0xFF}, -1},
		{"zero", []byte{ReportBaseTimestamp, 0, 0, 0, 0}, 0},
	}
	for _, tc := range tests {
		got, err := TimebaseDelta(tc.raw)
		if err != nil {
			t.Fatalf("%s: TimebaseDelta failed: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: delta = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestTimebaseDeltaShort(t *testing.T) {
	_, err := TimebaseDelta([]byte{ReportBaseTimestamp, 1, 2})
	var serr *ShortReportError
	if !errors.As(err, &serr) {
		t.Fatalf("TimebaseDelta error = %v, want *ShortReportError", err)
	}
}

func TestReportByName(t *testing.T) {
	id, ok := ReportByName("rotation_vector")
	if !ok || id != ReportRotationVector {
		t.Errorf("ReportByName(rotation_vector) = 0x%02x, %v", id, ok)
	}
	if _, ok := ReportByName("no_such_report"); ok {
		t.Error("ReportByName accepted an unknown name")
	}
	if got := ReportName(0x42); got != "unknown_0x42" {
		t.Errorf("ReportName(0x42) = %q", got)
	}
}
