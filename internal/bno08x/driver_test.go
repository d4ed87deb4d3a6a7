package bno08x

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
	"github.com/google/go-cmp/cmp"
)

// mockPort feeds the driver scripted transport reads and captures its
// writes. An exhausted script reads as zero bytes, like a timed-out
// serial read.
type mockPort struct {
	reads   [][]byte
	written []byte
}

func (p *mockPort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n == len(p.reads[0]) {
		p.reads = p.reads[1:]
	} else {
		p.reads[0] = p.reads[0][n:]
	}
	return n, nil
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *mockPort) Close() error { return nil }

// fakeClock pins the driver's capture hints for deterministic timestamp
// checks.
type fakeClock struct {
	now sh2.Ticks
}

func (c *fakeClock) Now() sh2.Ticks { return c.now }

// packet frames a payload as one complete SHTP read.
func packet(channel, seq uint8, payload []byte) []byte {
	buf := make([]byte, shtp.HeaderLen+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	buf[2] = channel
	buf[3] = seq
	copy(buf[shtp.HeaderLen:], payload)
	return buf
}

// timingReport builds a 0xFB (or 0xFA) timing report.
func timingReport(id uint8, deltaTicks int32) []byte {
	raw := make([]byte, 5)
	raw[0] = id
	binary.LittleEndian.PutUint32(raw[1:], uint32(deltaTicks))
	return raw
}

// accelReport builds a 10-byte accelerometer report.
func accelReport(seq, status, delayLSB uint8, x, y, z int16) []byte {
	raw := make([]byte, 10)
	raw[0] = sh2.ReportAccelerometer
	raw[1] = seq
	raw[2] = status
	raw[3] = delayLSB
	binary.LittleEndian.PutUint16(raw[4:], uint16(x))
	binary.LittleEndian.PutUint16(raw[6:], uint16(y))
	binary.LittleEndian.PutUint16(raw[8:], uint16(z))
	return raw
}

// commandResponse builds a 16-byte 0xF1 cargo answering the given
// command with the given status.
func commandResponse(command, cmdSeq, status uint8) []byte {
	raw := make([]byte, 16)
	raw[0] = sh2.CommandResponseID
	raw[2] = command
	raw[3] = cmdSeq
	raw[5] = status
	return raw
}

func pump(t *testing.T, d *Driver) {
	t.Helper()
	if err := d.Pump(); err != nil {
		t.Fatalf("Pump failed: %v", err)
	}
}

func TestPumpTimestampsReports(t *testing.T) {
	// Base delta 1.0 s against a hint at 5.0 s puts the batch start at
	// 4.0 s; a 16-tick delay lands the sample at 4.0016 s.
	cargo := append(timingReport(sh2.ReportBaseTimestamp, 10_000),
		accelReport(0, 0x03, 16, 256, 0, 0)...)
	port := &mockPort{reads: [][]byte{packet(shtp.ChannelInputReport, 0, cargo)}}
	d := New(port, &fakeClock{now: 5_000_000})

	pump(t, d)

	s, ok := d.Latest(sh2.ReportAccelerometer)
	if !ok {
		t.Fatal("no accelerometer sample in the registry")
	}
	if !s.TimeValid {
		t.Error("TimeValid = false with a timebase established")
	}
	if want := sh2.Ticks(4_001_600); s.Ticks != want {
		t.Errorf("Ticks = %d, want %d", s.Ticks, want)
	}
	if s.Values[0] != 1.0 {
		t.Errorf("x = %v, want 1.0", s.Values[0])
	}
	if s.Accuracy != 3 {
		t.Errorf("Accuracy = %d, want 3", s.Accuracy)
	}
}

func TestPumpRebaseAccumulates(t *testing.T) {
	clock := &fakeClock{now: 5_000_000}
	first := append(timingReport(sh2.ReportBaseTimestamp, 40_000),
		accelReport(0, 0, 0, 0, 0, 0)...)
	second := append(timingReport(sh2.ReportTimestampRebase, 15_000),
		accelReport(1, 0, 0, 0, 0, 0)...)
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelInputReport, 0, first),
		packet(shtp.ChannelInputReport, 1, second),
	}}
	d := New(port, clock)

	pump(t, d)
	pump(t, d)

	// The base persists across packets and the rebase moves it forward:
	// 5.0 s hint − 4.0 s base delta + 1.5 s rebase.
	s, ok := d.Latest(sh2.ReportAccelerometer)
	if !ok {
		t.Fatal("no accelerometer sample in the registry")
	}
	if want := sh2.Ticks(2_500_000); s.Ticks != want {
		t.Errorf("Ticks = %d, want %d", s.Ticks, want)
	}
}

func TestPumpUnbasedSampleFlagged(t *testing.T) {
	// A report before any 0xFB decodes, but its timestamp is undefined.
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelInputReport, 0, accelReport(0, 0, 0, 512, 0, 0)),
	}}
	d := New(port, &fakeClock{now: 1_000_000})

	pump(t, d)

	s, ok := d.Latest(sh2.ReportAccelerometer)
	if !ok {
		t.Fatal("sample not decoded without a timebase")
	}
	if s.TimeValid {
		t.Error("TimeValid = true with no timebase established")
	}
	if s.Values[0] != 2.0 {
		t.Errorf("x = %v, want 2.0", s.Values[0])
	}
	if got := d.Stats().UnbasedSamples; got != 1 {
		t.Errorf("UnbasedSamples = %d, want 1", got)
	}
}

func TestPumpMultipleReportsPerPacket(t *testing.T) {
	gyro := make([]byte, 10)
	gyro[0] = sh2.ReportGyroscope
	cargo := append(timingReport(sh2.ReportBaseTimestamp, 0),
		append(accelReport(0, 0, 0, 1, 2, 3), gyro...)...)
	port := &mockPort{reads: [][]byte{packet(shtp.ChannelInputReport, 0, cargo)}}
	d := New(port, &fakeClock{now: 1_000_000})

	pump(t, d)

	if got := d.Stats().Reports; got != 2 {
		t.Errorf("Reports = %d, want 2", got)
	}
	if _, ok := d.Latest(sh2.ReportGyroscope); !ok {
		t.Error("gyroscope sample missing from the registry")
	}
}

func TestPumpUnknownReportSkipsPacket(t *testing.T) {
	// An unknown report ID has an unknown length, so the rest of the
	// packet cannot be reframed. The stream itself must survive.
	cargo := append(timingReport(sh2.ReportBaseTimestamp, 0),
		0x42, 0xDE, 0xAD, 0xBE, 0xEF)
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelInputReport, 0, cargo),
		packet(shtp.ChannelInputReport, 1,
			append(timingReport(sh2.ReportBaseTimestamp, 0), accelReport(0, 0, 0, 1, 0, 0)...)),
	}}
	d := New(port, &fakeClock{now: 1_000_000})

	pump(t, d)
	if got := d.Stats().UnknownReports; got != 1 {
		t.Errorf("UnknownReports = %d, want 1", got)
	}

	// The next packet decodes normally.
	pump(t, d)
	if _, ok := d.Latest(sh2.ReportAccelerometer); !ok {
		t.Error("accelerometer sample missing after unknown-report recovery")
	}
}

func TestPumpGyroRVFastPath(t *testing.T) {
	cargo := make([]byte, 14)
	binary.LittleEndian.PutUint16(cargo[6:], 16384) // real = 1.0
	port := &mockPort{reads: [][]byte{packet(shtp.ChannelGyroRV, 0, cargo)}}
	d := New(port, &fakeClock{now: 7_000_000})

	pump(t, d)

	s, ok := d.Latest(sh2.ReportGyroIntegratedRV)
	if !ok {
		t.Fatal("no gyro-integrated sample in the registry")
	}
	if s.Ticks != 7_000_000 || !s.TimeValid {
		t.Errorf("Ticks/TimeValid = %d/%v, want the host hint and true", s.Ticks, s.TimeValid)
	}
	if s.HasAccuracy {
		t.Error("HasAccuracy = true on the no-header fast path")
	}
	if s.Values[0] != 1.0 {
		t.Errorf("real = %v, want 1.0", s.Values[0])
	}
}

func TestResetClearsState(t *testing.T) {
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelInputReport, 0,
			append(timingReport(sh2.ReportBaseTimestamp, 0), accelReport(0, 0, 0, 1, 0, 0)...)),
		packet(shtp.ChannelExecutable, 0, []byte{1}),
		packet(shtp.ChannelInputReport, 1, accelReport(1, 0, 0, 1, 0, 0)),
	}}
	d := New(port, &fakeClock{now: 1_000_000})
	if _, err := d.TareNow(sh2.TareAxisAll, sh2.TareBasisRotationVector); err != nil {
		t.Fatalf("TareNow failed: %v", err)
	}

	pump(t, d) // sample
	pump(t, d) // reset notification

	if got := d.Stats().Resets; got != 1 {
		t.Errorf("Resets = %d, want 1", got)
	}
	if _, ok := d.Latest(sh2.ReportAccelerometer); ok {
		t.Error("registry survived a device reset")
	}
	if _, ok := d.Pending(sh2.CommandTare); ok {
		t.Error("pending command survived a device reset")
	}

	// The timebase was also reset, so the next sample is unbased.
	pump(t, d)
	s, ok := d.Latest(sh2.ReportAccelerometer)
	if !ok {
		t.Fatal("sample not decoded after reset")
	}
	if s.TimeValid {
		t.Error("TimeValid = true after reset wiped the timebase")
	}
}

func TestResponseDrainedWithoutWaiter(t *testing.T) {
	// Nobody calls Wait, but the response must still be consumed on the
	// normal dispatch path; otherwise the following packet would be
	// misparsed.
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelControl, 0, commandResponse(sh2.CommandTare, 1, 0)),
		packet(shtp.ChannelInputReport, 0,
			append(timingReport(sh2.ReportBaseTimestamp, 0), accelReport(0, 0, 0, 1, 0, 0)...)),
	}}
	d := New(port, &fakeClock{now: 1_000_000})
	p, err := d.TareNow(sh2.TareAxisAll, sh2.TareBasisRotationVector)
	if err != nil {
		t.Fatalf("TareNow failed: %v", err)
	}

	pump(t, d) // response
	pump(t, d) // sensor data

	if !p.Done {
		t.Error("pending command not completed by the dispatch path")
	}
	if _, ok := d.Pending(sh2.CommandTare); ok {
		t.Error("completed command still in the pending table")
	}
	if _, ok := d.Latest(sh2.ReportAccelerometer); !ok {
		t.Error("packet after the response failed to decode")
	}
	if got := d.Stats().UnmatchedResponses; got != 0 {
		t.Errorf("UnmatchedResponses = %d, want 0", got)
	}
}

func TestUnsolicitedResponseDiscarded(t *testing.T) {
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelControl, 0, commandResponse(sh2.CommandTare, 9, 0)),
	}}
	d := New(port, &fakeClock{})

	pump(t, d)

	if got := d.Stats().UnmatchedResponses; got != 1 {
		t.Errorf("UnmatchedResponses = %d, want 1", got)
	}
}

func TestWaitSuccess(t *testing.T) {
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelControl, 0, commandResponse(sh2.CommandTare, 1, 0)),
	}}
	d := New(port, &fakeClock{})
	p, err := d.TareNow(sh2.TareAxisZ, sh2.TareBasisRotationVector)
	if err != nil {
		t.Fatalf("TareNow failed: %v", err)
	}
	if err := d.Wait(p, time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if p.Status != sh2.StatusSuccess {
		t.Errorf("Status = %d, want success", p.Status)
	}
}

func TestWaitTimeout(t *testing.T) {
	d := New(&mockPort{}, &fakeClock{})
	p, err := d.TareNow(sh2.TareAxisAll, sh2.TareBasisRotationVector)
	if err != nil {
		t.Fatalf("TareNow failed: %v", err)
	}
	err = d.Wait(p, 5*time.Millisecond)
	var terr *CommandTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("Wait error = %v, want *CommandTimeoutError", err)
	}
	// The entry stays pending so the late response is still correlated
	// when it eventually arrives.
	if _, ok := d.Pending(sh2.CommandTare); !ok {
		t.Error("timed-out command missing from the pending table")
	}
}

func TestWaitRejected(t *testing.T) {
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelControl, 0, commandResponse(sh2.CommandSaveDCD, 1, 4)),
	}}
	d := New(port, &fakeClock{})
	err := d.SaveCalibration(time.Second)
	var rerr *CommandRejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("SaveCalibration error = %v, want *CommandRejectedError", err)
	}
	if rerr.Status != 4 {
		t.Errorf("Status = %d, want 4", rerr.Status)
	}
}

func TestWaitNilPending(t *testing.T) {
	d := New(&mockPort{}, &fakeClock{})
	if err := d.Wait(nil, time.Second); err != nil {
		t.Errorf("Wait(nil) = %v, want nil", err)
	}
}

func TestEnableWritesSetFeature(t *testing.T) {
	port := &mockPort{}
	d := New(port, &fakeClock{})
	if err := d.Enable(sh2.ReportRotationVector, 10*time.Millisecond); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	want := packet(shtp.ChannelControl, 0, sh2.EncodeSetFeature(sh2.ReportRotationVector, 10*time.Millisecond))
	if diff := cmp.Diff(want, port.written); diff != "" {
		t.Errorf("written bytes mismatch (-want +got):\n%s", diff)
	}

	entries := d.Features()
	if len(entries) != 1 || !entries[0].Enabled || entries[0].Interval != 10*time.Millisecond {
		t.Errorf("registry entries = %+v, want one enabled at 10ms", entries)
	}
}

func TestEnableRejectsBadArguments(t *testing.T) {
	d := New(&mockPort{}, &fakeClock{})
	if err := d.Enable(0x42, 10*time.Millisecond); err == nil {
		t.Error("Enable accepted an unknown report")
	}
	if err := d.Enable(sh2.ReportAccelerometer, 0); err == nil {
		t.Error("Enable accepted a zero interval")
	}
}

func TestFeatureResponseUpdatesRegistry(t *testing.T) {
	// The device answers a feature query with its actual configuration,
	// which overrides the optimistic local state.
	cargo := sh2.EncodeSetFeature(sh2.ReportGyroscope, 0)
	cargo[0] = sh2.FeatureResponseID
	port := &mockPort{reads: [][]byte{packet(shtp.ChannelControl, 0, cargo)}}
	d := New(port, &fakeClock{})
	if err := d.Enable(sh2.ReportGyroscope, 5*time.Millisecond); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	pump(t, d)

	entries := d.Features()
	if len(entries) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(entries))
	}
	if entries[0].Enabled {
		t.Error("Enabled = true after the device reported a zero interval")
	}
}

func TestPumpRecoversProtocolError(t *testing.T) {
	// Malformed header: announced length below the header size. Pump
	// drops it and keeps the loop alive.
	bad := make([]byte, 4)
	binary.LittleEndian.PutUint16(bad, 2)
	port := &mockPort{reads: [][]byte{bad}}
	d := New(port, &fakeClock{})

	if err := d.Pump(); err != nil {
		t.Fatalf("Pump surfaced a recovered protocol error: %v", err)
	}
	if got := d.Stats().ProtocolErrors; got != 1 {
		t.Errorf("ProtocolErrors = %d, want 1", got)
	}
}

func TestPumpNoData(t *testing.T) {
	d := New(&mockPort{}, &fakeClock{})
	if err := d.Pump(); !errors.Is(err, shtp.ErrNoData) {
		t.Fatalf("Pump error = %v, want shtp.ErrNoData", err)
	}
}

func TestMagnetometerReady(t *testing.T) {
	mag := func(status uint8) []byte {
		raw := make([]byte, 10)
		raw[0] = sh2.ReportMagnetometer
		raw[2] = status
		return raw
	}
	port := &mockPort{reads: [][]byte{
		packet(shtp.ChannelInputReport, 0,
			append(timingReport(sh2.ReportBaseTimestamp, 0), mag(0x01)...)),
		packet(shtp.ChannelInputReport, 1,
			append(timingReport(sh2.ReportBaseTimestamp, 0), mag(0x02)...)),
	}}
	d := New(port, &fakeClock{})

	if d.MagnetometerReady() {
		t.Error("ready with no magnetometer sample at all")
	}
	pump(t, d)
	if d.MagnetometerReady() {
		t.Error("ready at accuracy 1")
	}
	pump(t, d)
	if !d.MagnetometerReady() {
		t.Error("not ready at accuracy 2")
	}
}
