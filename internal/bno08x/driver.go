package bno08x

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

// Sample is a decoded report with its reconstructed capture time. Ticks
// is on the driver clock's 32-bit counter; Time is the wall-clock
// rendering of the same instant. TimeValid is false for channel 3/4
// reports that arrived before any 0xFB established a timebase — the
// values are usable, the timestamp is not.
type Sample struct {
	sh2.Sample
	Ticks     sh2.Ticks
	Time      time.Time
	TimeValid bool
}

// Driver owns one sensor: the transport framer, the timebase, the
// feature registry, and the pending-command table. Exactly one owner
// must drive it; see the package comment for the concurrency model.
type Driver struct {
	framer   *shtp.Framer
	clock    Clock
	timebase sh2.Timebase
	features map[uint8]*FeatureEntry
	pending  map[uint8]*PendingCommand
	cmdSeq   uint8
	stats    Stats

	// Host capture hint for the batch currently being dispatched,
	// captured once per pump cycle when the transport signalled data.
	hint     sh2.Ticks
	hintWall time.Time

	// onSample, if set, observes every decoded sample after the registry
	// is updated. Used by the capture service to record to sqlite.
	onSample func(Sample)
}

// New builds a Driver over a transport. A nil clock selects SystemClock.
func New(port shtp.Porter, clock Clock) *Driver {
	if clock == nil {
		clock = SystemClock()
	}
	return &Driver{
		framer:   shtp.NewFramer(port, 0),
		clock:    clock,
		features: make(map[uint8]*FeatureEntry),
		pending:  make(map[uint8]*PendingCommand),
	}
}

// OnSample registers a sink observing every decoded sample. Pass nil to
// remove it.
func (d *Driver) OnSample(fn func(Sample)) { d.onSample = fn }

// Stats returns a copy of the driver's counters.
func (d *Driver) Stats() Stats { return d.stats }

// Pump performs one read-assemble-dispatch cycle: at most one packet is
// consumed from the transport. Returns shtp.ErrNoData when the transport
// had nothing, recovers unknown-report conditions locally, and surfaces
// transport faults to the caller — after one of those the stream is
// desynchronized and the caller should reset the device.
func (d *Driver) Pump() error {
	hint := d.clock.Now()
	hintWall := time.Now()

	pkt, err := d.framer.ReadPacket()
	if err != nil {
		var perr *shtp.ProtocolError
		if errors.As(err, &perr) {
			// Framer already resynchronized; warn and carry on.
			d.stats.ProtocolErrors++
			log.Printf("dropping malformed packet: %v", perr)
			return nil
		}
		return err
	}

	d.hint = hint
	d.hintWall = hintWall
	d.stats.Packets++
	d.dispatch(pkt)
	return nil
}

// Run pumps until the context is cancelled. Transport faults abort the
// loop; everything else is already recovered inside Pump.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.Pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
			return err
		}
	}
}

// dispatch routes one packet by channel. Unknown channels are dropped,
// non-fatally.
func (d *Driver) dispatch(pkt *shtp.Packet) {
	switch pkt.Channel {
	case shtp.ChannelCommand:
		// SHTP advertisement; nothing to do with it.
	case shtp.ChannelExecutable:
		d.handleExecutable(pkt)
	case shtp.ChannelControl:
		d.handleControl(pkt)
	case shtp.ChannelInputReport, shtp.ChannelWakeReport:
		d.handleInputReports(pkt)
	case shtp.ChannelGyroRV:
		d.handleGyroRV(pkt)
	default:
		d.stats.DroppedPackets++
	}
}

// handleExecutable processes channel 1. A reset-complete notification
// wipes all decoder state: no stale timebase or feature data survives a
// device reset.
func (d *Driver) handleExecutable(pkt *shtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	if pkt.Payload[0] == 1 {
		log.Printf("sensor reset detected; clearing driver state")
		d.stats.Resets++
		d.timebase.Reset()
		d.features = make(map[uint8]*FeatureEntry)
		d.pending = make(map[uint8]*PendingCommand)
	}
}

// handleControl processes channel 2: command responses go to the
// pending-command table, feature responses update the registry, anything
// else is decoded as a control report (e.g. a calibration status push).
func (d *Driver) handleControl(pkt *shtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	switch pkt.Payload[0] {
	case sh2.CommandResponseID:
		d.handleCommandResponse(pkt.Payload)
	case sh2.FeatureResponseID:
		state, err := sh2.DecodeFeatureResponse(pkt.Payload)
		if err != nil {
			d.stats.ShortReports++
			return
		}
		e := d.feature(state.Report)
		e.Interval = state.Interval
		e.Enabled = state.Interval > 0
	default:
		d.decodeReport(pkt.Payload[0], pkt.Payload)
	}
}

// handleInputReports walks the back-to-back reports in channel 3/4
// cargo. Timing reports (0xFB/0xFA) mutate the timebase and, by
// protocol, precede the reports they time.
func (d *Driver) handleInputReports(pkt *shtp.Packet) {
	buf := pkt.Payload
	for len(buf) > 0 {
		switch id := buf[0]; id {
		case sh2.ReportBaseTimestamp, sh2.ReportTimestampRebase:
			delta, err := sh2.TimebaseDelta(buf)
			if err != nil {
				d.stats.ShortReports++
				return
			}
			if id == sh2.ReportBaseTimestamp {
				d.timebase.Set(delta)
			} else {
				d.timebase.Shift(delta)
			}
			buf = buf[5:]
		default:
			n := d.decodeReport(id, buf)
			if n == 0 {
				// Unknown length, cannot find the next boundary: skip the
				// remainder of the packet, keep the stream alive.
				return
			}
			buf = buf[n:]
		}
	}
}

// handleGyroRV processes the channel-5 fast path: cargo is exactly one
// fixed-length report with no header fields. No sensor-side timing
// metadata exists here, so the host hint is the best available
// timestamp.
func (d *Driver) handleGyroRV(pkt *shtp.Packet) {
	s, err := sh2.Decode(sh2.ReportGyroIntegratedRV, pkt.Payload)
	if err != nil {
		d.stats.ShortReports++
		return
	}
	d.record(Sample{
		Sample:    s,
		Ticks:     d.hint,
		Time:      d.hintWall,
		TimeValid: true,
	})
}

// decodeReport decodes one report, reconstructs its timestamp, and folds
// it into the registry. Returns the number of bytes consumed, or zero
// when the report type is unknown (recovered locally per the
// forward-compatibility rule).
func (d *Driver) decodeReport(id uint8, buf []byte) int {
	s, err := sh2.Decode(id, buf)
	if err != nil {
		var unknown *sh2.UnknownReportError
		if errors.As(err, &unknown) {
			d.stats.UnknownReports++
			return 0
		}
		d.stats.ShortReports++
		return 0
	}

	smp := Sample{Sample: s}
	if ticks, ok := d.timebase.Timestamp(d.hint, s.DelayTicks); ok {
		smp.Ticks = ticks
		smp.Time = d.wallTime(ticks)
		smp.TimeValid = true
	} else {
		// Report arrived before any 0xFB since reset. Decodable, but the
		// timestamp is undefined; flag it loudly rather than fake a zero.
		d.stats.UnbasedSamples++
		if d.stats.UnbasedSamples == 1 {
			log.Printf("report %s arrived with no timebase established; timestamps flagged invalid", s.Name)
		}
	}
	d.record(smp)
	return sh2.Layouts[id].Length
}

// record folds a sample into the feature registry, latest-value-wins,
// and feeds the optional sink.
func (d *Driver) record(smp Sample) {
	d.stats.Reports++
	e := d.feature(smp.Report)
	e.Last = &smp
	if d.onSample != nil {
		d.onSample(smp)
	}
}

// wallTime renders a tick timestamp as wall-clock time using the current
// batch's (hint, wall) pairing. Wraparound safe via TickDiff.
func (d *Driver) wallTime(t sh2.Ticks) time.Time {
	return d.hintWall.Add(time.Duration(sh2.TickDiff(t, d.hint)) * time.Microsecond)
}
