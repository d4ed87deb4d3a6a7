package bno08x

import (
	"fmt"
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

// FeatureEntry tracks one report type: the latest decoded sample, the
// locally requested enable state, and the configured interval. Entries
// are overwritten in place; no history is retained.
type FeatureEntry struct {
	Report   uint8
	Name     string
	Enabled  bool
	Interval time.Duration
	Last     *Sample
}

func (d *Driver) feature(report uint8) *FeatureEntry {
	e, ok := d.features[report]
	if !ok {
		e = &FeatureEntry{Report: report, Name: sh2.ReportName(report)}
		d.features[report] = e
	}
	return e
}

// Enable issues a Set Feature Command asking for the report at the given
// interval. The protocol does not mandate an acknowledgment for this
// command, so the local enabled flag is updated optimistically on send;
// a later Get Feature Response corrects it if the device disagreed.
func (d *Driver) Enable(report uint8, interval time.Duration) error {
	if _, ok := sh2.Layouts[report]; !ok {
		return fmt.Errorf("bno08x: cannot enable unknown report 0x%02x", report)
	}
	if interval <= 0 {
		return fmt.Errorf("bno08x: enable requires a positive interval, got %v", interval)
	}
	if err := d.framer.WritePacket(shtp.ChannelControl, sh2.EncodeSetFeature(report, interval)); err != nil {
		return err
	}
	e := d.feature(report)
	e.Enabled = true
	e.Interval = interval
	return nil
}

// Disable issues a Set Feature Command with a zero interval, turning the
// report off.
func (d *Driver) Disable(report uint8) error {
	if err := d.framer.WritePacket(shtp.ChannelControl, sh2.EncodeSetFeature(report, 0)); err != nil {
		return err
	}
	e := d.feature(report)
	e.Enabled = false
	e.Interval = 0
	return nil
}

// QueryFeature sends a Get Feature Request; the device's answer arrives
// on the control channel during a later pump and updates the registry.
func (d *Driver) QueryFeature(report uint8) error {
	return d.framer.WritePacket(shtp.ChannelControl, sh2.EncodeGetFeature(report))
}

// Latest returns the most recent sample for a report type. Never blocks;
// ok is false when nothing has been decoded yet.
func (d *Driver) Latest(report uint8) (Sample, bool) {
	e, present := d.features[report]
	if !present || e.Last == nil {
		return Sample{}, false
	}
	return *e.Last, true
}

// Features returns a snapshot of the registry, one entry per report type
// seen or configured.
func (d *Driver) Features() []FeatureEntry {
	out := make([]FeatureEntry, 0, len(d.features))
	for _, e := range d.features {
		out = append(out, *e)
	}
	return out
}
