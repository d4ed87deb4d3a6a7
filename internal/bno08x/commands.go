package bno08x

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

// PendingCommand correlates a command request with its eventual
// response. Completed exactly once when the matching response is
// decoded; a timed-out command stays pending and inspectable until the
// late response is drained and discarded.
type PendingCommand struct {
	Command  uint8
	Seq      uint8
	Issued   time.Time
	Done     bool
	Finished time.Time
	Status   uint8
	Response sh2.CommandResponse
}

// sendCommand writes a command request on the control channel. Commands
// the protocol classifies as "command and response" get a pending entry
// so their reply is always correlated — whether or not anyone waits.
func (d *Driver) sendCommand(command uint8, params []byte) (*PendingCommand, error) {
	d.cmdSeq++
	cargo, err := sh2.EncodeCommand(d.cmdSeq, command, params)
	if err != nil {
		return nil, err
	}
	if err := d.framer.WritePacket(shtp.ChannelControl, cargo); err != nil {
		return nil, err
	}
	if !sh2.HasResponse(command) {
		return nil, nil
	}
	p := &PendingCommand{Command: command, Seq: d.cmdSeq, Issued: time.Now()}
	d.pending[command] = p
	return p, nil
}

// handleCommandResponse consumes a 0xF1 report from the control channel.
// This runs on the normal dispatch path, so responses are drained from
// the transport even when no caller is waiting — an unconsumed response
// would otherwise be misparsed as a fresh report and desynchronize the
// stream.
func (d *Driver) handleCommandResponse(payload []byte) {
	resp, err := sh2.DecodeCommandResponse(payload)
	if err != nil {
		d.stats.ShortReports++
		return
	}
	p, ok := d.pending[resp.Command]
	if !ok {
		// Late (post-timeout) or unsolicited. Already drained; discard.
		d.stats.UnmatchedResponses++
		return
	}
	p.Done = true
	p.Finished = time.Now()
	p.Status = resp.Status
	p.Response = resp
	delete(d.pending, resp.Command)
}

// Wait blocks until the pending command completes or the timeout
// expires, driving the data pump so the response can actually be
// observed. Unrelated traffic decoded while waiting is dispatched as
// usual. A nil pending (fire-and-forget command) returns immediately.
func (d *Driver) Wait(p *PendingCommand, timeout time.Duration) error {
	if p == nil {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for !p.Done {
		if time.Now().After(deadline) {
			return &CommandTimeoutError{Command: p.Command, Timeout: timeout}
		}
		if err := d.Pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
			return err
		}
	}
	if p.Status != sh2.StatusSuccess {
		return &CommandRejectedError{Command: p.Command, Status: p.Status}
	}
	return nil
}

// TareNow captures the current orientation as the new reference frame
// for the given axes, relative to the given rotation vector basis. The
// sensor must have resolved magnetic North first; see MagnetometerReady.
func (d *Driver) TareNow(axes, basis uint8) (*PendingCommand, error) {
	return d.sendCommand(sh2.CommandTare, sh2.TareNowParams(axes, basis))
}

// PersistTare writes the current tare to sensor flash so it survives
// power cycles.
func (d *Driver) PersistTare() (*PendingCommand, error) {
	return d.sendCommand(sh2.CommandTare, sh2.TarePersistParams())
}

// SetReorientation installs an explicit reorientation quaternion
// (wire order x, y, z, w).
func (d *Driver) SetReorientation(x, y, z, w float64) (*PendingCommand, error) {
	return d.sendCommand(sh2.CommandTare, sh2.ReorientationParams(x, y, z, w))
}

// ClearTare removes any applied tare by setting an all-zero
// reorientation, per the tare usage guide.
func (d *Driver) ClearTare() (*PendingCommand, error) {
	return d.SetReorientation(0, 0, 0, 0)
}

// BeginCalibration enables the motion-engine dynamic calibration for the
// selected constituent sensors.
func (d *Driver) BeginCalibration(accel, gyro, mag bool) (*PendingCommand, error) {
	return d.sendCommand(sh2.CommandMECalibration, sh2.MECalibrationParams(accel, gyro, mag))
}

// CalibrationState reports which constituent sensors have dynamic
// calibration enabled, per the sensor's own answer.
type CalibrationState struct {
	Accel bool
	Gyro  bool
	Mag   bool
}

// CalibrationStatus queries the motion engine and waits for its answer.
func (d *Driver) CalibrationStatus(timeout time.Duration) (CalibrationState, error) {
	p, err := d.sendCommand(sh2.CommandMECalibration, sh2.MECalibrationGetParams())
	if err != nil {
		return CalibrationState{}, err
	}
	if err := d.Wait(p, timeout); err != nil {
		return CalibrationState{}, err
	}
	r := p.Response.Results
	if len(r) < 4 {
		return CalibrationState{}, fmt.Errorf("bno08x: calibration response too short: %d result bytes", len(r))
	}
	return CalibrationState{Accel: r[1] == 1, Gyro: r[2] == 1, Mag: r[3] == 1}, nil
}

// SaveCalibration asks the sensor to persist its dynamic calibration
// data (DCD) to flash and waits for the verdict. A rejection — typically
// a constituent sensor not yet calibrated to sufficient accuracy —
// surfaces as a *CommandRejectedError.
func (d *Driver) SaveCalibration(timeout time.Duration) error {
	p, err := d.sendCommand(sh2.CommandSaveDCD, nil)
	if err != nil {
		return err
	}
	return d.Wait(p, timeout)
}

// MagnetometerReady reports whether the magnetometer has resolved
// magnetic North well enough to tare against: accuracy at medium (2) or
// better on the latest magnetometer sample. The tare usage guide warns
// that taring before this point bakes a broken heading into the
// reference frame.
func (d *Driver) MagnetometerReady() bool {
	s, ok := d.Latest(sh2.ReportMagnetometer)
	return ok && s.HasAccuracy && s.Accuracy >= 2
}

// Pending returns the still-unanswered command entry for diagnostic
// inspection, if any.
func (d *Driver) Pending(command uint8) (*PendingCommand, bool) {
	p, ok := d.pending[command]
	return p, ok
}
