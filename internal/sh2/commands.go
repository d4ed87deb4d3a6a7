package sh2

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SH-2 command identifiers (channel 2, Command Request 0xF2).
const (
	CommandTare          = 0x03
	CommandSaveDCD       = 0x06
	CommandMECalibration = 0x07
)

// Tare subcommands (P0 of a tare command request).
const (
	TareNow              = 0x00
	TarePersist          = 0x01
	TareSetReorientation = 0x02
)

// Tare axis masks for TareNow.
const (
	TareAxisZ   = 0x04 // heading only
	TareAxisAll = 0x07 // Z+Y+X: zeroes tilt and heading
)

// Rotation vector basis selectors for TareNow.
const (
	TareBasisRotationVector     = 0
	TareBasisGameRotationVector = 1
	TareBasisGeomagneticRV      = 2
)

// ME calibration subcommands (P3 of an ME calibration request).
const (
	MECalConfigure = 0x00
	MECalGet       = 0x01
)

// StatusSuccess is the response status indicating the command was
// accepted. Any other value is a rejection.
const StatusSuccess = 0

// HasResponse reports whether the protocol classifies the command as
// "command and response". Every such command's reply must be drained by
// the normal receive path whether or not a caller waits on it; an
// unconsumed response corrupts the next transport read.
func HasResponse(command uint8) bool {
	switch command {
	case CommandTare, CommandSaveDCD, CommandMECalibration:
		return true
	}
	return false
}

// CommandName returns a human-readable label for logs and the command
// audit table.
func CommandName(command uint8) string {
	switch command {
	case CommandTare:
		return "tare"
	case CommandSaveDCD:
		return "save_dcd"
	case CommandMECalibration:
		return "me_calibration"
	}
	return fmt.Sprintf("command_0x%02x", command)
}

const (
	commandRequestLen  = 12
	commandResponseLen = 16
	setFeatureLen      = 17
	featureResponseLen = 17
)

// EncodeCommand builds a 12-byte Command Request cargo: report ID,
// sequence, command, up to nine parameter bytes.
func EncodeCommand(seq, command uint8, params []byte) ([]byte, error) {
	if len(params) > commandRequestLen-3 {
		return nil, fmt.Errorf("sh2: command 0x%02x has %d parameter bytes, max %d",
			command, len(params), commandRequestLen-3)
	}
	buf := make([]byte, commandRequestLen)
	buf[0] = CommandRequestID
	buf[1] = seq
	buf[2] = command
	copy(buf[3:], params)
	return buf, nil
}

// TareNowParams builds the parameters for an immediate tare of the given
// axes relative to the given rotation vector basis.
func TareNowParams(axes, basis uint8) []byte {
	return []byte{TareNow, axes, basis}
}

// TarePersistParams builds the parameters that write the current tare to
// sensor flash so it survives power cycles.
func TarePersistParams() []byte {
	return []byte{TarePersist}
}

// ReorientationParams builds a set-reorientation tare command. The
// quaternion is encoded as four signed Q14 little-endian values in wire
// order (x, y, z, w). All zeroes clears the tare.
func ReorientationParams(x, y, z, w float64) []byte {
	p := make([]byte, 9)
	p[0] = TareSetReorientation
	for i, v := range []float64{x, y, z, w} {
		binary.LittleEndian.PutUint16(p[1+2*i:], uint16(int16(math.Round(math.Ldexp(v, 14)))))
	}
	return p
}

// MECalibrationParams builds the configure-calibration parameters
// enabling or disabling dynamic calibration per constituent sensor.
func MECalibrationParams(accel, gyro, mag bool) []byte {
	p := make([]byte, 4)
	if accel {
		p[0] = 1
	}
	if gyro {
		p[1] = 1
	}
	if mag {
		p[2] = 1
	}
	p[3] = MECalConfigure
	return p
}

// MECalibrationGetParams builds the query form of the calibration
// command; the response reports which sensors are being calibrated.
func MECalibrationGetParams() []byte {
	return []byte{0, 0, 0, MECalGet}
}

// CommandResponse is a decoded 0xF1 report. CommandSeq echoes the
// sequence number of the request being answered; Results holds R0..R10
// with the status conventionally in R0.
type CommandResponse struct {
	Seq        uint8
	Command    uint8
	CommandSeq uint8
	Status     uint8
	Results    []byte
}

// DecodeCommandResponse parses a 16-byte Command Response cargo.
func DecodeCommandResponse(raw []byte) (CommandResponse, error) {
	if len(raw) < commandResponseLen {
		return CommandResponse{}, &ShortReportError{ID: CommandResponseID, Got: len(raw), Want: commandResponseLen}
	}
	return CommandResponse{
		Seq:        raw[1],
		Command:    raw[2],
		CommandSeq: raw[3],
		Status:     raw[5],
		Results:    append([]byte(nil), raw[5:commandResponseLen]...),
	}, nil
}

// EncodeSetFeature builds the 17-byte Set Feature Command cargo that
// enables a report at the given interval. A zero interval disables the
// report. Batch interval and sensor-specific configuration are left
// zero.
func EncodeSetFeature(report uint8, interval time.Duration) []byte {
	buf := make([]byte, setFeatureLen)
	buf[0] = SetFeatureCommandID
	buf[1] = report
	binary.LittleEndian.PutUint32(buf[5:9], uint32(interval.Microseconds()))
	return buf
}

// EncodeGetFeature builds a Get Feature Request for one report type.
func EncodeGetFeature(report uint8) []byte {
	return []byte{GetFeatureRequestID, report}
}

// FeatureState is a decoded 0xFC Get Feature Response: the device's
// actual configuration for one report type.
type FeatureState struct {
	Report   uint8
	Interval time.Duration
}

// DecodeFeatureResponse parses a Get Feature Response cargo.
func DecodeFeatureResponse(raw []byte) (FeatureState, error) {
	if len(raw) < featureResponseLen {
		return FeatureState{}, &ShortReportError{ID: FeatureResponseID, Got: len(raw), Want: featureResponseLen}
	}
	interval := binary.LittleEndian.Uint32(raw[5:9])
	return FeatureState{
		Report:   raw[1],
		Interval: time.Duration(interval) * time.Microsecond,
	}, nil
}
