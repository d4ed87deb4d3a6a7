package sh2

// SH-2 input report IDs. These identify the first byte of each report
// within channel 3/4 cargo. The gyro-integrated rotation vector never
// carries an ID on the wire (channel 5 cargo has no header at all); its
// entry here is the key the rest of the driver files it under.
const (
	ReportAccelerometer      = 0x01
	ReportGyroscope          = 0x02
	ReportMagnetometer       = 0x03
	ReportLinearAcceleration = 0x04
	ReportRotationVector     = 0x05
	ReportGravity            = 0x06
	ReportGameRotationVector = 0x08
	ReportGeomagneticRV      = 0x09
	ReportGyroIntegratedRV   = 0x2A

	// Timing reports. 0xFB establishes the batch's timebase delta, 0xFA
	// shifts it when per-report delay no longer fits its 14 bits.
	ReportTimestampRebase = 0xFA
	ReportBaseTimestamp   = 0xFB
)

// SH-2 control channel report IDs.
const (
	CommandResponseID   = 0xF1
	CommandRequestID    = 0xF2
	FeatureResponseID   = 0xFC
	SetFeatureCommandID = 0xFD
	GetFeatureRequestID = 0xFE
)

// Field describes one scaled value within a report. Offset is the byte
// offset within the full report (header included for channel 3/4
// reports). The decoded value is raw * 2^-Q.
type Field struct {
	Name   string
	Offset int
	Width  int
	Signed bool
	Q      uint8
}

// Layout is the immutable decode recipe for one report type. Fields are
// listed in storage order, which for quaternion reports differs from wire
// order: the wire carries (i, j, k, real) but samples store
// (real, i, j, k). Each field's Offset points at its wire position, so
// the reorder falls out of the table.
type Layout struct {
	Name     string
	Length   int
	NoHeader bool // channel-5 fast path: no ID/sequence/status/delay bytes
	Fields   []Field
}

// vec3 builds the field list for the common three-axis report shape:
// x, y, z as signed 16-bit values after the report header, sharing one Q.
func vec3(q uint8) []Field {
	return []Field{
		{Name: "x", Offset: 4, Width: 2, Signed: true, Q: q},
		{Name: "y", Offset: 6, Width: 2, Signed: true, Q: q},
		{Name: "z", Offset: 8, Width: 2, Signed: true, Q: q},
	}
}

// quat builds the reordered quaternion field list. Wire order is
// (i, j, k, real) starting at the given offset; storage order is
// (real, i, j, k).
func quat(offset int, q uint8) []Field {
	return []Field{
		{Name: "real", Offset: offset + 6, Width: 2, Signed: true, Q: q},
		{Name: "i", Offset: offset, Width: 2, Signed: true, Q: q},
		{Name: "j", Offset: offset + 2, Width: 2, Signed: true, Q: q},
		{Name: "k", Offset: offset + 4, Width: 2, Signed: true, Q: q},
	}
}

// Layouts maps report ID to its decode recipe. Constructed once,
// read-only, shared by every decode call. Q points follow the SH-2
// reference manual: accel Q8 (m/s²), gyro Q9 (rad/s), mag Q4 (µT),
// rotation vectors Q14 or Q12 with a Q12 radian accuracy estimate.
var Layouts = map[uint8]Layout{
	ReportAccelerometer: {
		Name: "accelerometer", Length: 10, Fields: vec3(8),
	},
	ReportGyroscope: {
		Name: "gyroscope", Length: 10, Fields: vec3(9),
	},
	ReportMagnetometer: {
		Name: "magnetometer", Length: 10, Fields: vec3(4),
	},
	ReportLinearAcceleration: {
		Name: "linear_acceleration", Length: 10, Fields: vec3(8),
	},
	ReportGravity: {
		Name: "gravity", Length: 10, Fields: vec3(8),
	},
	ReportRotationVector: {
		Name: "rotation_vector", Length: 14,
		Fields: append(quat(4, 14),
			Field{Name: "accuracy_rad", Offset: 12, Width: 2, Signed: true, Q: 12}),
	},
	ReportGameRotationVector: {
		Name: "game_rotation_vector", Length: 12, Fields: quat(4, 14),
	},
	ReportGeomagneticRV: {
		Name: "geomagnetic_rotation_vector", Length: 14,
		Fields: append(quat(4, 12),
			Field{Name: "accuracy_rad", Offset: 12, Width: 2, Signed: true, Q: 12}),
	},
	ReportGyroIntegratedRV: {
		Name: "gyro_integrated_rotation_vector", Length: 14, NoHeader: true,
		Fields: []Field{
			{Name: "real", Offset: 6, Width: 2, Signed: true, Q: 14},
			{Name: "i", Offset: 0, Width: 2, Signed: true, Q: 14},
			{Name: "j", Offset: 2, Width: 2, Signed: true, Q: 14},
			{Name: "k", Offset: 4, Width: 2, Signed: true, Q: 14},
			{Name: "angvel_x", Offset: 8, Width: 2, Signed: true, Q: 10},
			{Name: "angvel_y", Offset: 10, Width: 2, Signed: true, Q: 10},
			{Name: "angvel_z", Offset: 12, Width: 2, Signed: true, Q: 10},
		},
	},
}

// ReportByName resolves a layout name (as used in CLI flags and the API)
// back to its report ID.
func ReportByName(name string) (uint8, bool) {
	for id, layout := range Layouts {
		if layout.Name == name {
			return id, true
		}
	}
	return 0, false
}

// ReportName returns the layout name for an ID, or a hex placeholder for
// report types the table does not know.
func ReportName(id uint8) string {
	if layout, ok := Layouts[id]; ok {
		return layout.Name
	}
	return "unknown_0x" + hexByte(id)
}

func hexByte(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
