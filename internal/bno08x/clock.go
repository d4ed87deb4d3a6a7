package bno08x

import (
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
)

// Clock supplies host capture times as a monotonic 32-bit microsecond
// counter. The counter wraps; differences must be taken with
// sh2.TickDiff, never naive subtraction.
type Clock interface {
	Now() sh2.Ticks
}

type systemClock struct {
	origin time.Time
}

func (c systemClock) Now() sh2.Ticks {
	return sh2.Ticks(time.Since(c.origin).Microseconds())
}

// SystemClock returns a Clock backed by the runtime's monotonic reading,
// truncated to the 32-bit tick counter the protocol arithmetic expects.
func SystemClock() Clock {
	return systemClock{origin: time.Now()}
}
