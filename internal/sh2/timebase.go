package sh2

// Ticks is a host capture time expressed on a monotonic 32-bit
// microsecond counter. The counter wraps roughly every 71.6 minutes;
// all arithmetic on it must go through TickDiff or unsigned addition so
// a rollover between two readings never manifests as a spurious jump.
type Ticks uint32

// TickDiff returns the signed elapsed time a−b in microseconds, modulo
// the counter width. Correct across wraparound as long as the true
// difference is under half the counter range (~35 minutes).
func TickDiff(a, b Ticks) int32 {
	return int32(a - b)
}

// Add offsets a tick reading by a signed number of microseconds.
func (t Ticks) Add(us int32) Ticks {
	return t + Ticks(us)
}

// Timebase reconstructs absolute sample timestamps from the 0xFB/0xFA
// timing reports and a per-batch host capture hint:
//
//	base   = hint − delta
//	sample = base + reportDelay
//
// Two states: no-base (initial, and after a device reset) and based
// (after the first 0xFB of the session). In no-base state a sample is
// decodable but its timestamp is undefined and must be flagged, never
// silently zeroed.
type Timebase struct {
	deltaMicros int32
	based       bool
}

// Set handles a Base Timestamp Reference (0xFB): the delta replaces the
// current base.
func (tb *Timebase) Set(deltaTicks int32) {
	tb.deltaMicros = deltaTicks * DelayTickMicros
	tb.based = true
}

// Shift handles a Timestamp Rebase (0xFA): the delta accumulates onto
// the current base point, moving it forward (base = hint − delta, so
// the stored delta shrinks). A rebase before any 0xFB leaves the
// timebase unestablished; there is no base to shift.
func (tb *Timebase) Shift(deltaTicks int32) {
	if !tb.based {
		return
	}
	tb.deltaMicros -= deltaTicks * DelayTickMicros
}

// Reset returns to the no-base state. Called on device reset.
func (tb *Timebase) Reset() {
	*tb = Timebase{}
}

// Based reports whether a 0xFB has been seen since the last reset.
func (tb *Timebase) Based() bool { return tb.based }

// Timestamp reconstructs the absolute capture time of a report given the
// host hint for its batch and the report's 14-bit delay. ok is false in
// no-base state.
func (tb *Timebase) Timestamp(hint Ticks, delayTicks uint16) (t Ticks, ok bool) {
	if !tb.based {
		return 0, false
	}
	t = hint.Add(-tb.deltaMicros).Add(int32(delayTicks) * DelayTickMicros)
	return t, true
}
