// Package bno08x drives a BNO08x sensor hub over an SHTP byte transport:
// channel dispatch, timestamp reconstruction, the command/response
// protocol used for calibration and tare, and a latest-value-wins
// feature registry.
//
// Concurrency model: a Driver is single threaded and cooperative. One
// data pump operation is invoked repeatedly by the owner; command waits
// drive the pump themselves rather than blocking on the transport.
// Nothing inside the package locks — an owner sharing a Driver across
// goroutines must serialize access itself.
package bno08x
