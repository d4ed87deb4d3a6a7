// Package sh2 decodes SH-2 sensor reports carried in SHTP cargo and
// encodes the control-channel commands that configure them.
//
// Decoding is table driven: a static layout per report ID describes the
// fixed cargo length and the offset, width, signedness and fixed-point
// Q of every field. The decoder is pure; all mutable timing state lives
// in Timebase.
package sh2
