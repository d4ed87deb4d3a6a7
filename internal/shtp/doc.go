// Package shtp implements the Sensor Hub Transport Protocol used by
// BNO08x-family IMUs: 4-byte packet headers, six logical channels, and
// cargo continuation across bounded transport transfers.
//
// Responsibilities: byte-level packet framing and reassembly only. The
// package has no knowledge of report semantics; decoded cargo is handed
// upward to the sh2 package.
package shtp
