package bno08x

// Stats counts what the driver has seen since construction.
type Stats struct {
	Packets            uint64 // complete packets dispatched
	Reports            uint64 // reports folded into the registry
	DroppedPackets     uint64 // unknown channel, dropped whole
	ProtocolErrors     uint64 // malformed headers recovered by resync
	UnknownReports     uint64 // report IDs absent from the layout table
	ShortReports       uint64 // cargo shorter than its declared length
	UnbasedSamples     uint64 // reports timestamped before any 0xFB
	UnmatchedResponses uint64 // responses drained with no pending command
	Resets             uint64 // device reset notifications
}
