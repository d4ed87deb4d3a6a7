package bno08x

import (
	"fmt"
	"time"

	"github.com/banshee-data/imu.report/internal/sh2"
)

// CommandTimeoutError reports a command wait that exceeded its deadline
// with no matching response. The command is not retracted; its response,
// if it arrives later, is still drained by the pump and discarded as
// unmatched.
type CommandTimeoutError struct {
	Command uint8
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("bno08x: %s: no response within %v", sh2.CommandName(e.Command), e.Timeout)
}

// CommandRejectedError reports a response whose status signals failure,
// e.g. a DCD save attempted before the constituent sensors are
// calibrated.
type CommandRejectedError struct {
	Command uint8
	Status  uint8
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("bno08x: %s rejected by sensor (status %d)", sh2.CommandName(e.Command), e.Status)
}
