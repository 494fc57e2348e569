package sdm220_modbus

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMeasurement = errors.New("unknown measurement")
	ErrNotImplemented     = errors.New("reader operation not implemented")
)

// DeviceCommunicationError reports a failed register read for a single
// measurement. The transport error is kept for errors.Is checks.
type DeviceCommunicationError struct {
	Name    string
	Address uint16
	Err     error
}

func (e *DeviceCommunicationError) Error() string {
	return fmt.Sprintf("sdm220: reading %q at 0x%04X: %v", e.Name, e.Address, e.Err)
}

func (e *DeviceCommunicationError) Unwrap() error {
	return e.Err
}
