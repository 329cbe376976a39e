package serial

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrDeviceUnavailable     = errors.New("serial device unavailable")
	ErrInvalidConfig         = errors.New("invalid serial configuration")
	ErrNotificationArmFailed = errors.New("failed to arm readability notification")
	ErrOpenFailed            = errors.New("failed to open serial device")
	ErrPortNotOpen           = errors.New("serial port is not open")
	ErrPortOpen              = errors.New("serial port is already open")
	ErrWriteError            = errors.New("error writing data")
	ErrNoDataAvailable       = errors.New("no data available")
	ErrInvalidHex            = errors.New("invalid hex data")
	ErrDeviceLost            = errors.New("serial device stopped receiving")

	// Configuration errors, each one also matches ErrInvalidConfig
	ErrInvalidBaudRate = fmt.Errorf("%w: baud rate", ErrInvalidConfig)
	ErrInvalidParity   = fmt.Errorf("%w: parity", ErrInvalidConfig)
	ErrInvalidDataBits = fmt.Errorf("%w: data bits", ErrInvalidConfig)
	ErrInvalidStopBits = fmt.Errorf("%w: stop bits", ErrInvalidConfig)
	ErrInvalidReadWait = fmt.Errorf("%w: read wait", ErrInvalidConfig)
	ErrInvalidFlow     = fmt.Errorf("%w: flow control", ErrInvalidConfig)
)
