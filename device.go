package serial

import "fmt"

// Device is the capability a Session needs from a device driver. A Device
// is acquired by path, configured step by step, armed with a readability
// handler and only then opened, mirroring how serial drivers are set up.
//
// Bytes received by the driver are kept in its buffer until ReadAll drains
// them. The ready handler runs on the driver's own goroutine every time new
// bytes are buffered.
type Device interface {
	SetBaudRate(rate int) error
	SetParity(parity Parity) error
	SetFlowControl(fc FlowControl) error
	SetDataBits(bits DataBits) error
	SetStopBits(bits StopBits) error

	// SetReadyRead arms the readability handler. nil disarms it.
	SetReadyRead(fn func()) error

	// SetErrorHandler sets the function called, on the driver's goroutine,
	// when the driver stops receiving because of a read error or hangup.
	// nil clears it.
	SetErrorHandler(fn func(error))

	// Open opens the device for reading and writing using the staged settings
	Open() error

	// BytesAvailable reports how many received bytes are buffered
	BytesAvailable() int

	// ReadAll drains and returns every buffered byte
	ReadAll() []byte

	// Write may accept fewer bytes than given
	Write(p []byte) (int, error)

	SetDTR(state bool) error
	SetRTS(state bool) error

	// Close releases the device. It is also valid on a device that was
	// acquired but never opened, and from within the ready handler.
	Close() error
}

// Driver acquires the device at path. It fails when no such device exists.
type Driver func(path string) (Device, error)

// LookupDriver returns the driver registered under name. An empty name
// selects DefaultDriver.
func LookupDriver(name string) (Driver, error) {
	if name == "" || name == "default" {
		return DefaultDriver, nil
	}
	driver, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", name)
	}
	return driver, nil
}
