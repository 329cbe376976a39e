// Package serialtest provides an in-memory serial device for testing code
// built on serial.Session.
package serialtest

import (
	"errors"
	"fmt"
	"sync"

	serial "github.com/allbin/go-serial-bridge"
)

// Step names a device operation that can be made to fail
type Step string

const (
	StepBaudRate    Step = "baud rate"
	StepParity      Step = "parity"
	StepFlowControl Step = "flow control"
	StepDataBits    Step = "data bits"
	StepStopBits    Step = "stop bits"
	StepArm         Step = "arm"
	StepOpen        Step = "open"
	StepDTR         Step = "dtr"
	StepRTS         Step = "rts"
)

// ErrInjected is the default error returned by failing steps
var ErrInjected = errors.New("injected failure")

// Settings is what the session configured on the device
type Settings struct {
	Path        string
	BaudRate    int
	Parity      serial.Parity
	FlowControl serial.FlowControl
	DataBits    serial.DataBits
	StopBits    serial.StopBits
	DTR         bool
	RTS         bool
}

// Device is an in-memory serial.Device. Inject simulates received bytes;
// Written returns what was sent. MaxChunk limits how many bytes a single
// Write accepts.
type Device struct {
	MaxChunk int

	mu         sync.Mutex
	settings   Settings
	fail       map[Step]error
	failWrite  error
	writeOK    int // writes allowed before failWrite applies
	rx         []byte
	written    []byte
	writeCalls int
	ready      func()
	failed     func(error)
	opened     bool
	acquired   int
	released   int
}

var _ serial.Device = (*Device)(nil)

// New returns a device with no failures configured
func New() *Device {
	return &Device{fail: make(map[Step]error)}
}

// Driver returns a serial.Driver that hands out this device for any path
func (d *Device) Driver() serial.Driver {
	return func(path string) (serial.Device, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.acquired++
		d.settings.Path = path
		return d, nil
	}
}

// UnavailableDriver never finds a device
func UnavailableDriver(path string) (serial.Device, error) {
	return nil, fmt.Errorf("%w: %s", serial.ErrDeviceUnavailable, path)
}

// Fail makes step return err (ErrInjected when err is nil)
func (d *Device) Fail(step Step, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.mu.Lock()
	d.fail[step] = err
	d.mu.Unlock()
}

// Recover undoes Fail for step
func (d *Device) Recover(step Step) {
	d.mu.Lock()
	delete(d.fail, step)
	d.mu.Unlock()
}

// FailWriteAfter lets n writes succeed and fails every later one with err
func (d *Device) FailWriteAfter(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.mu.Lock()
	d.writeOK = n
	d.failWrite = err
	d.mu.Unlock()
}

func (d *Device) step(step Step, apply func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[step]; err != nil {
		return err
	}
	apply()
	return nil
}

func (d *Device) SetBaudRate(rate int) error {
	return d.step(StepBaudRate, func() { d.settings.BaudRate = rate })
}

func (d *Device) SetParity(parity serial.Parity) error {
	return d.step(StepParity, func() { d.settings.Parity = parity })
}

func (d *Device) SetFlowControl(fc serial.FlowControl) error {
	return d.step(StepFlowControl, func() { d.settings.FlowControl = fc })
}

func (d *Device) SetDataBits(bits serial.DataBits) error {
	return d.step(StepDataBits, func() { d.settings.DataBits = bits })
}

func (d *Device) SetStopBits(bits serial.StopBits) error {
	return d.step(StepStopBits, func() { d.settings.StopBits = bits })
}

func (d *Device) SetReadyRead(fn func()) error {
	if fn == nil {
		d.mu.Lock()
		d.ready = nil
		d.mu.Unlock()
		return nil
	}
	return d.step(StepArm, func() { d.ready = fn })
}

func (d *Device) SetErrorHandler(fn func(error)) {
	d.mu.Lock()
	d.failed = fn
	d.mu.Unlock()
}

func (d *Device) Open() error {
	return d.step(StepOpen, func() { d.opened = true })
}

func (d *Device) SetDTR(state bool) error {
	return d.step(StepDTR, func() { d.settings.DTR = state })
}

func (d *Device) SetRTS(state bool) error {
	return d.step(StepRTS, func() { d.settings.RTS = state })
}

func (d *Device) BytesAvailable() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx)
}

func (d *Device) ReadAll() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.rx
	d.rx = nil
	return out
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writeCalls++
	if !d.opened {
		return 0, serial.ErrPortNotOpen
	}
	if d.failWrite != nil && d.writeCalls > d.writeOK {
		return 0, d.failWrite
	}
	n := len(p)
	if d.MaxChunk > 0 && n > d.MaxChunk {
		n = d.MaxChunk
	}
	d.written = append(d.written, p[:n]...)
	return n, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	d.ready = nil
	d.failed = nil
	d.released++
	return nil
}

// Inject buffers p as received input and signals readability the way a
// driver does, on the caller's goroutine. Nothing is signalled while the
// device is closed or unarmed, but the bytes stay buffered.
func (d *Device) Inject(p []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, p...)
	fn := d.ready
	if !d.opened {
		fn = nil
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Lose reports err to the error handler the way a driver whose receive
// loop died does, on the caller's goroutine
func (d *Device) Lose(err error) {
	d.mu.Lock()
	fn := d.failed
	d.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// Buffer adds p to the received input without signalling readability
func (d *Device) Buffer(p []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, p...)
	d.mu.Unlock()
}

// Handler returns the readability handler currently armed, or nil
func (d *Device) Handler() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Written returns a copy of all bytes accepted by Write
func (d *Device) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// WriteCalls returns how many times Write was called
func (d *Device) WriteCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeCalls
}

// Settings returns the settings applied so far
func (d *Device) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// IsOpen reports whether Open succeeded and Close was not called since
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Armed reports whether a readability handler is set
func (d *Device) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready != nil
}

// Held returns how many acquired handles have not been released
func (d *Device) Held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired - d.released
}
