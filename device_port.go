package serial

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.bug.st/serial"
)

// portPollInterval bounds how long the reader goroutine blocks in Read
// before checking whether the device is being closed.
const portPollInterval = 50 * time.Millisecond

// portDevice drives a serial port through go.bug.st/serial, which works on
// Linux, macOS, BSD and Windows. A reader goroutine feeds the rx buffer.
type portDevice struct {
	path string
	mode serial.Mode

	rx rxBuffer

	mu     sync.Mutex
	port   serial.Port
	stopCh chan struct{}
}

var _ Device = (*portDevice)(nil)

// PortDriver acquires a serial port handled by go.bug.st/serial. On
// Windows, where COM names are not filesystem paths, acquisition always
// succeeds and a missing port is reported by Open.
func PortDriver(path string) (Device, error) {
	if runtime.GOOS != "windows" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	return &portDevice{
		path: path,
		mode: serial.Mode{
			BaudRate: 9600,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}, nil
}

func (d *portDevice) SetBaudRate(rate int) error {
	if rate <= 0 {
		return ErrInvalidBaudRate
	}
	d.mode.BaudRate = rate
	return nil
}

func (d *portDevice) SetParity(parity Parity) error {
	switch parity {
	case ParityNone:
		d.mode.Parity = serial.NoParity
	case ParityOdd:
		d.mode.Parity = serial.OddParity
	case ParityEven:
		d.mode.Parity = serial.EvenParity
	case ParityMark:
		d.mode.Parity = serial.MarkParity
	case ParitySpace:
		d.mode.Parity = serial.SpaceParity
	default:
		return ErrInvalidParity
	}
	return nil
}

func (d *portDevice) SetFlowControl(fc FlowControl) error {
	if fc != FlowControlNone {
		return fmt.Errorf("%w: hardware flow control not supported by this driver", ErrInvalidFlow)
	}
	return nil
}

func (d *portDevice) SetDataBits(bits DataBits) error {
	if !bits.valid() {
		return ErrInvalidDataBits
	}
	d.mode.DataBits = int(bits)
	return nil
}

func (d *portDevice) SetStopBits(bits StopBits) error {
	switch bits {
	case StopBitsOne:
		d.mode.StopBits = serial.OneStopBit
	case StopBitsOneAndHalf:
		d.mode.StopBits = serial.OnePointFiveStopBits
	case StopBitsTwo:
		d.mode.StopBits = serial.TwoStopBits
	default:
		return ErrInvalidStopBits
	}
	return nil
}

func (d *portDevice) SetReadyRead(fn func()) error {
	d.rx.arm(fn)
	return nil
}

func (d *portDevice) SetErrorHandler(fn func(error)) {
	d.rx.armFailure(fn)
}

func (d *portDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return ErrPortOpen
	}

	mode := d.mode
	port, err := serial.Open(d.path, &mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	if err := port.SetReadTimeout(portPollInterval); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}

	d.port = port
	d.stopCh = make(chan struct{})
	go d.readLoop(port, d.stopCh)
	return nil
}

// readLoop feeds the rx buffer until stopCh is closed or the port fails.
// Close does not wait for it, so Close may run from the ready handler.
func (d *portDevice) readLoop(port serial.Port, stopCh chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-stopCh:
			default:
				d.rx.fail(fmt.Errorf("%w: %s: %v", ErrDeviceLost, d.path, err))
			}
			return
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.rx.push(chunk)
		}
	}
}

func (d *portDevice) BytesAvailable() int {
	return d.rx.len()
}

func (d *portDevice) ReadAll() []byte {
	return d.rx.drain()
}

func (d *portDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	port := d.port
	d.mu.Unlock()

	if port == nil {
		return 0, ErrPortNotOpen
	}
	return port.Write(p)
}

func (d *portDevice) SetDTR(state bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return ErrPortNotOpen
	}
	return d.port.SetDTR(state)
}

func (d *portDevice) SetRTS(state bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return ErrPortNotOpen
	}
	return d.port.SetRTS(state)
}

func (d *portDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rx.disarm()
	if d.port == nil {
		return nil
	}

	close(d.stopCh)
	err := d.port.Close()
	d.port = nil
	return err
}
