package serial

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultDriver is the driver used by sessions that do not name one
var DefaultDriver Driver = TermiosDriver

var drivers = map[string]Driver{
	"termios": TermiosDriver,
	"port":    PortDriver,
}

// termiosDevice drives a tty through termios ioctls. Settings are staged
// until Open, and a watcher goroutine polls the fd for input.
type termiosDevice struct {
	path string

	speed    uint32
	parity   Parity
	flow     FlowControl
	dataBits DataBits
	stopBits StopBits

	rx rxBuffer

	mu     sync.Mutex
	fd     int
	pipeR  int // self-pipe read fd, wakes the watcher on close
	pipeW  int // self-pipe write fd
	opened bool
	done   chan struct{}
}

var _ Device = (*termiosDevice)(nil)

// TermiosDriver acquires a tty character device and drives it with
// termios on Linux.
func TermiosDriver(path string) (Device, error) {
	if !isCharacterDevice(path) {
		return nil, fmt.Errorf("%w: %s is not a character device", ErrDeviceUnavailable, path)
	}
	return &termiosDevice{
		path:     path,
		speed:    unix.B9600,
		dataBits: DataBits8,
		stopBits: StopBitsOne,
		fd:       -1,
	}, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, fmt.Errorf("%w %d not supported by termios", ErrInvalidBaudRate, rate)
	}
}

func (d *termiosDevice) SetBaudRate(rate int) error {
	speed, err := getBaudRate(rate)
	if err != nil {
		return err
	}
	d.speed = speed
	return nil
}

func (d *termiosDevice) SetParity(parity Parity) error {
	if !parity.valid() {
		return ErrInvalidParity
	}
	d.parity = parity
	return nil
}

func (d *termiosDevice) SetFlowControl(fc FlowControl) error {
	if fc != FlowControlNone && fc != FlowControlRTSCTS {
		return ErrInvalidFlow
	}
	d.flow = fc
	return nil
}

func (d *termiosDevice) SetDataBits(bits DataBits) error {
	if !bits.valid() {
		return ErrInvalidDataBits
	}
	d.dataBits = bits
	return nil
}

func (d *termiosDevice) SetStopBits(bits StopBits) error {
	switch bits {
	case StopBitsOne, StopBitsTwo:
		d.stopBits = bits
		return nil
	default:
		// termios has no 1.5 stop bit setting
		return fmt.Errorf("%w %s not supported by termios", ErrInvalidStopBits, bits)
	}
}

func (d *termiosDevice) SetReadyRead(fn func()) error {
	d.rx.arm(fn)
	return nil
}

func (d *termiosDevice) SetErrorHandler(fn func(error)) {
	d.rx.armFailure(fn)
}

func (d *termiosDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return ErrPortOpen
	}

	fd, err := unix.Open(d.path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}

	if err := d.configure(fd); err != nil {
		unix.Close(fd)
		return err
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return fmt.Errorf("pipe: %w", err)
	}

	d.fd = fd
	d.pipeR = pipeFds[0]
	d.pipeW = pipeFds[1]
	d.done = make(chan struct{})
	d.opened = true

	go d.watch(fd, d.pipeR, d.pipeW, d.done)
	return nil
}

// configure puts the tty in raw mode with the staged framing. VMIN=0 and
// VTIME=0 make reads return immediately with whatever is buffered.
func (d *termiosDevice) configure(fd int) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cflag = unix.CREAD | unix.CLOCAL

	switch d.dataBits {
	case DataBits5:
		termios.Cflag |= unix.CS5
	case DataBits6:
		termios.Cflag |= unix.CS6
	case DataBits7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if d.stopBits == StopBitsTwo {
		termios.Cflag |= unix.CSTOPB
	}

	switch d.parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	}

	if d.flow == FlowControlRTSCTS {
		termios.Cflag |= unix.CRTSCTS
	}

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | d.speed
	termios.Ispeed = d.speed
	termios.Ospeed = d.speed

	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// watch polls the tty and the self-pipe, moving received bytes into the
// rx buffer until the device is closed or hangs up. The watcher owns the
// descriptors from Open on and closes them when it exits, so Close never
// has to wait for it, even when called from the ready handler.
func (d *termiosDevice) watch(fd, pipeR, pipeW int, done chan struct{}) {
	defer close(done)
	defer func() {
		d.mu.Lock()
		if d.done == done {
			// stopped on its own, Close must not touch the pipe any more
			d.opened = false
			d.fd = -1
		}
		unix.Close(fd)
		unix.Close(pipeR)
		unix.Close(pipeW)
		d.mu.Unlock()
	}()

	err := d.receive(fd, pipeR)
	if err != nil {
		d.rx.fail(fmt.Errorf("%w: %s: %v", ErrDeviceLost, d.path, err))
	}
}

// receive returns nil when woken through the self-pipe, otherwise the
// reason the tty can no longer be read
func (d *termiosDevice) receive(fd, pipeR int) error {
	buf := make([]byte, 4096)
	for {
		pfd := []unix.PollFd{
			{Fd: int32(fd), Events: unix.POLLIN},
			{Fd: int32(pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if pfd[1].Revents != 0 {
			return nil
		}

		revents := pfd[0].Revents
		if revents&unix.POLLNVAL != 0 {
			return errors.New("invalid descriptor")
		}
		if revents&unix.POLLIN != 0 {
			n, err := unix.Read(fd, buf)
			if err != nil {
				if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
					continue
				}
				return fmt.Errorf("read: %w", err)
			}
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				d.rx.push(chunk)
				continue
			}
		}
		if revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			return errors.New("hangup")
		}
	}
}

func (d *termiosDevice) BytesAvailable() int {
	return d.rx.len()
}

func (d *termiosDevice) ReadAll() []byte {
	return d.rx.drain()
}

func (d *termiosDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	fd, opened := d.fd, d.opened
	d.mu.Unlock()

	if !opened {
		return 0, ErrPortNotOpen
	}

	for {
		n, err := unix.Write(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (d *termiosDevice) SetDTR(state bool) error {
	return d.setModemBit(unix.TIOCM_DTR, state)
}

func (d *termiosDevice) SetRTS(state bool) error {
	return d.setModemBit(unix.TIOCM_RTS, state)
}

func (d *termiosDevice) setModemBit(bit int, state bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return ErrPortNotOpen
	}
	if state {
		return unix.IoctlSetPointerInt(d.fd, unix.TIOCMBIS, bit)
	}
	return unix.IoctlSetPointerInt(d.fd, unix.TIOCMBIC, bit)
}

// Close stops the watcher and returns without waiting for it; the watcher
// closes the descriptors on its way out.
func (d *termiosDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rx.disarm()
	if !d.opened {
		return nil
	}
	d.opened = false
	d.fd = -1
	d.done = nil

	if _, err := unix.Write(d.pipeW, []byte{1}); err != nil {
		return fmt.Errorf("wake watcher: %w", err)
	}
	return nil
}
