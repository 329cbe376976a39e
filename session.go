package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxZeroWrites bounds how many consecutive writes may accept no bytes
// without an error before Write gives up.
const maxZeroWrites = 64

// Session owns at most one open device and the single notification target.
// A Session starts closed; Open moves it to open only when every step of
// acquiring, configuring, arming and opening the device succeeded.
type Session struct {
	driver Driver
	log    zerolog.Logger
	notify notifier

	// lifecycle serializes Open and Close
	lifecycle sync.Mutex

	mu      sync.Mutex
	dev     Device
	config  Config
	closed  chan struct{} // closed when the current open ends
	pending chan []byte   // set while a Read waits for data

	// readMu serializes readers so one waiter at a time owns pending
	readMu sync.Mutex
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithDriver selects the device driver used by Open
func WithDriver(driver Driver) SessionOption {
	return func(s *Session) {
		s.driver = driver
	}
}

// WithLogger sets the logger for lifecycle and notification events
func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = logger
	}
}

// NewSession returns a closed session
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		driver: DefaultDriver,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsOpen reports whether the session holds an open device
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil
}

// Config returns the configuration of the open port
func (s *Session) Config() (Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.dev != nil
}

// RegisterListener replaces the notification target. It does not require
// an open port and does not deliver anything by itself.
func (s *Session) RegisterListener(target Target) {
	s.notify.register(target)
	s.log.Debug().Bool("active", !target.IsZero()).Msg("listener registered")
}

// Open acquires, configures and opens the device named by config.
func (s *Session) Open(config Config) error {
	dev, err := s.open(config)
	if err != nil {
		return err
	}

	// Input that arrived while opening was buffered without being
	// signalled. It is handed over outside lifecycle so a listener may
	// close the session.
	if dev.BytesAvailable() > 0 {
		s.onReadyRead(dev)
	}
	return nil
}

func (s *Session) open(config Config) (Device, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.IsOpen() {
		return nil, ErrPortOpen
	}

	dev, err := s.driver(config.Device)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := configure(dev, config); err != nil {
		dev.Close()
		return nil, err
	}

	if err := dev.SetReadyRead(func() { s.onReadyRead(dev) }); err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotificationArmFailed, err)
	}
	dev.SetErrorHandler(func(err error) { s.onDeviceError(dev, err) })

	if err := dev.Open(); err != nil {
		dev.SetReadyRead(nil)
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	if err := applySignals(dev, config); err != nil {
		dev.SetReadyRead(nil)
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	s.mu.Lock()
	s.dev = dev
	s.config = config
	s.closed = make(chan struct{})
	s.mu.Unlock()

	s.log.Debug().
		Str("device", config.Device).
		Str("framing", config.String()).
		Dur("read_wait", config.ReadWait).
		Msg("port opened")
	return dev, nil
}

// configure applies the port settings one step at a time so a failure
// names the setting that was rejected.
func configure(dev Device, config Config) error {
	steps := []struct {
		name  string
		apply func() error
	}{
		{"baud rate", func() error { return dev.SetBaudRate(config.BaudRate) }},
		{"parity", func() error { return dev.SetParity(config.Parity) }},
		{"flow control", func() error { return dev.SetFlowControl(FlowControlNone) }},
		{"data bits", func() error { return dev.SetDataBits(config.DataBits) }},
		{"stop bits", func() error { return dev.SetStopBits(config.StopBits) }},
	}

	for _, step := range steps {
		if err := step.apply(); err != nil {
			if errors.Is(err, ErrInvalidConfig) {
				return err
			}
			return fmt.Errorf("%w: set %s: %v", ErrInvalidConfig, step.name, err)
		}
	}
	return nil
}

func applySignals(dev Device, config Config) error {
	if config.InitialDTR {
		if err := dev.SetDTR(true); err != nil {
			return fmt.Errorf("set DTR: %w", err)
		}
	}
	if config.InitialRTS {
		if err := dev.SetRTS(true); err != nil {
			return fmt.Errorf("set RTS: %w", err)
		}
	}
	return nil
}

// onReadyRead runs on the driver goroutine. It drains everything buffered
// in one go; a waiting Read gets the bytes first, then the listener.
// Events from a device that is no longer the open one are ignored.
func (s *Session) onReadyRead(dev Device) {
	s.mu.Lock()
	if s.dev != dev {
		s.mu.Unlock()
		return
	}
	data := dev.ReadAll()
	if len(data) == 0 {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		s.pending <- data
		s.pending = nil
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.notify.deliver(data) {
		s.log.Debug().Int("bytes", len(data)).Msg("no listener registered, dropping data")
		return
	}
	s.log.Debug().Int("bytes", len(data)).Msg("data delivered to listener")
}

// onDeviceError runs on the driver goroutine when it stops receiving. The
// session stays open; the listener is told through its failure callback.
func (s *Session) onDeviceError(dev Device, err error) {
	s.mu.Lock()
	current := s.dev == dev
	device := s.config.Device
	s.mu.Unlock()
	if !current {
		return
	}

	s.log.Warn().Err(err).Str("device", device).Msg("device stopped delivering data")
	s.notify.fail(err)
}

// Write sends all of data, resuming after short writes. It fails with
// ErrWriteError on the first device error; bytes already written are not
// reported.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev == nil {
		return ErrPortNotOpen
	}

	written := 0
	zeroWrites := 0
	for written < len(data) {
		n, err := dev.Write(data[written:])
		if err != nil {
			s.log.Error().Err(err).Int("written", written).Int("total", len(data)).Msg("write failed")
			return fmt.Errorf("%w: %v", ErrWriteError, err)
		}
		if n <= 0 {
			zeroWrites++
			if zeroWrites >= maxZeroWrites {
				s.log.Error().Int("written", written).Int("total", len(data)).Msg("device stopped accepting data")
				return fmt.Errorf("%w: device accepted no data", ErrWriteError)
			}
			continue
		}
		zeroWrites = 0
		written += min(n, len(data)-written)
	}
	return nil
}

// WriteHex decodes hex digit pairs and writes the bytes. A trailing lone
// digit is dropped.
func (s *Session) WriteHex(hexStr string) error {
	if !s.IsOpen() {
		return ErrPortNotOpen
	}
	data, err := Decode(hexStr)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Read returns buffered input, or waits up to the configured read wait
// for input to arrive. It fails with ErrNoDataAvailable when the wait
// elapses and with ErrPortNotOpen when the port is closed meanwhile.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.mu.Lock()
	dev := s.dev
	if dev == nil {
		s.mu.Unlock()
		return nil, ErrPortNotOpen
	}
	if dev.BytesAvailable() > 0 {
		data := dev.ReadAll()
		s.mu.Unlock()
		return data, nil
	}
	pending := make(chan []byte, 1)
	s.pending = pending
	closed := s.closed
	wait := s.config.ReadWait
	s.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case data := <-pending:
		return data, nil
	case <-closed:
		return nil, ErrPortNotOpen
	case <-ctx.Done():
		return s.settle(pending, ctx.Err())
	case <-timer.C:
		return s.settle(pending, ErrNoDataAvailable)
	}
}

// settle withdraws a waiting reader. Bytes handed over right as the wait
// ended are still returned, they were already drained from the device.
func (s *Session) settle(pending chan []byte, err error) ([]byte, error) {
	s.abandon(pending)
	select {
	case data := <-pending:
		return data, nil
	default:
		return nil, err
	}
}

func (s *Session) abandon(pending chan []byte) {
	s.mu.Lock()
	if s.pending == pending {
		s.pending = nil
	}
	s.mu.Unlock()
}

// Close disarms notifications and releases the device. Closing a session
// that is not open fails with ErrPortNotOpen.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	dev := s.dev
	if dev == nil {
		s.mu.Unlock()
		return ErrPortNotOpen
	}
	device := s.config.Device
	s.dev = nil
	s.pending = nil
	close(s.closed)
	s.mu.Unlock()

	// The device is released outside mu: its driver goroutine may be
	// waiting in onReadyRead, or be the caller.
	dev.SetReadyRead(nil)
	dev.SetErrorHandler(nil)
	if err := dev.Close(); err != nil {
		s.log.Warn().Err(err).Str("device", device).Msg("error releasing device")
	}
	s.log.Debug().Str("device", device).Msg("port closed")
	return nil
}
