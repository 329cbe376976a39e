package serial

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DefaultDevice is used when an options mapping does not name a device
const DefaultDevice = "/dev/ttyUSB0"

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlRTSCTS
)

// Parity represents the parity mode. The numeric values are the codes
// accepted in an options mapping.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

func (p Parity) valid() bool {
	return p >= ParityNone && p <= ParitySpace
}

// DataBits is the number of data bits per character (5 to 8)
type DataBits int

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

func (d DataBits) valid() bool {
	return d >= DataBits5 && d <= DataBits8
}

// StopBits represents the stop bit setting. The numeric values are the
// codes accepted in an options mapping.
type StopBits int

const (
	StopBitsOne        StopBits = 1
	StopBitsTwo        StopBits = 2
	StopBitsOneAndHalf StopBits = 3
)

func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsTwo:
		return "2"
	case StopBitsOneAndHalf:
		return "1.5"
	default:
		return fmt.Sprintf("StopBits(%d)", int(s))
	}
}

func (s StopBits) valid() bool {
	return s >= StopBitsOne && s <= StopBitsOneAndHalf
}

// Config holds the configuration for a serial port. A Config is copied
// into the session on open and never changes while the port is open.
type Config struct {
	Device     string
	BaudRate   int
	Parity     Parity
	DataBits   DataBits
	StopBits   StopBits
	ReadWait   time.Duration // how long Read waits for data when nothing is buffered
	InitialDTR bool
	InitialRTS bool
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a 9600 8N1 configuration for the given device
func DefaultConfig(device string) Config {
	return Config{
		Device:   device,
		BaudRate: 9600,
		Parity:   ParityNone,
		DataBits: DataBits8,
		StopBits: StopBitsOne,
		ReadWait: 200 * time.Millisecond,
	}
}

// NewConfig builds a validated configuration from defaults and options
func NewConfig(device string, opts ...Option) (Config, error) {
	config := DefaultConfig(device)
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("%w: empty device path", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w %d", ErrInvalidBaudRate, c.BaudRate)
	}
	if !c.Parity.valid() {
		return fmt.Errorf("%w code %d", ErrInvalidParity, int(c.Parity))
	}
	if !c.DataBits.valid() {
		return fmt.Errorf("%w %d", ErrInvalidDataBits, int(c.DataBits))
	}
	if !c.StopBits.valid() {
		return fmt.Errorf("%w code %d", ErrInvalidStopBits, int(c.StopBits))
	}
	if c.ReadWait < 0 {
		return fmt.Errorf("%w %v", ErrInvalidReadWait, c.ReadWait)
	}
	return nil
}

// String renders the framing the way terminals usually show it, e.g. "9600 8N1"
func (c Config) String() string {
	return fmt.Sprintf("%d %d%s%s", c.BaudRate, int(c.DataBits), c.Parity, c.StopBits)
}

// WithBaudRate sets the baud rate. Whether a rate is supported is decided
// by the device backend when the port is opened.
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if !parity.valid() {
			return ErrInvalidParity
		}
		c.Parity = parity
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits DataBits) Option {
	return func(c *Config) error {
		if !bits.valid() {
			return ErrInvalidDataBits
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the stop bits
func WithStopBits(bits StopBits) Option {
	return func(c *Config) error {
		if !bits.valid() {
			return ErrInvalidStopBits
		}
		c.StopBits = bits
		return nil
	}
}

// WithReadWait sets how long Read waits for data
func WithReadWait(wait time.Duration) Option {
	return func(c *Config) error {
		if wait < 0 {
			return ErrInvalidReadWait
		}
		c.ReadWait = wait
		return nil
	}
}

// WithInitialDTR asserts or clears DTR right after the port opens
func WithInitialDTR(state bool) Option {
	return func(c *Config) error {
		c.InitialDTR = state
		return nil
	}
}

// WithInitialRTS asserts or clears RTS right after the port opens
func WithInitialRTS(state bool) Option {
	return func(c *Config) error {
		c.InitialRTS = state
		return nil
	}
}

// mappedOptions mirrors the keys a host passes in its options object.
// Pointer fields tell an absent key apart from a zero value.
type mappedOptions struct {
	Device         *string `mapstructure:"device"`
	BaudRate       *int    `mapstructure:"baudRate"`
	Parity         *int    `mapstructure:"parity"`
	DataBits       *int    `mapstructure:"dataBits"`
	StopBits       *int    `mapstructure:"stopBits"`
	ReadWaitMillis *int    `mapstructure:"readWaitMillis"`
	DTR            *bool   `mapstructure:"dtr"`
	RTS            *bool   `mapstructure:"rts"`
}

// ParseOptions builds a validated Config from an options mapping such as
// {"device": "/dev/ttyACM0", "baudRate": 115200, "parity": 2}. Absent or
// unknown keys keep their defaults; codes out of range are rejected with
// an error matching ErrInvalidConfig.
func ParseOptions(options map[string]any) (Config, error) {
	var m mappedOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &m,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(options); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	device := DefaultDevice
	if m.Device != nil && *m.Device != "" {
		device = *m.Device
	}

	var opts []Option
	if m.BaudRate != nil {
		opts = append(opts, WithBaudRate(*m.BaudRate))
	}
	if m.Parity != nil {
		opts = append(opts, WithParity(Parity(*m.Parity)))
	}
	if m.DataBits != nil {
		opts = append(opts, WithDataBits(DataBits(*m.DataBits)))
	}
	if m.StopBits != nil {
		opts = append(opts, WithStopBits(StopBits(*m.StopBits)))
	}
	if m.ReadWaitMillis != nil {
		opts = append(opts, WithReadWait(time.Duration(*m.ReadWaitMillis)*time.Millisecond))
	}
	if m.DTR != nil {
		opts = append(opts, WithInitialDTR(*m.DTR))
	}
	if m.RTS != nil {
		opts = append(opts, WithInitialRTS(*m.RTS))
	}

	return NewConfig(device, opts...)
}
