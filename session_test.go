package serial_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/serialtest"
)

func openSession(t *testing.T, opts ...serial.Option) (*serial.Session, *serialtest.Device) {
	t.Helper()
	device := serialtest.New()
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	config, err := serial.NewConfig("/dev/ttyFAKE0", opts...)
	require.NoError(t, err)
	require.NoError(t, session.Open(config))
	return session, device
}

type recorder struct {
	mu       sync.Mutex
	payloads []string
	failures []string
}

func (r *recorder) target() serial.Target {
	return serial.Target{
		Success: func(payload string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.payloads = append(r.payloads, payload)
		},
		Failure: func(payload string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, payload)
		},
	}
}

func (r *recorder) failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func TestSession_OpenAppliesSettings(t *testing.T) {
	session, device := openSession(t,
		serial.WithBaudRate(115200),
		serial.WithParity(serial.ParityOdd),
		serial.WithDataBits(serial.DataBits7),
		serial.WithStopBits(serial.StopBitsTwo),
		serial.WithInitialDTR(true),
	)

	assert.True(t, session.IsOpen())
	assert.True(t, device.IsOpen())
	assert.True(t, device.Armed())
	assert.Equal(t, serialtest.Settings{
		Path:        "/dev/ttyFAKE0",
		BaudRate:    115200,
		Parity:      serial.ParityOdd,
		FlowControl: serial.FlowControlNone,
		DataBits:    serial.DataBits7,
		StopBits:    serial.StopBitsTwo,
		DTR:         true,
	}, device.Settings())

	config, open := session.Config()
	assert.True(t, open)
	assert.Equal(t, 115200, config.BaudRate)
}

func TestSession_OpenInvalidConfig(t *testing.T) {
	device := serialtest.New()
	session := serial.NewSession(serial.WithDriver(device.Driver()))

	for _, options := range []map[string]any{
		{"parity": 9},
		{"dataBits": 4},
		{"stopBits": 7},
	} {
		config, err := serial.ParseOptions(options)
		require.ErrorIs(t, err, serial.ErrInvalidConfig)

		err = session.Open(config)
		assert.ErrorIs(t, err, serial.ErrInvalidConfig)
		assert.False(t, session.IsOpen())
		assert.Zero(t, device.Held())
	}
}

func TestSession_OpenDeviceUnavailable(t *testing.T) {
	session := serial.NewSession(serial.WithDriver(serialtest.UnavailableDriver))

	err := session.Open(serial.DefaultConfig("/dev/missing"))

	assert.ErrorIs(t, err, serial.ErrDeviceUnavailable)
	assert.False(t, session.IsOpen())
}

func TestSession_OpenFailuresLeaveSessionClosed(t *testing.T) {
	tests := []struct {
		step serialtest.Step
		want error
	}{
		{serialtest.StepBaudRate, serial.ErrInvalidConfig},
		{serialtest.StepParity, serial.ErrInvalidConfig},
		{serialtest.StepFlowControl, serial.ErrInvalidConfig},
		{serialtest.StepDataBits, serial.ErrInvalidConfig},
		{serialtest.StepStopBits, serial.ErrInvalidConfig},
		{serialtest.StepArm, serial.ErrNotificationArmFailed},
		{serialtest.StepOpen, serial.ErrOpenFailed},
		{serialtest.StepDTR, serial.ErrOpenFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			device := serialtest.New()
			device.Fail(tt.step, nil)
			session := serial.NewSession(serial.WithDriver(device.Driver()))
			config := serial.DefaultConfig("/dev/ttyFAKE0")
			config.InitialDTR = true

			err := session.Open(config)

			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), serialtest.ErrInjected.Error())
			assert.False(t, session.IsOpen())
			assert.False(t, device.IsOpen())
			assert.False(t, device.Armed())
			assert.Zero(t, device.Held(), "device handle leaked")
			assert.ErrorIs(t, session.Close(), serial.ErrPortNotOpen)
		})
	}
}

func TestSession_ArmFailureDoesNotOpen(t *testing.T) {
	device := serialtest.New()
	device.Fail(serialtest.StepArm, nil)
	session := serial.NewSession(serial.WithDriver(device.Driver()))

	err := session.Open(serial.DefaultConfig("/dev/ttyFAKE0"))

	require.ErrorIs(t, err, serial.ErrNotificationArmFailed)
	assert.False(t, device.IsOpen())
}

func TestSession_RetryOpenAfterFailure(t *testing.T) {
	device := serialtest.New()
	device.Fail(serialtest.StepOpen, errors.New("busy"))
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	config := serial.DefaultConfig("/dev/ttyFAKE0")

	require.ErrorIs(t, session.Open(config), serial.ErrOpenFailed)

	device.Recover(serialtest.StepOpen)
	require.NoError(t, session.Open(config))
	assert.True(t, session.IsOpen())
	assert.Equal(t, 1, device.Held())
}

func TestSession_OpenTwice(t *testing.T) {
	session, device := openSession(t)

	err := session.Open(serial.DefaultConfig("/dev/ttyFAKE1"))

	assert.ErrorIs(t, err, serial.ErrPortOpen)
	assert.Equal(t, 1, device.Held())
	assert.True(t, session.IsOpen())
}

func TestSession_NeverOpened(t *testing.T) {
	session := serial.NewSession(serial.WithDriver(serialtest.New().Driver()))

	assert.ErrorIs(t, session.Write([]byte("x")), serial.ErrPortNotOpen)
	assert.ErrorIs(t, session.WriteHex("41"), serial.ErrPortNotOpen)
	_, err := session.Read(context.Background())
	assert.ErrorIs(t, err, serial.ErrPortNotOpen)
	assert.ErrorIs(t, session.Close(), serial.ErrPortNotOpen)
}

func TestSession_CloseTwice(t *testing.T) {
	session, device := openSession(t)

	require.NoError(t, session.Close())
	assert.ErrorIs(t, session.Close(), serial.ErrPortNotOpen)
	assert.False(t, session.IsOpen())
	assert.False(t, device.Armed())
	assert.Zero(t, device.Held())
}

func TestSession_WriteChunked(t *testing.T) {
	session, device := openSession(t)
	device.MaxChunk = 3

	data := []byte("0123456789")
	require.NoError(t, session.Write(data))

	assert.Equal(t, data, device.Written())
	assert.Equal(t, 4, device.WriteCalls()) // ceil(10/3)
}

func TestSession_WriteEmpty(t *testing.T) {
	session, device := openSession(t)

	require.NoError(t, session.Write(nil))
	assert.Zero(t, device.WriteCalls())
}

func TestSession_WriteErrorAbortsLoop(t *testing.T) {
	session, device := openSession(t)
	device.MaxChunk = 2
	device.FailWriteAfter(1, nil)

	err := session.Write([]byte("abcdef"))

	assert.ErrorIs(t, err, serial.ErrWriteError)
	assert.Equal(t, []byte("ab"), device.Written())
	assert.Equal(t, 2, device.WriteCalls())
}

func TestSession_WriteHex(t *testing.T) {
	session, device := openSession(t)

	require.NoError(t, session.WriteHex("41"))
	assert.Equal(t, []byte{0x41}, device.Written())

	require.NoError(t, session.WriteHex("4"))
	assert.Equal(t, []byte{0x41}, device.Written(), "odd trailing digit must be dropped")

	assert.ErrorIs(t, session.WriteHex("zz"), serial.ErrInvalidHex)
}

func TestSession_ReadBuffered(t *testing.T) {
	session, device := openSession(t, serial.WithReadWait(5*time.Second))
	device.Buffer([]byte{0x01, 0xff})

	start := time.Now()
	data, err := session.Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xff}, data)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, device.BytesAvailable())
}

func TestSession_InputBufferedDuringOpenIsSignalled(t *testing.T) {
	device := serialtest.New()
	device.Inject([]byte("early"))
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	listener := &recorder{}
	session.RegisterListener(listener.target())

	require.NoError(t, session.Open(serial.DefaultConfig("/dev/ttyFAKE0")))

	assert.Equal(t, []string{serial.Encode([]byte("early"))}, listener.received())
}

func TestSession_ReadWaitsForData(t *testing.T) {
	session, device := openSession(t, serial.WithReadWait(time.Second))
	listener := &recorder{}
	session.RegisterListener(listener.target())

	go func() {
		time.Sleep(20 * time.Millisecond)
		device.Inject([]byte("hi"))
	}()

	data, err := session.Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
	assert.Empty(t, listener.received(), "bytes must go to exactly one consumer")
}

func TestSession_ReadTimeout(t *testing.T) {
	session, _ := openSession(t, serial.WithReadWait(100*time.Millisecond))

	start := time.Now()
	_, err := session.Read(context.Background())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, serial.ErrNoDataAvailable)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestSession_ReadContextCancelled(t *testing.T) {
	session, _ := openSession(t, serial.WithReadWait(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := session.Read(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_CloseWakesPendingRead(t *testing.T) {
	session, _ := openSession(t, serial.WithReadWait(5*time.Second))

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Read(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, session.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, serial.ErrPortNotOpen)
	case <-time.After(time.Second):
		t.Fatal("pending read was not woken by close")
	}
}

func TestSession_EventWithoutListenerIsDropped(t *testing.T) {
	session, device := openSession(t)

	device.Inject([]byte("lost"))

	assert.Zero(t, device.BytesAvailable())

	listener := &recorder{}
	session.RegisterListener(listener.target())
	assert.Empty(t, listener.received(), "registration must not replay dropped bytes")
}

func TestSession_EventDeliveredOnceEncodedLikeRead(t *testing.T) {
	session, device := openSession(t, serial.WithReadWait(time.Second))
	listener := &recorder{}
	session.RegisterListener(listener.target())

	payload := []byte{0x00, 0x41, 0x80, 0xff}
	device.Inject(payload)

	require.Equal(t, []string{serial.Encode(payload)}, listener.received())

	go func() {
		time.Sleep(20 * time.Millisecond)
		device.Inject(payload)
	}()
	data, err := session.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, listener.received()[0], serial.Encode(data))
	assert.Len(t, listener.received(), 1)
}

func TestSession_LatestListenerWins(t *testing.T) {
	session, device := openSession(t)
	first := &recorder{}
	second := &recorder{}
	session.RegisterListener(first.target())
	session.RegisterListener(second.target())

	device.Inject([]byte("x"))

	assert.Empty(t, first.received())
	assert.Equal(t, []string{`"\x78"`}, second.received())
}

func TestSession_ListenerRegisteredBeforeOpen(t *testing.T) {
	device := serialtest.New()
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	listener := &recorder{}
	session.RegisterListener(listener.target())

	require.NoError(t, session.Open(serial.DefaultConfig("/dev/ttyFAKE0")))
	device.Inject([]byte("A"))

	assert.Equal(t, []string{`"\x41"`}, listener.received())
}

func TestSession_NoDeliveryAfterClose(t *testing.T) {
	session, device := openSession(t)
	listener := &recorder{}
	session.RegisterListener(listener.target())
	stale := device.Handler()
	require.NotNil(t, stale)

	require.NoError(t, session.Close())
	device.Buffer([]byte("late"))
	stale() // an event the driver raised just before it was disarmed

	assert.Empty(t, listener.received())
	assert.Equal(t, 4, device.BytesAvailable(), "a closed session must not drain the device")
}

// closeFromListener registers a listener that closes session on its first
// event and reports the result on the returned channel
func closeFromListener(session *serial.Session) <-chan error {
	closed := make(chan error, 1)
	var once sync.Once
	session.RegisterListener(serial.Target{
		Success: func(string) {
			once.Do(func() { closed <- session.Close() })
		},
		Failure: func(string) {},
	})
	return closed
}

func TestSession_ListenerMayClose(t *testing.T) {
	session, device := openSession(t)
	closed := closeFromListener(session)

	device.Inject([]byte("bye"))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("close from the listener did not return")
	}
	assert.False(t, session.IsOpen())
	assert.Equal(t, 0, device.Held())
}

func TestSession_ListenerMayCloseDuringOpen(t *testing.T) {
	device := serialtest.New()
	device.Inject([]byte("early"))
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	closed := closeFromListener(session)

	opened := make(chan error, 1)
	go func() { opened <- session.Open(serial.DefaultConfig("/dev/ttyFAKE0")) }()

	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("open did not return while its listener closed the session")
	}
	require.NoError(t, <-closed)
	assert.False(t, session.IsOpen())
	assert.Equal(t, 0, device.Held())
}

func TestSession_DeviceLostIsReported(t *testing.T) {
	var logs bytes.Buffer
	device := serialtest.New()
	session := serial.NewSession(
		serial.WithDriver(device.Driver()),
		serial.WithLogger(zerolog.New(&logs)),
	)
	listener := &recorder{}
	session.RegisterListener(listener.target())
	require.NoError(t, session.Open(serial.DefaultConfig("/dev/ttyFAKE0")))

	device.Lose(fmt.Errorf("%w: hangup", serial.ErrDeviceLost))

	require.Len(t, listener.failed(), 1)
	assert.Contains(t, listener.failed()[0], "hangup")
	assert.True(t, strings.HasPrefix(listener.failed()[0], "'"))
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "device stopped delivering data")
	assert.True(t, session.IsOpen())

	require.NoError(t, session.Close())
	device.Lose(errors.New("late"))
	assert.Len(t, listener.failed(), 1, "no report after close")
}
