package plugin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	serial "github.com/allbin/go-serial-bridge"
)

// Request is one line read by Serve
type Request struct {
	ID     int64           `json:"id"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Reply is one line written by Serve. Keep is set on listener events: the
// request they answer stays live and may be answered again.
type Reply struct {
	ID      int64  `json:"id"`
	OK      bool   `json:"ok"`
	Payload string `json:"payload"`
	Keep    bool   `json:"keep,omitempty"`
}

// maxRequestSize bounds a single request line
const maxRequestSize = 1 << 20

// Serve reads one JSON request per line from in and writes one JSON reply
// per line to out until in is exhausted or ctx is done. Requests run in
// order. Listener events are written as they happen, tagged with the id of
// the registerReadCallback request. The port is closed when Serve returns.
func (p *Plugin) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	w := &replyWriter{enc: json.NewEncoder(out)}
	defer func() {
		p.session.RegisterListener(serial.Target{})
		if p.session.IsOpen() {
			p.session.Close()
		}
	}()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			if err := p.serveLine(ctx, line, w); err != nil {
				return err
			}
		}
	}
}

func (p *Plugin) serveLine(ctx context.Context, line []byte, w *replyWriter) error {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		p.log.Warn().Err(err).Msg("malformed request")
		return w.write(Reply{OK: false, Payload: Describe(fmt.Errorf("%w: %v", ErrInvalidArguments, err))})
	}

	name, _ := Normalize(req.Action)
	if name == ActionRegisterReadCallback {
		id := req.ID
		p.Exec(ctx, req.Action, req.Args, serial.Target{
			Success: func(payload string) {
				if err := w.write(Reply{ID: id, OK: true, Payload: payload, Keep: true}); err != nil {
					p.log.Error().Err(err).Msg("writing event")
				}
			},
			Failure: func(payload string) {
				if err := w.write(Reply{ID: id, OK: false, Payload: payload, Keep: true}); err != nil {
					p.log.Error().Err(err).Msg("writing event")
				}
			},
		})
		return w.err()
	}

	var reply Reply
	p.Exec(ctx, req.Action, req.Args, serial.Target{
		Success: func(payload string) { reply = Reply{ID: req.ID, OK: true, Payload: payload} },
		Failure: func(payload string) { reply = Reply{ID: req.ID, OK: false, Payload: payload} },
	})
	return w.write(reply)
}

// replyWriter serializes replies from the request loop and listener events
type replyWriter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	lastErr error
}

func (w *replyWriter) write(r Reply) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastErr != nil {
		return w.lastErr
	}
	w.lastErr = w.enc.Encode(r)
	return w.lastErr
}

func (w *replyWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
