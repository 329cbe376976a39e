package serial

import "sync"

// rxBuffer holds bytes received by a driver until they are drained, and
// invokes the armed handler after every append. A driver whose receive
// loop dies reports it through fail.
type rxBuffer struct {
	mu     sync.Mutex
	data   []byte
	ready  func()
	failed func(error)
}

func (b *rxBuffer) arm(fn func()) {
	b.mu.Lock()
	b.ready = fn
	b.mu.Unlock()
}

func (b *rxBuffer) armFailure(fn func(error)) {
	b.mu.Lock()
	b.failed = fn
	b.mu.Unlock()
}

// disarm drops both handlers
func (b *rxBuffer) disarm() {
	b.mu.Lock()
	b.ready = nil
	b.failed = nil
	b.mu.Unlock()
}

func (b *rxBuffer) fail(err error) {
	b.mu.Lock()
	fn := b.failed
	b.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

func (b *rxBuffer) push(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	fn := b.ready
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (b *rxBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *rxBuffer) drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := b.data
	b.data = nil
	return out
}
