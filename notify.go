package serial

import (
	"strings"
	"sync"
)

// Callback receives a text payload
type Callback func(payload string)

// Target is a success/failure callback pair registered for unsolicited
// data. Received bytes are delivered to Success, encoded with Encode.
type Target struct {
	Success Callback
	Failure Callback
}

// IsZero reports whether no success callback is set
func (t Target) IsZero() bool {
	return t.Success == nil
}

// notifier holds at most one target. Delivery is a direct call, nothing
// is queued for a target registered later.
type notifier struct {
	mu     sync.RWMutex
	target Target
}

func (n *notifier) register(t Target) {
	n.mu.Lock()
	n.target = t
	n.mu.Unlock()
}

func (n *notifier) current() Target {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.target
}

// fail reports err to the registered target's failure callback as a
// single-quoted description
func (n *notifier) fail(err error) {
	t := n.current()
	if t.Failure == nil {
		return
	}
	t.Failure("'" + strings.ReplaceAll(err.Error(), "'", "") + "'")
}

// deliver hands data to the registered target and reports whether there
// was one.
func (n *notifier) deliver(data []byte) bool {
	t := n.current()
	if t.IsZero() {
		return false
	}
	t.Success(Encode(data))
	return true
}
