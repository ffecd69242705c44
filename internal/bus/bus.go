// Package bus carries protocol messages between the capture coordinator and
// per-tab recorders. It mirrors browser-extension runtime messaging:
// delivery is synchronous request/response when a handler is registered and
// fails fast with ErrNoReceiver when the peer is gone. Callers treat
// ErrNoReceiver as an expected, non-fatal condition.
package bus

import (
	"errors"
	"sync"

	"github.com/stepcap/stepcap/internal/protocol"
)

// CoordinatorID is the reserved peer id the capture coordinator listens on.
const CoordinatorID = "coordinator"

// ErrNoReceiver reports that no handler is registered for the addressed
// peer. The distinguishing signature lets senders detect a torn-down peer
// and stop messaging it.
var ErrNoReceiver = errors.New("bus: no receiver registered")

// Handler processes one message and produces its response.
type Handler func(protocol.Message) protocol.Response

// Bus routes messages to registered handlers by peer id.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: map[string]Handler{}}
}

// Register installs the handler for a peer id, replacing any previous one.
func (b *Bus) Register(id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
}

// Unregister removes the peer. Messages sent to it afterwards fail with
// ErrNoReceiver.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Send delivers msg to the peer and returns its response.
func (b *Bus) Send(id string, msg protocol.Message) (protocol.Response, error) {
	b.mu.RLock()
	h, ok := b.handlers[id]
	b.mu.RUnlock()
	if !ok {
		return protocol.Response{}, ErrNoReceiver
	}
	return h(msg), nil
}

// Notify delivers msg and discards the response. The returned error is
// ErrNoReceiver when the peer is gone.
func (b *Bus) Notify(id string, msg protocol.Message) error {
	_, err := b.Send(id, msg)
	return err
}
