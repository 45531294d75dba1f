// Package events defines the typed events a client emits to callers and
// a small subscribe-with-cancel bus to deliver them, replacing the
// dynamic event-name emitter pattern with one concrete struct per kind.
package events

import "github.com/waconnect/waconnect-go/internal/jid"

// Kind identifies which typed payload an Event carries.
type Kind int

const (
	KindConnectionUpdate Kind = iota
	KindCredsUpdate
	KindMessageReceived
	KindMessageDecryptionError
	KindNodeReceived
	KindNodeSent
)

// ConnectionUpdate reports a change in connection state, a freshly
// issued pairing QR string, or a fatal connection error.
type ConnectionUpdate struct {
	Connection string // "connecting", "open", "closed"
	IsNewLogin bool
	QR         string
	Error      error
}

// CredsUpdate carries the partial credential diff that was just
// durably saved; emitted only after the store write has resolved.
type CredsUpdate struct {
	Diff map[string]interface{}
}

// MessageReceived is a successfully decrypted inbound message.
type MessageReceived struct {
	Message    []byte // decoded protobuf Message, opaque to this layer
	Sender     jid.JID
	RawStanza  interface{}
}

// MessageDecryptionError reports a message stanza that failed to
// decrypt or otherwise decode into a usable Message.
type MessageDecryptionError struct {
	Err       error
	RawStanza interface{}
	Sender    *jid.JID
}

// NodeReceived/NodeSent mirror raw stanza traffic for logging/debugging.
type NodeReceived struct{ Stanza interface{} }
type NodeSent struct{ Stanza interface{} }

// Event pairs a Kind with its payload so a single channel can carry
// every event type; callers type-switch on Payload.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Bus fans a stream of Events out to any number of subscribers. The
// zero value is not usable; use NewBus.
type Bus struct {
	subs   chan chan Event
	unsubs chan chan Event
	pub    chan Event
	quit   chan struct{}
}

// NewBus starts the bus's dispatch loop and returns it. Callers must
// call Close when done to release the goroutine.
func NewBus() *Bus {
	b := &Bus{
		subs:   make(chan chan Event),
		unsubs: make(chan chan Event),
		pub:    make(chan Event, 64),
		quit:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	subscribers := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subs:
			subscribers[ch] = struct{}{}
		case ch := <-b.unsubs:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}
		case ev := <-b.pub:
			for ch := range subscribers {
				select {
				case ch <- ev:
				default:
				}
			}
		case <-b.quit:
			for ch := range subscribers {
				close(ch)
			}
			return
		}
	}
}

// Emit publishes an event to every current subscriber, dropping it for
// any subscriber whose channel is currently full rather than blocking.
func (b *Bus) Emit(kind Kind, payload interface{}) {
	select {
	case b.pub <- Event{Kind: kind, Payload: payload}:
	case <-b.quit:
	}
}

// Subscribe registers a new listener and returns the channel it will
// receive events on, plus a cancel function that unregisters it and
// closes the channel. Cancel is idempotent.
func (b *Bus) Subscribe() (ch <-chan Event, cancel func()) {
	c := make(chan Event, 32)
	select {
	case b.subs <- c:
	case <-b.quit:
		close(c)
		return c, func() {}
	}
	var cancelled bool
	return c, func() {
		if cancelled {
			return
		}
		cancelled = true
		select {
		case b.unsubs <- c:
		case <-b.quit:
		}
	}
}

// Close shuts the bus down, closing every subscriber channel.
func (b *Bus) Close() {
	close(b.quit)
}
