// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/errs"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/metrics"
	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
)

const sendAckTimeout = 15 * time.Second

// nodeSender is the subset of Connection the send path needs, kept as
// an interface so it can be exercised without a live socket.
type nodeSender interface {
	SendNode(*binary.Node) error
	WaitForAck(id string, timeout time.Duration) (*binary.Node, error)
}

// sendPath fans one plaintext payload out to every device a recipient
// has registered, encrypting independently per device since each has
// its own Double Ratchet session.
type sendPath struct {
	store  store.Store
	cipher *signal.SessionCipher
	log    *zap.SugaredLogger
	conn   nodeSender

	mu      sync.Mutex
	counter uint64
}

func newSendPath(st store.Store, log *zap.SugaredLogger, conn nodeSender) *sendPath {
	return &sendPath{
		store:  st,
		cipher: signal.NewSessionCipher(st),
		log:    log,
		conn:   conn,
	}
}

// Send encrypts plaintext for every known device of recipient's base
// user and sends one "message" stanza per device, waiting for each to
// be acked.
func (p *sendPath) Send(recipient jid.JID, plaintext []byte) error {
	sessions, err := p.store.GetAllSessionsForUser(recipient.User)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errs.ErrUnknownSession
	}

	padded, err := pad(plaintext)
	if err != nil {
		return err
	}

	var firstErr error
	for addr := range sessions {
		deviceJID := jid.JID{User: addr.User, Device: addr.Device, Server: recipient.Server}
		if err := p.sendToDevice(deviceJID, addr, padded); err != nil {
			p.log.Warnw("send to device failed", "device", deviceJID.String(), "error", err)
			metrics.MessagesSentTotal.WithLabelValues("timeout").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.MessagesSentTotal.WithLabelValues("acked").Inc()
	}
	return firstErr
}

func (p *sendPath) sendToDevice(deviceJID jid.JID, addr signal.Address, padded []byte) error {
	wireType, payload, err := p.cipher.Encrypt(addr, padded)
	if err != nil {
		return err
	}

	id := p.nextMessageID()
	enc := binary.NewNode("enc", map[string]string{"v": "2", "type": wireType})
	enc.Content = binary.BytesContent(payload)

	msg := binary.NewNode("message", map[string]string{
		"to":   deviceJID.String(),
		"id":   id,
		"type": "text",
	})
	msg.Content = binary.ChildrenContent(enc)

	if err := p.conn.SendNode(msg); err != nil {
		return err
	}

	_, err = p.conn.WaitForAck(id, sendAckTimeout)
	return err
}

// nextMessageID builds a stanza id in the "<4 hex>.<4 hex>-<epoch
// counter>" shape the wire protocol uses: two random hex groups so
// concurrent senders never collide, and a counter seeded from the
// current Unix time so ids from a fresh process never collide with
// ids a previous run of the same session already sent.
func (p *sendPath) nextMessageID() string {
	p.mu.Lock()
	if p.counter == 0 {
		p.counter = uint64(time.Now().Unix())
	}
	p.counter++
	n := p.counter
	p.mu.Unlock()

	var r [4]byte
	_, _ = rand.Read(r[:])
	return fmt.Sprintf("%X.%X-%d", r[:2], r[2:], n)
}

// pad applies WhatsApp's right-padding scheme: 1 to 16 random bytes
// whose value equals their own count, so unpad on the receiving side
// is a single length check.
func pad(plaintext []byte) ([]byte, error) {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	padLen := int(b[0]%16) + 1
	out := make([]byte, len(plaintext)+padLen)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out, nil
}
