// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/metrics"
	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
)

// messageProcessor turns inbound "message" stanzas into decrypted
// plaintext, deduplicating against the store's processed-id cache and
// dispatching decryption by the enc child's wire type.
type messageProcessor struct {
	store  store.Store
	cipher *signal.SessionCipher
	bus    *events.Bus
	log    *zap.SugaredLogger
}

func newMessageProcessor(st store.Store, bus *events.Bus, log *zap.SugaredLogger) *messageProcessor {
	return &messageProcessor{
		store:  st,
		cipher: signal.NewSessionCipher(st),
		bus:    bus,
		log:    log,
	}
}

// HandleNode processes one inbound "message" stanza. Non-message
// stanzas (receipts) are ignored here; the connection manager routes
// those elsewhere.
func (p *messageProcessor) HandleNode(n *binary.Node) {
	if n.Tag != "message" {
		return
	}

	id := n.AttrString("id")
	from := n.AttrString("from")
	if id == "" || from == "" {
		return
	}

	chatJID, err := jid.Parse(from)
	if err != nil {
		p.log.Warnw("message from unparsable jid", "from", from, "error", err)
		return
	}

	seen, err := p.store.IsProcessed(chatJID.ToNonAD().String(), id)
	if err != nil {
		p.log.Errorw("dedupe check failed", "id", id, "error", err)
		return
	}
	if seen {
		metrics.DuplicateMessagesDroppedTotal.Inc()
		return
	}

	senderJID := chatJID
	if participant := n.AttrString("participant"); participant != "" {
		senderJID, err = jid.Parse(participant)
		if err != nil {
			p.log.Warnw("message participant unparsable", "participant", participant, "error", err)
			return
		}
	}

	enc := n.GetChildByTag("enc")
	if enc == nil {
		return
	}

	plaintext, err := p.decrypt(senderJID, enc)
	if err != nil {
		metrics.DecryptionFailuresTotal.WithLabelValues(encReason(enc)).Inc()
		p.bus.Emit(events.KindMessageDecryptionError, events.MessageDecryptionError{
			Err:       err,
			RawStanza: n,
			Sender:    &senderJID,
		})
		return
	}

	metrics.MessagesDecryptedTotal.Inc()
	p.bus.Emit(events.KindMessageReceived, events.MessageReceived{
		Message:   plaintext,
		Sender:    senderJID,
		RawStanza: n,
	})
}

func encReason(enc *binary.Node) string {
	t := enc.AttrString("type")
	if t == "" {
		return "unknown"
	}
	return t
}

// decrypt dispatches on the enc child's wire type: pkmsg/msg go through
// the Double Ratchet session cipher, skmsg (sender-key group messages)
// is surfaced as its own decryption-error taxonomy since group session
// handling is not implemented, and plaintext is returned as-is without
// the PKCS#7-style right-padding session messages carry.
func (p *messageProcessor) decrypt(sender jid.JID, enc *binary.Node) ([]byte, error) {
	wireType := enc.AttrString("type")
	payload := enc.GetBytes()

	switch wireType {
	case "pkmsg", "msg":
		addr := signal.NewAddress(sender)
		pt, err := p.cipher.Decrypt(addr, wireType, payload)
		if err != nil {
			return nil, err
		}
		return unpad(pt)
	case "skmsg":
		return nil, &signal.DecryptionError{Reason: "sender-key group messages are not supported"}
	case "plaintext":
		return payload, nil
	default:
		return nil, &signal.DecryptionError{Reason: "unknown enc type " + wireType}
	}
}

// unpad strips the trailing right-pad byte WhatsApp applies to every
// non-plaintext message plaintext: the last byte gives the pad length,
// 1 to 16 inclusive.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, &signal.DecryptionError{Reason: "empty plaintext"}
	}
	padLen := int(b[len(b)-1])
	if padLen < 1 || padLen > 16 || padLen > len(b) {
		return nil, &signal.DecryptionError{Reason: "invalid message padding"}
	}
	return b[:len(b)-padLen], nil
}
