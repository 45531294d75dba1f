// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/store/memstore"
)

func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

func plaintextMessageNode(id, from string, payload []byte) *binary.Node {
	enc := binary.NewNode("enc", map[string]string{"v": "2", "type": "plaintext"})
	enc.Content = binary.BytesContent(payload)
	msg := binary.NewNode("message", map[string]string{"id": id, "from": from, "type": "text"})
	msg.Content = binary.ChildrenContent(enc)
	return msg
}

func TestMessageProcessorDeliversPlaintext(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	p := newMessageProcessor(st, bus, newTestLogger(t))
	p.HandleNode(plaintextMessageNode("1.0-1", "111@s.whatsapp.net", []byte("hello")))

	ev := <-ch
	require.Equal(t, events.KindMessageReceived, ev.Kind)
	mr := ev.Payload.(events.MessageReceived)
	require.Equal(t, []byte("hello"), mr.Message)
	require.Equal(t, "111", mr.Sender.User)
}

func TestMessageProcessorDropsDuplicates(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	p := newMessageProcessor(st, bus, newTestLogger(t))
	node := plaintextMessageNode("dup-1", "222@s.whatsapp.net", []byte("once"))

	p.HandleNode(node)
	<-ch // first delivery

	p.HandleNode(node)
	select {
	case ev := <-ch:
		t.Fatalf("expected no second delivery, got %+v", ev)
	default:
	}
}

func TestMessageProcessorUsesParticipantForGroupSender(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	p := newMessageProcessor(st, bus, newTestLogger(t))
	node := plaintextMessageNode("g-1", "group123@g.us", []byte("group text"))
	node.Attrs["participant"] = "333@s.whatsapp.net"
	p.HandleNode(node)

	ev := <-ch
	mr := ev.Payload.(events.MessageReceived)
	require.Equal(t, "333", mr.Sender.User)
}

func TestMessageProcessorReportsUnsupportedSenderKeyMessages(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	p := newMessageProcessor(st, bus, newTestLogger(t))
	enc := binary.NewNode("enc", map[string]string{"v": "2", "type": "skmsg"})
	enc.Content = binary.BytesContent([]byte("ciphertext"))
	msg := binary.NewNode("message", map[string]string{"id": "sk-1", "from": "group@g.us", "type": "text"})
	msg.Content = binary.ChildrenContent(enc)
	p.HandleNode(msg)

	ev := <-ch
	require.Equal(t, events.KindMessageDecryptionError, ev.Kind)
}

func TestUnpadRejectsInvalidLength(t *testing.T) {
	_, err := unpad([]byte{})
	require.Error(t, err)

	_, err = unpad([]byte{0})
	require.Error(t, err)

	out, err := unpad([]byte{'h', 'i', 2, 2})
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), out)
}
