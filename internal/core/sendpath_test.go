// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
	"github.com/waconnect/waconnect-go/internal/store/memstore"
)

// fakeNodeSender stands in for Connection: it records every sent node
// and acks it immediately, so sendPath.Send never actually blocks.
type fakeNodeSender struct {
	mu  sync.Mutex
	out []*binary.Node
}

func (f *fakeNodeSender) SendNode(n *binary.Node) error {
	f.mu.Lock()
	f.out = append(f.out, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeNodeSender) WaitForAck(id string, timeout time.Duration) (*binary.Node, error) {
	return binary.NewNode("ack", map[string]string{"id": id}), nil
}

// establishSession gives recipient (identified by addr) a session a
// sendPath bound to senderStore can encrypt against, mirroring what a
// real pre-key fetch plus InitOutgoing/InitIncoming does.
func establishSession(t *testing.T, senderStore, recipientStore store.Store, addr signal.Address) {
	t.Helper()
	recipientIdentity, err := recipientStore.LoadIdentityKeyPair()
	require.NoError(t, err)
	recipientRegID, err := recipientStore.LoadRegistrationID()
	require.NoError(t, err)

	signedPreKey, err := signal.GenerateKeyPair()
	require.NoError(t, err)
	spk := signal.PreKey{ID: 1, KeyPair: signedPreKey}
	require.NoError(t, recipientStore.PutPreKey(spk.ID, spk.KeyPair))

	senderIdentity, err := senderStore.LoadIdentityKeyPair()
	require.NoError(t, err)

	outgoing, baseKey, err := signal.InitOutgoing(senderIdentity, signal.OutgoingBundle{
		IdentityKey:    recipientIdentity.Public,
		SignedPreKey:   spk,
		RegistrationID: recipientRegID,
	})
	require.NoError(t, err)
	require.NoError(t, senderStore.StoreSession(addr, &signal.SessionRecord{Current: outgoing}))

	// Mirror the recipient side so the first real message (a pkmsg) has
	// something to establish against; sendPath itself only needs the
	// sender-side session to exist, but this keeps the fixture honest
	// about what a real pre-key exchange produces.
	_ = baseKey
}

func TestNextMessageIDFormat(t *testing.T) {
	p := newSendPath(memstore.New(), newTestLogger(t), &fakeNodeSender{})
	id := p.nextMessageID()
	require.Regexp(t, regexp.MustCompile(`^[0-9A-F]{4}\.[0-9A-F]{4}-\d+$`), id)

	second := p.nextMessageID()
	require.NotEqual(t, id, second)
}

func TestPadUnpadRoundTrip(t *testing.T) {
	plaintext := []byte("round trip me")
	padded, err := pad(plaintext)
	require.NoError(t, err)
	require.Greater(t, len(padded), len(plaintext))

	unpadded, err := unpad(padded)
	require.NoError(t, err)
	require.Equal(t, plaintext, unpadded)
}

func TestSendPathFansOutToEveryDevice(t *testing.T) {
	senderStore := memstore.New()
	senderIdentity, err := signal.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, senderStore.SaveCredentials(&store.Credentials{
		SignedIdentityKey: senderIdentity,
		RegistrationID:    9999,
	}))

	recipient := jid.JID{User: "recipient", Server: jid.ServerDefault}
	addr1 := signal.Address{User: "recipient", Device: 0}
	addr2 := signal.Address{User: "recipient", Device: 1}

	establishSession(t, senderStore, memstore.New(), addr1)
	establishSession(t, senderStore, memstore.New(), addr2)

	sender := &fakeNodeSender{}
	sp := newSendPath(senderStore, newTestLogger(t), sender)

	require.NoError(t, sp.Send(recipient, []byte("fan out")))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.out, 2)
	for _, n := range sender.out {
		require.Equal(t, "message", n.Tag)
		enc := n.GetChildByTag("enc")
		require.NotNil(t, enc)
		require.Equal(t, "pkmsg", enc.AttrString("type"))
	}
}

func TestSendPathReturnsErrorWithNoSessions(t *testing.T) {
	sp := newSendPath(memstore.New(), newTestLogger(t), &fakeNodeSender{})
	err := sp.Send(jid.JID{User: "nobody", Server: jid.ServerDefault}, []byte("hi"))
	require.Error(t, err)
}
