// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/store"
	"github.com/waconnect/waconnect-go/internal/store/memstore"
	"github.com/waconnect/waconnect-go/internal/wap"
	"github.com/waconnect/waconnect-go/internal/webhook"
)

func newTestWAClient(t *testing.T) (*WAClient, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	c := &WAClient{
		ID:             "session-under-test",
		log:            zap.NewNop().Sugar(),
		status:         StatusInitializing,
		lastActivityAt: time.Now(),
		store:          memstore.New(),
		bus:            bus,
	}

	ch, cancel := bus.Subscribe()
	t.Cleanup(cancel)
	go c.watch(ch)

	return c, bus
}

// capturingWebhookServer records every delivered payload for a given
// event type, unblocking a channel the test waits on.
func capturingWebhookServer(t *testing.T) (*httptest.Server, <-chan webhook.Event) {
	t.Helper()
	received := make(chan webhook.Event, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func TestWatchTransitionsToQRReadyOnConnectingWithQR(t *testing.T) {
	c, bus := newTestWAClient(t)

	bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "connecting", QR: "2@abc,def"})

	require.Eventually(t, func() bool { return c.GetStatus() == StatusQRReady }, time.Second, time.Millisecond)
	require.Equal(t, "2@abc,def", c.GetQRCode())
}

func TestWatchTransitionsToReadyAndResolvesPhoneNumber(t *testing.T) {
	c, bus := newTestWAClient(t)
	require.NoError(t, c.store.SaveCredentials(&store.Credentials{
		Me: &store.MeInfo{JID: jid.JID{User: "15551234567", Server: jid.ServerDefault}},
	}))

	bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "open"})

	require.Eventually(t, func() bool { return c.GetStatus() == StatusReady }, time.Second, time.Millisecond)
	require.Equal(t, "15551234567", c.GetPhoneNumber())
	info := c.GetSession()
	require.NotNil(t, info.ConnectedAt)
}

func TestWatchTransitionsToDisconnectedOnClose(t *testing.T) {
	c, bus := newTestWAClient(t)
	bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "open"})
	require.Eventually(t, func() bool { return c.GetStatus() == StatusReady }, time.Second, time.Millisecond)

	bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "closed"})
	require.Eventually(t, func() bool { return c.GetStatus() == StatusDisconnected }, time.Second, time.Millisecond)
}

func TestWatchDispatchesQRReadyWebhook(t *testing.T) {
	c, bus := newTestWAClient(t)
	srv, received := capturingWebhookServer(t)

	d := webhook.NewDispatcher(zap.NewNop().Sugar())
	_, err := d.Register(srv.URL, []string{webhook.EventSessionQRReady}, "")
	require.NoError(t, err)
	c.SetDispatcher(d)

	bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "connecting", QR: "2@xyz"})

	select {
	case ev := <-received:
		require.Equal(t, webhook.EventSessionQRReady, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWatchDispatchesMessageReceivedWebhookWithDecodedText(t *testing.T) {
	c, bus := newTestWAClient(t)
	srv, received := capturingWebhookServer(t)

	d := webhook.NewDispatcher(zap.NewNop().Sugar())
	_, err := d.Register(srv.URL, []string{webhook.EventMessageReceived}, "")
	require.NoError(t, err)
	c.SetDispatcher(d)

	sender := jid.JID{User: "15557654321", Server: jid.ServerDefault}
	payload := wap.EncodeMessage(&wap.Message{Conversation: "hi there"})
	bus.Emit(events.KindMessageReceived, events.MessageReceived{Message: payload, Sender: sender})

	select {
	case ev := <-received:
		require.Equal(t, webhook.EventMessageReceived, ev.Type)
		data, ok := ev.Data.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "hi there", data["text"])
		require.Equal(t, sender.String(), data["from"])
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	require.Eventually(t, func() bool { return c.GetSession().MessagesReceived == 1 }, time.Second, time.Millisecond)
}

func TestSendTextRejectsWhenNotReady(t *testing.T) {
	c, _ := newTestWAClient(t)
	_, err := c.SendText("15551234567@s.whatsapp.net", "hello")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendTextRejectsInvalidRecipient(t *testing.T) {
	c, _ := newTestWAClient(t)
	c.mu.Lock()
	c.status = StatusReady
	c.mu.Unlock()

	_, err := c.SendText("not-a-jid", "hello")
	require.Error(t, err)
}

func TestDisconnectIsSafeWithoutAConnection(t *testing.T) {
	c, _ := newTestWAClient(t)
	c.Disconnect()
	require.Equal(t, StatusDisconnected, c.GetStatus())
	require.Empty(t, c.GetQRCode())
}

// concurrentAccessIsRaceFree exercises GetStatus/GetSession under
// concurrent writes from watch, the pattern -race is meant to catch.
func TestGetSessionIsRaceFreeUnderConcurrentUpdates(t *testing.T) {
	c, bus := newTestWAClient(t)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			bus.Emit(events.KindMessageReceived, events.MessageReceived{
				Message: wap.EncodeMessage(&wap.Message{Conversation: "x"}),
				Sender:  jid.JID{User: "1", Server: jid.ServerDefault},
			})
		}
	}()
	for i := 0; i < 50; i++ {
		_ = c.GetSession()
	}
	wg.Wait()
}
