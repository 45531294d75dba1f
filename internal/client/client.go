// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package client wraps internal/core's Connection behind a
// session-oriented API: named sessions, each with its own store,
// event bus, and lifecycle, the shape a multi-tenant HTTP gateway
// needs on top of a connection that only ever speaks for one device.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/config"
	"github.com/waconnect/waconnect-go/internal/core"
	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/store"
	"github.com/waconnect/waconnect-go/internal/store/sqlstore"
	"github.com/waconnect/waconnect-go/internal/wap"
	"github.com/waconnect/waconnect-go/internal/webhook"
)

// SessionStatus mirrors the lifecycle a caller cares about, coarser
// than core.ConnectionState since it folds in whether pairing has
// completed.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "INITIALIZING"
	StatusConnecting   SessionStatus = "CONNECTING"
	StatusQRReady      SessionStatus = "QR_READY"
	StatusReady        SessionStatus = "READY"
	StatusDisconnected SessionStatus = "DISCONNECTED"
)

var (
	ErrSessionExists   = errors.New("client: session already exists")
	ErrSessionNotFound = errors.New("client: session not found")
	ErrNotConnected    = errors.New("client: not connected")
)

// WAClient is one named WhatsApp device session: its own store, event
// bus, and core.Connection.
type WAClient struct {
	ID  string
	log *zap.SugaredLogger

	mu               sync.RWMutex
	status           SessionStatus
	phoneNumber      string
	qrCode           string
	connectedAt      *time.Time
	lastActivityAt   time.Time
	messagesSent     int
	messagesReceived int

	store      store.Store
	bus        *events.Bus
	conn       *core.Connection
	cancel     context.CancelFunc
	dispatcher *webhook.Dispatcher
}

// SetDispatcher wires outbound webhook notifications for this
// session's connection/message lifecycle events. Must be called
// before Connect to avoid missing early events.
func (c *WAClient) SetDispatcher(d *webhook.Dispatcher) {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
}

// Message is a decrypted inbound message handed to API consumers.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds a session backed by a SQLite store at dbPath. The
// connection is not dialed until Connect is called.
func New(sessionID, dbPath string, log *zap.SugaredLogger) (*WAClient, error) {
	st, err := sqlstore.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &WAClient{
		ID:             sessionID,
		log:            log,
		status:         StatusInitializing,
		lastActivityAt: time.Now(),
		store:          st,
		bus:            events.NewBus(),
	}, nil
}

// Connect dials the connection and starts watching its event bus for
// QR/ready/close transitions and inbound messages.
func (c *WAClient) Connect() error {
	c.mu.Lock()
	c.status = StatusConnecting
	c.mu.Unlock()

	cfg := config.Load()
	c.conn = core.New(cfg, c.store, c.bus, c.log)

	ch, cancelSub := c.bus.Subscribe()
	go c.watch(ch)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = func() {
		cancelSub()
		cancel()
	}

	if err := c.conn.Connect(ctx); err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *WAClient) watch(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.KindConnectionUpdate:
			u := ev.Payload.(events.ConnectionUpdate)
			c.mu.Lock()
			c.lastActivityAt = time.Now()
			dispatcher := c.dispatcher
			switch u.Connection {
			case "connecting":
				if u.QR != "" {
					c.status = StatusQRReady
					c.qrCode = u.QR
				}
			case "open":
				now := time.Now()
				c.status = StatusReady
				c.connectedAt = &now
				if creds, err := c.store.LoadCredentials(); err == nil && creds != nil && creds.Me != nil {
					c.phoneNumber = creds.Me.JID.User
				}
			case "closed":
				c.status = StatusDisconnected
			}
			c.mu.Unlock()

			if dispatcher == nil {
				continue
			}
			switch u.Connection {
			case "connecting":
				if u.QR != "" {
					dispatcher.Dispatch(webhook.EventSessionQRReady, eventPayload{"sessionId": c.ID, "qr": u.QR})
				}
			case "open":
				dispatcher.Dispatch(webhook.EventSessionConnected, eventPayload{"sessionId": c.ID, "phoneNumber": c.GetPhoneNumber()})
			case "closed":
				dispatcher.Dispatch(webhook.EventSessionDisconnected, eventPayload{"sessionId": c.ID})
			}
		case events.KindMessageReceived:
			m := ev.Payload.(events.MessageReceived)
			c.mu.Lock()
			c.messagesReceived++
			c.lastActivityAt = time.Now()
			dispatcher := c.dispatcher
			c.mu.Unlock()

			if dispatcher == nil {
				continue
			}
			decoded, err := wap.DecodeMessage(m.Message)
			text := ""
			if err == nil {
				text = decoded.Conversation
			}
			dispatcher.Dispatch(webhook.EventMessageReceived, eventPayload{
				"sessionId": c.ID,
				"from":      m.Sender.String(),
				"text":      text,
			})
		}
	}
}

// eventPayload is a plain string-keyed payload map handed to the
// webhook dispatcher for JSON serialization.
type eventPayload = map[string]interface{}

// Disconnect tears down the connection and stops the event watcher.
func (c *WAClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.status = StatusDisconnected
	c.qrCode = ""
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *WAClient) GetStatus() SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *WAClient) GetQRCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.qrCode
}

func (c *WAClient) GetPhoneNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phoneNumber
}

func (c *WAClient) GetSession() SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SessionInfo{
		ID:               c.ID,
		Status:           c.status,
		PhoneNumber:      c.phoneNumber,
		ConnectedAt:      c.connectedAt,
		LastActivityAt:   c.lastActivityAt,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
	}
}

// SendText encrypts and sends a text message to every device
// registered for the recipient, waiting for delivery acks.
func (c *WAClient) SendText(to, text string) (*MessageResult, error) {
	c.mu.RLock()
	ready := c.status == StatusReady
	c.mu.RUnlock()
	if !ready {
		return nil, ErrNotConnected
	}

	recipient, err := jid.Parse(to)
	if err != nil {
		return nil, err
	}

	plaintext := wap.EncodeMessage(&wap.Message{Conversation: text})
	if err := c.conn.Send(recipient, plaintext); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.messagesSent++
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	return &MessageResult{
		MessageID: c.ID + "-" + time.Now().Format("20060102150405"),
		Timestamp: time.Now(),
	}, nil
}

// SessionInfo is the JSON-serializable view of a session's state.
type SessionInfo struct {
	ID               string        `json:"id"`
	Status           SessionStatus `json:"status"`
	PhoneNumber      string        `json:"phoneNumber,omitempty"`
	ConnectedAt      *time.Time    `json:"connectedAt,omitempty"`
	LastActivityAt   time.Time     `json:"lastActivityAt"`
	MessagesSent     int           `json:"messagesSent"`
	MessagesReceived int           `json:"messagesReceived"`
}

// MessageResult is the result of a successful send.
type MessageResult struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}
