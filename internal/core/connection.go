// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package core wires the lower-level transport, cryptography, and
// stanza-codec packages into a single connection lifecycle: dial,
// Noise handshake, pairing/login, then steady-state stanza exchange.
package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/auth"
	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/config"
	"github.com/waconnect/waconnect-go/internal/errs"
	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/metrics"
	"github.com/waconnect/waconnect-go/internal/noise"
	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/signal/xeddsa"
	"github.com/waconnect/waconnect-go/internal/socket"
	"github.com/waconnect/waconnect-go/internal/store"
	"github.com/waconnect/waconnect-go/internal/wap"
)

// ConnectionState is a step in the dial/handshake/login lifecycle.
type ConnectionState int

const (
	StateClosed ConnectionState = iota
	StateConnecting
	StateHandshaking
	StateAuthenticating
	StateOpen
	StateClosing
)

const defaultAckTimeout = 15 * time.Second

// djbCurveType is the libsignal key-type byte prefixing every
// Curve25519 public key exchanged on the wire (ADV identities, signed
// pre-key signatures, device-pairing registration data).
const djbCurveType = 5

// Connection owns one WebSocket dial's worth of transport and
// cryptographic state: the socket, the post-handshake Noise cipher, the
// pairing/login authenticator, and the table of stanzas awaiting a
// server ack. Node-level consumers (the authenticator, the message
// processor, the send path) never touch the socket or cipher directly.
type Connection struct {
	cfg   *config.Config
	store store.Store
	bus   *events.Bus
	log   *zap.SugaredLogger
	auth  *auth.Authenticator
	msgs  *messageProcessor
	send  *sendPath

	messageHandler func(*binary.Node)

	mu          sync.Mutex
	state       ConnectionState
	socket      *socket.Socket
	cipher      *noise.Cipher
	handshakeCh chan []byte
	pendingAcks map[string]chan *binary.Node

	sendMu sync.Mutex

	runCancel context.CancelFunc
}

// New builds a Connection against the given config and store. The
// returned value dials nothing until Connect is called.
func New(cfg *config.Config, st store.Store, bus *events.Bus, log *zap.SugaredLogger) *Connection {
	c := &Connection{
		cfg:   cfg,
		store: st,
		bus:   bus,
		log:   log,
		state: StateClosed,
	}
	c.auth = auth.New(st, bus, log, c.sendNode)
	c.msgs = newMessageProcessor(st, bus, log)
	c.send = newSendPath(st, log, c)
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMessageHandler registers the callback invoked for every inbound
// "message" or "receipt" stanza once the connection is open. Must be
// called before Connect.
func (c *Connection) SetMessageHandler(fn func(*binary.Node)) {
	c.messageHandler = fn
}

// Connect dials the transport, completes the Noise handshake, and
// sends the client login/registration payload. It returns once the
// handshake is finished; pairing and login completion arrive
// asynchronously as events.ConnectionUpdate on the event bus.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return errs.Newf("core: connect called while connection is %v", c.state)
	}
	c.state = StateConnecting
	c.cipher = nil
	c.handshakeCh = make(chan []byte, 1)
	c.pendingAcks = make(map[string]chan *binary.Node)
	c.mu.Unlock()
	metrics.ConnectionState.Set(float64(StateConnecting))

	c.auth.Reset()

	creds, err := c.loadOrCreateCredentials()
	if err != nil {
		c.setState(StateClosed)
		return err
	}

	c.socket = socket.New(c.log, c.cfg.WebsocketURL)
	c.socket.RoutingInfo = creds.RoutingInfo
	c.socket.OnFrame = c.onFrame
	c.socket.OnClose = c.handleSocketClose

	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.ConnectTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := c.socket.Dial(dialCtx); err != nil {
		c.setState(StateClosed)
		return err
	}

	var runCtx context.Context
	runCtx, c.runCancel = context.WithCancel(context.Background())
	go c.socket.ReadLoop(runCtx)

	c.setState(StateHandshaking)
	if err := c.performHandshake(ctx, creds); err != nil {
		_ = c.Close()
		return err
	}

	c.setState(StateAuthenticating)
	c.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "connecting"})
	return nil
}

// loadOrCreateCredentials loads stored credentials, generating and
// persisting a fresh identity the first time a connection is made, so
// routing info (when present) is known before the socket dials.
func (c *Connection) loadOrCreateCredentials() (*store.Credentials, error) {
	creds, err := c.store.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if creds == nil {
		creds, err = newCredentials()
		if err != nil {
			return nil, err
		}
		if err := c.store.SaveCredentials(creds); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

func (c *Connection) performHandshake(ctx context.Context, creds *store.Credentials) error {
	start := time.Now()

	hs, err := noise.NewHandshake(toNoiseKeyPair(creds.NoiseKey), socket.NoiseWAHeader)
	if err != nil {
		return err
	}

	if err := c.socket.WriteFrame(ctx, hs.WriteClientHello()); err != nil {
		return err
	}

	serverHello, err := c.awaitHandshakeFrame(ctx)
	if err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}

	certPayload, serverStatic, err := hs.ReadServerHello(serverHello)
	if err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}

	chain, err := wap.DecodeCertChain(certPayload)
	if err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}
	if err := noise.VerifyCertChain(chain, serverStatic, noise.WhatsAppRootCAPublicKey); err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}

	payload := wap.EncodeClientPayload(c.buildClientPayload(creds))
	finish, cipher, err := hs.WriteClientFinish(payload)
	if err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}
	if err := c.socket.WriteFrame(ctx, finish); err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}

	c.mu.Lock()
	c.cipher = cipher
	c.mu.Unlock()

	metrics.HandshakeAttemptsTotal.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (c *Connection) awaitHandshakeFrame(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.handshakeCh:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildClientPayload builds the frame-3 ClientFinish payload: a login
// payload (username/device/pull=true/passive=false) when creds already
// identify a registered device, otherwise a registration payload
// carrying the device-pairing data the server needs to start pairing a
// new device.
func (c *Connection) buildClientPayload(creds *store.Credentials) *wap.ClientPayload {
	ua := &wap.UserAgent{
		Platform:   c.cfg.Browser.Platform,
		AppVersion: formatVersion(c.cfg.Version),
		OSVersion:  c.cfg.Browser.Name,
	}
	payload := &wap.ClientPayload{UserAgent: ua}

	if creds.Registered && creds.Me != nil {
		if n, err := strconv.ParseUint(creds.Me.JID.User, 10, 64); err == nil {
			payload.Username = n
		}
		payload.Device = uint32(creds.Me.JID.Device)
		payload.Passive = false
		payload.Pull = true
		return payload
	}

	payload.Passive = false
	payload.Pairing = buildDevicePairingData(creds, c.cfg.Version)
	return payload
}

// buildDevicePairingData assembles the registration-data fields a new
// device sends on its very first ClientFinish: the registration id,
// the Curve25519 identity and signed pre-key material already sitting
// in creds, and a build hash over the advertised client version.
func buildDevicePairingData(creds *store.Credentials, version config.Version) *wap.DevicePairingData {
	buildHash := sha256.Sum256([]byte(formatVersion(version)))
	return &wap.DevicePairingData{
		ERegID:    wap.EncodeUint32BE(creds.RegistrationID),
		EKeyType:  []byte{djbCurveType},
		EIdent:    creds.SignedIdentityKey.Public[:],
		ESkeyID:   wap.EncodeUint24BE(creds.SignedPreKey.ID),
		ESkeyVal:  creds.SignedPreKey.KeyPair.Public[:],
		ESkeySig:  creds.SignedPreKey.Signature,
		BuildHash: buildHash[:],
	}
}

func formatVersion(v config.Version) string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}

// onFrame is the socket's single entry point for inbound bytes. Frames
// arriving before the handshake cipher is established are routed to
// the handshake's own waiter instead of the steady-state stanza path.
func (c *Connection) onFrame(payload []byte) {
	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()

	if cipher == nil {
		select {
		case c.handshakeCh <- payload:
		default:
			c.log.Warnw("dropped unexpected pre-handshake frame")
		}
		return
	}

	metrics.FramesReceivedTotal.Inc()
	plaintext, err := cipher.Decrypt(payload)
	if err != nil {
		c.log.Errorw("frame decrypt failed", "error", err)
		return
	}
	node, err := binary.Unmarshal(plaintext)
	if err != nil {
		c.log.Errorw("node decode failed", "error", err)
		return
	}
	if node == nil {
		return
	}

	c.bus.Emit(events.KindNodeReceived, events.NodeReceived{Stanza: node})
	c.handleNode(node)
}

func (c *Connection) handleNode(n *binary.Node) {
	switch n.Tag {
	case "stream:error":
		code := n.AttrString("code")
		if code == "515" {
			c.fail(errs.ErrStreamRestartRequired)
		} else {
			c.fail(errs.Newf("core: stream error code %s", code))
		}
		return
	case "ack":
		if c.resolveAck(n) {
			return
		}
	case "iq":
		if n.AttrString("xmlns") == "urn:xmpp:ping" && n.AttrString("type") == "get" {
			c.handlePing(n)
			return
		}
		if c.resolveAck(n) {
			return
		}
	}

	if st := c.State(); st == StateAuthenticating || st == StateOpen {
		prevAuthState := c.auth.State()
		if err := c.auth.HandleIncoming(n); err != nil {
			c.log.Warnw("authenticator rejected stanza", "tag", n.Tag, "error", err)
		}
		if prevAuthState != auth.StateAuthenticated && c.auth.State() == auth.StateAuthenticated {
			c.setState(StateOpen)
		}
	}

	if n.Tag == "message" {
		c.msgs.HandleNode(n)
	}

	if c.messageHandler != nil && (n.Tag == "message" || n.Tag == "receipt") {
		c.messageHandler(n)
	}
}

// Send delivers plaintext to every device registered for recipient,
// returning once every per-device stanza has either been acked or
// timed out.
func (c *Connection) Send(recipient jid.JID, plaintext []byte) error {
	return c.send.Send(recipient, plaintext)
}

// resolveAck delivers n to a pending send-path waiter keyed by stanza
// id, reporting whether one was found.
func (c *Connection) resolveAck(n *binary.Node) bool {
	id := n.AttrString("id")
	if id == "" {
		return false
	}
	c.mu.Lock()
	ch, ok := c.pendingAcks[id]
	if ok {
		delete(c.pendingAcks, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- n
	return true
}

func (c *Connection) handlePing(n *binary.Node) {
	reply := binary.NewNode("iq", map[string]string{
		"id":    n.AttrString("id"),
		"to":    jid.ServerDefault,
		"type":  "result",
		"xmlns": "w:p",
	})
	if err := c.sendNode(reply); err != nil {
		c.log.Warnw("ping reply failed", "error", err)
	}
}

// SendNode encodes, encrypts, and writes a stanza, serialized against
// every other sender so the AEAD frame counter only ever advances in
// one order.
func (c *Connection) SendNode(n *binary.Node) error {
	return c.sendNode(n)
}

func (c *Connection) sendNode(n *binary.Node) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()
	if cipher == nil {
		return errs.ErrNotConnected
	}

	encoded, err := binary.Marshal(n)
	if err != nil {
		return err
	}
	ciphertext, err := cipher.Encrypt(encoded)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.DefaultQueryTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := c.socket.WriteFrame(ctx, ciphertext); err != nil {
		return err
	}
	metrics.FramesSentTotal.Inc()
	c.bus.Emit(events.KindNodeSent, events.NodeSent{Stanza: n})
	return nil
}

// WaitForAck registers id as awaiting a server ack/iq-result and blocks
// until it arrives or timeout elapses.
func (c *Connection) WaitForAck(id string, timeout time.Duration) (*binary.Node, error) {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	ch := make(chan *binary.Node, 1)
	c.mu.Lock()
	c.pendingAcks[id] = ch
	c.mu.Unlock()

	select {
	case n := <-ch:
		return n, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pendingAcks, id)
		c.mu.Unlock()
		return nil, errs.ErrAckTimeout
	}
}

func (c *Connection) handleSocketClose(err error) {
	c.log.Infow("socket closed", "error", err)
	c.setState(StateClosed)
	c.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "closed", Error: err})
}

func (c *Connection) fail(err error) {
	c.log.Errorw("connection failed", "error", err)
	c.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "closed", Error: err})
	_ = c.Close()
}

// Close tears down the socket and its read loop. Safe to call more
// than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	sock := c.socket
	cancel := c.runCancel
	c.mu.Unlock()
	metrics.ConnectionState.Set(float64(StateClosing))

	if cancel != nil {
		cancel()
	}

	var err error
	if sock != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		err = sock.Close(ctx)
		done()
	}

	c.setState(StateClosed)
	return err
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.ConnectionState.Set(float64(s))
}

func toNoiseKeyPair(kp signal.KeyPair) noise.KeyPair {
	return noise.KeyPair{Private: kp.Private, Public: kp.Public}
}

// newCredentials generates a fresh identity: a Noise static key, a
// pairing ephemeral key, a Curve25519 signed identity key, and one
// signed pre-key whose signature covers the libsignal Djb-curve-type
// prefixed public key, matching the convention every pre-key bundle on
// the wire uses.
func newCredentials() (*store.Credentials, error) {
	noiseKey, err := signal.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	pairingKey, err := signal.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	identityKey, err := signal.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	signedPreKey, err := signal.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	signable := append([]byte{djbCurveType}, signedPreKey.Public[:]...)
	signature, err := xeddsa.Sign(identityKey.Private, signable, rand.Reader)
	if err != nil {
		return nil, err
	}

	var advSecret [32]byte
	if _, err := rand.Read(advSecret[:]); err != nil {
		return nil, err
	}

	var regIDBytes [2]byte
	if _, err := rand.Read(regIDBytes[:]); err != nil {
		return nil, err
	}
	registrationID := (uint32(regIDBytes[0])<<8 | uint32(regIDBytes[1])) & 0x3FFF

	return &store.Credentials{
		NoiseKey:                noiseKey,
		PairingEphemeralKey:     pairingKey,
		SignedIdentityKey:       identityKey,
		SignedPreKey:            store.SignedPreKey{ID: 1, KeyPair: signedPreKey, Signature: signature},
		RegistrationID:          registrationID,
		ADVSecretKey:            advSecret,
		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,
	}, nil
}
