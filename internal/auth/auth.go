// Package auth drives the device pairing and login handshake that rides
// on top of an already-established Noise transport: QR ref issuance and
// rotation, verification of the primary device's ADV signature over our
// new device identity, and the connection-state transitions that follow
// a successful or failed login.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/binary"
	"github.com/waconnect/waconnect-go/internal/errs"
	"github.com/waconnect/waconnect-go/internal/events"
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/metrics"
	"github.com/waconnect/waconnect-go/internal/signal/xeddsa"
	"github.com/waconnect/waconnect-go/internal/store"
	"github.com/waconnect/waconnect-go/internal/wap"
)

// State is a step in the pairing/login state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingQR
	StateProcessingPairSuccess
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingQR:
		return "awaiting_qr"
	case StateProcessingPairSuccess:
		return "processing_pair_success"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	initialRefTimeout    = 60 * time.Second
	subsequentRefTimeout = 20 * time.Second
)

// Domain-separation prefixes XEdDSA-signs over, matching the two
// distinct roles a signature plays during pairing: the primary device
// vouching for our new identity, and us countersigning it back.
var (
	accountSigPrefix = []byte{0x06, 0x00}
	deviceSigPrefix  = []byte{0x06, 0x01}
)

// Authenticator implements the pairing and login FSM. It never touches
// the socket or Noise cipher directly; the connection manager feeds it
// incoming stanzas via HandleIncoming and supplies sendNode to let it
// reply.
type Authenticator struct {
	store    store.Store
	bus      *events.Bus
	log      *zap.SugaredLogger
	sendNode func(*binary.Node) error

	mu               sync.Mutex
	state            State
	refs             []string
	refIdx           int
	refTimer         *time.Timer
	offlineBatchSent bool
}

// New builds an Authenticator. sendNode is called (from whatever
// goroutine HandleIncoming or the ref-rotation timer runs on) to write
// a reply or ack stanza back to the connection.
func New(st store.Store, bus *events.Bus, log *zap.SugaredLogger, sendNode func(*binary.Node) error) *Authenticator {
	return &Authenticator{
		store:    st,
		bus:      bus,
		log:      log,
		sendNode: sendNode,
		state:    StateIdle,
	}
}

// State returns the authenticator's current FSM state.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reset returns the authenticator to StateIdle, stopping any pending
// ref-rotation timer and clearing per-connection dedupe flags. Called
// by the connection manager at the start of every fresh dial.
func (a *Authenticator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refTimer != nil {
		a.refTimer.Stop()
		a.refTimer = nil
	}
	a.state = StateIdle
	a.refs = nil
	a.refIdx = 0
	a.offlineBatchSent = false
}

// HandleIncoming dispatches a stanza already authenticated and decoded
// off the transport. Unrecognized tags are ignored; this is not the
// only consumer of incoming stanzas.
func (a *Authenticator) HandleIncoming(node *binary.Node) error {
	switch node.Tag {
	case "iq":
		if pd := node.GetChildByTag("pair-device"); pd != nil {
			return a.handlePairDevice(node, pd)
		}
		if ps := node.GetChildByTag("pair-success"); ps != nil {
			return a.handlePairSuccess(node, ps)
		}
	case "success":
		return a.handleSuccess(node)
	case "fail":
		return a.handleFailure(node)
	case "ib":
		if node.GetChildByTag("offline_preview") != nil {
			return a.handleOfflinePreview()
		}
	}
	return nil
}

func (a *Authenticator) handlePairDevice(iq, pd *binary.Node) error {
	var refs []string
	for _, child := range pd.GetChildren() {
		if child.Tag == "ref" {
			refs = append(refs, string(child.GetBytes()))
		}
	}

	a.mu.Lock()
	a.refs = refs
	a.refIdx = 0
	a.state = StateAwaitingQR
	a.mu.Unlock()

	ack := binary.NewNode("iq", map[string]string{
		"id":   iq.AttrString("id"),
		"to":   jid.ServerDefault,
		"type": "result",
	})
	if err := a.sendNode(ack); err != nil {
		return err
	}

	return a.issueNextRef(true)
}

// issueNextRef advances to the next unused QR ref, emits it as a
// connection update, and arms the rotation timer. Exhausting the ref
// list fails pairing outright; the primary device only supplies a
// small fixed batch per <pair-device> response.
func (a *Authenticator) issueNextRef(first bool) error {
	a.mu.Lock()
	if a.state != StateAwaitingQR {
		a.mu.Unlock()
		return nil
	}
	if a.refIdx >= len(a.refs) {
		a.mu.Unlock()
		a.fail(&errs.PairingFailedError{Reason: errs.PairingNoMoreRefs})
		return errs.ErrPairingTimedOut
	}
	ref := a.refs[a.refIdx]
	a.refIdx++
	a.mu.Unlock()

	creds, err := a.store.LoadCredentials()
	if err != nil {
		return err
	}
	if creds == nil {
		a.fail(&errs.PairingFailedError{Reason: errs.PairingMissingField})
		return errs.Newf("auth: no credentials available to build pairing QR")
	}

	qr := strings.Join([]string{
		ref,
		b64(creds.NoiseKey.Public[:]),
		b64(creds.SignedIdentityKey.Public[:]),
		b64(creds.ADVSecretKey[:]),
	}, ",")
	metrics.QRRefsIssuedTotal.Inc()

	a.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{
		Connection: "connecting",
		QR:         qr,
	})

	timeout := subsequentRefTimeout
	if first {
		timeout = initialRefTimeout
	}
	a.mu.Lock()
	if a.refTimer != nil {
		a.refTimer.Stop()
	}
	a.refTimer = time.AfterFunc(timeout, func() {
		if err := a.issueNextRef(false); err != nil && a.log != nil {
			a.log.Warnw("pairing ref rotation failed", "error", err)
		}
	})
	a.mu.Unlock()
	return nil
}

func (a *Authenticator) handlePairSuccess(iq, ps *binary.Node) error {
	a.mu.Lock()
	a.state = StateProcessingPairSuccess
	if a.refTimer != nil {
		a.refTimer.Stop()
	}
	a.mu.Unlock()

	identityNode := ps.GetChildByTag("device-identity")
	if identityNode == nil {
		err := &errs.PairingFailedError{Reason: errs.PairingMissingField}
		a.fail(err)
		return err
	}

	envelope, err := wap.DecodeADVSignedDeviceIdentityHMAC(identityNode.GetBytes())
	if err != nil {
		a.fail(&errs.PairingFailedError{Reason: errs.PairingMissingField})
		return err
	}

	creds, err := a.store.LoadCredentials()
	if err != nil {
		return err
	}
	if creds == nil {
		err := &errs.PairingFailedError{Reason: errs.PairingMissingField}
		a.fail(err)
		return err
	}

	mac := hmac.New(sha256.New, creds.ADVSecretKey[:])
	mac.Write(envelope.Details)
	if !hmac.Equal(mac.Sum(nil), envelope.HMAC) {
		err := &errs.PairingFailedError{Reason: errs.PairingAdvHmacInvalid}
		a.fail(err)
		return err
	}

	signedIdentity, err := wap.DecodeADVSignedDeviceIdentity(envelope.Details)
	if err != nil {
		a.fail(&errs.PairingFailedError{Reason: errs.PairingMissingField})
		return err
	}
	deviceIdentity, err := wap.DecodeADVDeviceIdentity(signedIdentity.Details)
	if err != nil {
		a.fail(&errs.PairingFailedError{Reason: errs.PairingMissingField})
		return err
	}
	if len(deviceIdentity.AccountSigKey) != 32 {
		err := &errs.PairingFailedError{Reason: errs.PairingMissingField}
		a.fail(err)
		return err
	}
	var accountSigKey [32]byte
	copy(accountSigKey[:], deviceIdentity.AccountSigKey)

	accountSigMessage := concat(accountSigPrefix, signedIdentity.Details, creds.SignedIdentityKey.Public[:])
	if err := xeddsa.Verify(accountSigKey, accountSigMessage, signedIdentity.AccountSignature); err != nil {
		pfErr := &errs.PairingFailedError{Reason: errs.PairingAccountSigInvalid}
		a.fail(pfErr)
		return pfErr
	}

	deviceSigMessage := concat(deviceSigPrefix, signedIdentity.Details, creds.SignedIdentityKey.Public[:], accountSigKey[:])
	deviceSignature, err := xeddsa.Sign(creds.SignedIdentityKey.Private, deviceSigMessage, rand.Reader)
	if err != nil {
		return err
	}

	updatedAccount := wap.EncodeADVSignedDeviceIdentity(&wap.ADVSignedDeviceIdentity{
		Details:          signedIdentity.Details,
		AccountSignature: signedIdentity.AccountSignature,
		DeviceSignature:  deviceSignature,
	})

	var me *store.MeInfo
	if dev := ps.GetChildByTag("device"); dev != nil {
		var deviceJID, lid jid.JID
		if raw, ok := dev.Attr("jid"); ok {
			if j, err := jid.Parse(raw); err == nil {
				deviceJID = j
			}
		}
		if raw, ok := dev.Attr("lid"); ok {
			if j, err := jid.Parse(raw); err == nil {
				lid = j
			}
		}
		if !deviceJID.IsEmpty() {
			me = &store.MeInfo{JID: deviceJID, LID: lid.String()}
		}
	}
	if bizName := ps.GetChildByTag("biz_name"); bizName != nil && me != nil {
		me.Name = string(bizName.GetBytes())
	}

	creds.Account = updatedAccount
	creds.Registered = true
	if me != nil {
		creds.Me = me
		if creds.SignalIdentities == nil {
			creds.SignalIdentities = make(map[string][32]byte)
		}
		creds.SignalIdentities[me.JID.ToNonAD().String()] = accountSigKey
	}
	if err := a.store.SaveCredentials(creds); err != nil {
		return err
	}

	reply := pairDeviceSignReply(iq.AttrString("id"), updatedAccount, deviceIdentity.KeyIndex)
	if err := a.sendNode(reply); err != nil {
		return err
	}

	a.mu.Lock()
	a.state = StateAuthenticated
	a.mu.Unlock()

	metrics.PairingOutcomesTotal.WithLabelValues("success").Inc()
	a.bus.Emit(events.KindCredsUpdate, events.CredsUpdate{Diff: map[string]interface{}{"registered": true}})
	a.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "open", IsNewLogin: true})
	return nil
}

func pairDeviceSignReply(iqID string, account []byte, keyIndex uint32) *binary.Node {
	identity := binary.NewNode("device-identity", map[string]string{
		"key-index": strconv.FormatUint(uint64(keyIndex), 10),
	})
	identity.Content = binary.BytesContent(account)

	sign := binary.NewNode("pair-device-sign", nil)
	sign.Content = binary.ChildrenContent(identity)

	reply := binary.NewNode("iq", map[string]string{
		"id":   iqID,
		"to":   jid.ServerDefault,
		"type": "result",
	})
	reply.Content = binary.ChildrenContent(sign)
	return reply
}

func (a *Authenticator) handleSuccess(node *binary.Node) error {
	a.mu.Lock()
	a.state = StateAuthenticated
	a.mu.Unlock()

	if creds, err := a.store.LoadCredentials(); err == nil && creds != nil && creds.Me != nil {
		changed := false
		if raw, ok := node.Attr("lid"); ok {
			if l, err := jid.Parse(raw); err == nil && creds.Me.LID != l.String() {
				creds.Me.LID = l.String()
				changed = true
			}
		}
		if pushname, ok := node.Attr("pushname"); ok && creds.Me.Name != pushname {
			creds.Me.Name = pushname
			changed = true
		}
		if changed {
			if err := a.store.SaveCredentials(creds); err != nil && a.log != nil {
				a.log.Warnw("failed to persist credentials after success", "error", err)
			}
		}
	}

	a.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "open"})
	return nil
}

func (a *Authenticator) handleFailure(node *binary.Node) error {
	status, _ := strconv.Atoi(node.AttrString("reason"))
	err := errs.Newf("auth: server closed session with status %d", status)
	a.fail(err)
	metrics.PairingOutcomesTotal.WithLabelValues("failure").Inc()
	return err
}

func (a *Authenticator) fail(err error) {
	a.mu.Lock()
	a.state = StateFailed
	if a.refTimer != nil {
		a.refTimer.Stop()
	}
	a.mu.Unlock()
	a.bus.Emit(events.KindConnectionUpdate, events.ConnectionUpdate{Connection: "closed", Error: err})
}

// handleOfflinePreview answers the server's offline-message preview
// exactly once per connection, requesting delivery of the backlog.
func (a *Authenticator) handleOfflinePreview() error {
	a.mu.Lock()
	if a.offlineBatchSent {
		a.mu.Unlock()
		return nil
	}
	a.offlineBatchSent = true
	a.mu.Unlock()

	ib := binary.NewNode("ib", nil)
	ib.Content = binary.ChildrenContent(binary.NewNode("offline_batch", map[string]string{"count": "30"}))
	return a.sendNode(ib)
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func concat(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
