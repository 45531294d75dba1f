package signal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/waconnect/waconnect-go/internal/wap"
)

// protocolVersion is the Signal message format version this cipher
// speaks; both nibbles of the wire prefix byte must equal it.
const protocolVersion = 3

var versionPrefix = byte(protocolVersion<<4 | protocolVersion)

// DecryptionError classifies a Signal cipher failure.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string { return "signal: decryption error: " + e.Reason }

// Store is the persistence boundary the session cipher depends on,
// covering pre-keys, sessions, and identity trust state. internal/store
// provides concrete implementations.
type Store interface {
	LoadIdentityKeyPair() (KeyPair, error)
	LoadRegistrationID() (uint32, error)

	LoadSession(addr Address) (*SessionRecord, bool, error)
	StoreSession(addr Address, record *SessionRecord) error

	LoadSignedPreKey(id uint32) (PreKey, bool, error)
	LoadPreKey(id uint32) (PreKey, bool, error)
	DeletePreKey(id uint32) error

	LoadPeerIdentity(addr Address) ([32]byte, bool, error)
	SavePeerIdentity(addr Address, key [32]byte) error
}

// SessionCipher encrypts and decrypts stanza payloads for one peer
// address, serializing access per-address so concurrent sends/receives
// for the same device never race the ratchet state.
type SessionCipher struct {
	store Store

	mu      sync.Mutex
	locks   map[Address]*sync.Mutex
	locksMu sync.Mutex
}

func NewSessionCipher(store Store) *SessionCipher {
	return &SessionCipher{store: store, locks: make(map[Address]*sync.Mutex)}
}

func (c *SessionCipher) lockFor(addr Address) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		c.locks[addr] = l
	}
	return l
}

// Encrypt produces either a "pkmsg" (PreKeySignalMessage, wrapping a
// SignalMessage) when no session exists yet, or a "msg" (plain
// SignalMessage) otherwise, plus the node tag to use for the wire
// stanza.
func (c *SessionCipher) Encrypt(addr Address, plaintext []byte) (wireType string, payload []byte, err error) {
	lock := c.lockFor(addr)
	lock.Lock()
	defer lock.Unlock()

	record, ok, err := c.store.LoadSession(addr)
	if err != nil {
		return "", nil, err
	}
	if !ok || record.Current == nil {
		return "", nil, fmt.Errorf("signal: no session established with %s", addr)
	}
	state := record.Current

	localIdentity, err := c.store.LoadIdentityKeyPair()
	if err != nil {
		return "", nil, err
	}

	nextChainKey, mk, err := kdfChainStep(state.SenderChain.key)
	if err != nil {
		return "", nil, err
	}
	counter := state.SenderChain.index
	state.SenderChain.key = nextChainKey
	state.SenderChain.index++

	ciphertext, err := encryptWithMessageKeys(mk, plaintext)
	if err != nil {
		return "", nil, err
	}

	sm := &wap.SignalMessage{
		RatchetKey:      state.SenderRatchetKey.Public[:],
		Counter:         counter,
		PreviousCounter: state.PreviousCounter,
		Ciphertext:      ciphertext,
	}
	encoded := wap.EncodeSignalMessage(sm)
	smBytes := appendVersionedMAC(mk.macKey, localIdentity.Public, state.RemoteIdentityKey, encoded)

	if err := c.store.StoreSession(addr, record); err != nil {
		return "", nil, err
	}

	if state.PendingPreKey != nil {
		regID, err := c.store.LoadRegistrationID()
		if err != nil {
			return "", nil, err
		}
		pkMsg := &wap.PreKeySignalMessage{
			RegistrationID: regID,
			PreKeyID:       state.PendingPreKey.preKeyID,
			SignedPreKeyID: state.PendingPreKey.signedPreKeyID,
			BaseKey:        state.PendingPreKey.baseKey[:],
			IdentityKey:    localIdentity.Public[:],
			Message:        smBytes,
		}
		return "pkmsg", wap.EncodePreKeySignalMessage(pkMsg), nil
	}
	return "msg", smBytes, nil
}

// Decrypt processes an inbound "pkmsg" or "msg" payload, establishing a
// session first if wireType is "pkmsg" and none exists yet. For "msg"
// it tries every stored session for the address, most-recently-used
// first, against a speculative copy of each; the first one whose MAC
// verifies is committed back to the store.
func (c *SessionCipher) Decrypt(addr Address, wireType string, payload []byte) ([]byte, error) {
	lock := c.lockFor(addr)
	lock.Lock()
	defer lock.Unlock()

	localIdentity, err := c.store.LoadIdentityKeyPair()
	if err != nil {
		return nil, err
	}

	record, ok, err := c.store.LoadSession(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		record = &SessionRecord{}
	}

	var smBytes []byte
	var preKeyToConsume *uint32
	switch wireType {
	case "pkmsg":
		pk, err := wap.DecodePreKeySignalMessage(payload)
		if err != nil {
			return nil, &DecryptionError{Reason: "malformed prekey message"}
		}
		var remoteIdentity, baseKey [32]byte
		copy(remoteIdentity[:], pk.IdentityKey)
		copy(baseKey[:], pk.BaseKey)

		needsNewSession := true
		for _, st := range record.candidates() {
			if st.RemoteIdentityKey == remoteIdentity {
				needsNewSession = false
				break
			}
		}
		if needsNewSession {
			signedPreKey, ok, err := c.store.LoadSignedPreKey(pk.SignedPreKeyID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &DecryptionError{Reason: "unknown signed pre-key id"}
			}
			var oneTime *PreKey
			if pk.PreKeyID != nil {
				otp, ok, err := c.store.LoadPreKey(*pk.PreKeyID)
				if err != nil {
					return nil, err
				}
				if ok {
					oneTime = &otp
				}
			}
			state, err := InitIncoming(localIdentity, signedPreKey, oneTime, remoteIdentity, baseKey, pk.RegistrationID)
			if err != nil {
				return nil, err
			}
			record.promote(state)
			// The OPK is only consumed once the message it accompanies
			// actually decrypts; deleting it here, before the MAC/CBC
			// pass below, would strand a recipient that received a
			// pkmsg it can't yet decrypt (or that fails to decrypt at
			// all) without the pre-key it needs to retry.
			if pk.PreKeyID != nil {
				preKeyToConsume = pk.PreKeyID
			}
			if err := c.store.SavePeerIdentity(addr, remoteIdentity); err != nil {
				return nil, err
			}
		}
		smBytes = pk.Message
	case "msg":
		if record.Current == nil {
			return nil, &DecryptionError{Reason: "no session for non-prekey message"}
		}
		smBytes = payload
	default:
		return nil, &DecryptionError{Reason: fmt.Sprintf("unknown wire type %q", wireType)}
	}

	encoded, receivedMAC, err := splitVersionedMAC(smBytes)
	if err != nil {
		return nil, err
	}
	sm, err := wap.DecodeSignalMessage(encoded)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed signal message"}
	}
	var ratchetKey [32]byte
	copy(ratchetKey[:], sm.RatchetKey)

	var plaintext []byte
	var matched *SessionState
	for _, candidate := range record.candidates() {
		trial := candidate.clone()
		pt, err := tryDecrypt(trial, localIdentity, ratchetKey, sm, encoded, receivedMAC)
		if err != nil {
			continue
		}
		plaintext = pt
		matched = candidate
		record.replace(candidate, trial)
		break
	}
	if matched == nil {
		return nil, &DecryptionError{Reason: "no matching session for this message"}
	}

	if err := c.store.StoreSession(addr, record); err != nil {
		return nil, err
	}
	if preKeyToConsume != nil {
		if err := c.store.DeletePreKey(*preKeyToConsume); err != nil {
			return nil, err
		}
	}
	return plaintext, nil
}

// tryDecrypt attempts a full ratchet + MAC + decrypt pass against state,
// which the caller must already have cloned: on any failure state may
// be left partially advanced, but the caller discards it.
func tryDecrypt(state *SessionState, localIdentity KeyPair, ratchetKey [32]byte, sm *wap.SignalMessage, encoded, receivedMAC []byte) ([]byte, error) {
	rc := findReceiverChain(state, ratchetKey)
	if rc == nil {
		if err := dhRatchetStep(state, ratchetKey); err != nil {
			return nil, err
		}
		rc = findReceiverChain(state, ratchetKey)
	}

	mk, err := advanceToCounter(rc, sm.Counter)
	if err != nil {
		return nil, err
	}

	expectedMAC := signalMAC(mk.macKey, state.RemoteIdentityKey, localIdentity.Public, encoded)
	if subtle.ConstantTimeCompare(expectedMAC, receivedMAC) != 1 {
		return nil, &DecryptionError{Reason: "MAC verification failed"}
	}

	plaintext, err := decryptWithMessageKeys(mk, sm.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "CBC padding invalid"}
	}

	state.PendingPreKey = nil
	return plaintext, nil
}

// signalMAC computes the first 8 bytes of HMAC-SHA256(macKey,
// senderIdentity || receiverIdentity || wireBytes), where wireBytes
// already includes the leading version-prefix byte.
func signalMAC(macKey, senderIdentity, receiverIdentity [32]byte, wireBytes []byte) []byte {
	m := hmac.New(sha256.New, macKey[:])
	m.Write(senderIdentity[:])
	m.Write(receiverIdentity[:])
	m.Write(wireBytes)
	return m.Sum(nil)[:8]
}

// appendVersionedMAC builds the wire form of a SignalMessage: a leading
// version-prefix byte, the encoded message, and an 8-byte MAC over both.
func appendVersionedMAC(macKey, senderIdentity, receiverIdentity [32]byte, encoded []byte) []byte {
	wireBytes := make([]byte, 0, 1+len(encoded))
	wireBytes = append(wireBytes, versionPrefix)
	wireBytes = append(wireBytes, encoded...)
	mac := signalMAC(macKey, senderIdentity, receiverIdentity, wireBytes)
	return append(wireBytes, mac...)
}

// splitVersionedMAC validates the prefix byte and separates the encoded
// SignalMessage from the trailing MAC, returning the message still
// prefixed with the version byte (signalMAC covers it).
func splitVersionedMAC(smBytes []byte) (wireBytes, mac []byte, err error) {
	if len(smBytes) < 1+8 {
		return nil, nil, &DecryptionError{Reason: "truncated signal message"}
	}
	if smBytes[0] != versionPrefix {
		return nil, nil, &DecryptionError{Reason: "unsupported message version"}
	}
	macStart := len(smBytes) - 8
	return smBytes[:macStart], smBytes[macStart:], nil
}

func findReceiverChain(state *SessionState, ratchetKey [32]byte) *receiverChain {
	for i := range state.ReceiverChains {
		if state.ReceiverChains[i].ratchetKey == ratchetKey {
			return &state.ReceiverChains[i]
		}
	}
	return nil
}

// dhRatchetStep performs a full Double Ratchet DH step on receipt of a
// message carrying a new ratchet public key: first deriving the
// receiving chain for that key, then eagerly generating our own new
// ratchet key pair and the sending chain it produces.
func dhRatchetStep(state *SessionState, theirRatchetKey [32]byte) error {
	dh1, err := DH(state.SenderRatchetKey.Private, theirRatchetKey)
	if err != nil {
		return err
	}
	newRoot, receiveChainKey, err := kdfRootStep(state.RootKey, dh1)
	if err != nil {
		return err
	}
	state.PreviousCounter = state.SenderChain.index
	state.ReceiverChains = append(state.ReceiverChains, receiverChain{
		ratchetKey:  theirRatchetKey,
		chain:       chain{key: receiveChainKey, index: 0},
		skippedKeys: make(map[uint32]messageKeys),
	})

	newRatchet, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	dh2, err := DH(newRatchet.Private, theirRatchetKey)
	if err != nil {
		return err
	}
	finalRoot, sendChainKey, err := kdfRootStep(newRoot, dh2)
	if err != nil {
		return err
	}
	state.RootKey = finalRoot
	state.SenderRatchetKey = newRatchet
	state.SenderChain = chain{key: sendChainKey, index: 0}
	return nil
}

// advanceToCounter derives message keys up through counter, caching any
// skipped ones for later out-of-order delivery, and returns the key for
// counter itself.
func advanceToCounter(rc *receiverChain, counter uint32) (messageKeys, error) {
	if mk, ok := rc.skippedKeys[counter]; ok {
		delete(rc.skippedKeys, counter)
		return mk, nil
	}
	if counter < rc.chain.index {
		return messageKeys{}, &DecryptionError{Reason: "message key already consumed"}
	}
	if int(counter-rc.chain.index) > maxSkippedMessageKeys {
		return messageKeys{}, &DecryptionError{Reason: "too many skipped messages"}
	}
	var mk messageKeys
	var err error
	for rc.chain.index <= counter {
		var next [32]byte
		next, mk, err = kdfChainStep(rc.chain.key)
		if err != nil {
			return mk, err
		}
		if rc.chain.index < counter {
			rc.skippedKeys[rc.chain.index] = mk
			if len(rc.skippedKeys) > maxSkippedMessageKeys {
				return mk, &DecryptionError{Reason: "skipped key cache exceeded window"}
			}
		}
		rc.chain.key = next
		rc.chain.index++
	}
	return mk, nil
}

// encryptWithMessageKeys applies AES-256-CBC with PKCS#7 padding, the
// cipher the wire format uses for per-message encryption (distinct from
// the AES-GCM used by the Noise transport cipher).
func encryptWithMessageKeys(mk messageKeys, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(mk.cipherKey[:])
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, mk.iv[:]).CryptBlocks(out, padded)
	return out, nil
}

func decryptWithMessageKeys(mk messageKeys, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(mk.cipherKey[:])
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("signal: ciphertext not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, mk.iv[:]).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, fmt.Errorf("signal: invalid padded length")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, fmt.Errorf("signal: invalid PKCS#7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("signal: invalid PKCS#7 padding")
		}
	}
	return data[:n-padLen], nil
}
