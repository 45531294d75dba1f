package noise

import (
	"fmt"

	"github.com/waconnect/waconnect-go/internal/wap"
)

// Handshake drives the Noise_XX_25519_AESGCM_SHA256 three-message
// pattern (-> e, <- e ee s es, -> s se) to mutual authentication,
// then yields a Cipher for the post-handshake transport.
type Handshake struct {
	state *symmetricState

	ephemeral KeyPair
	static    KeyPair
	serverEph [32]byte
}

// NewHandshake starts a new handshake as the initiator (the client
// always initiates in this protocol), generating fresh ephemeral and
// static key pairs and mixing in the given prologue.
func NewHandshake(staticKeyPair KeyPair, prologue []byte) (*Handshake, error) {
	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("noise: generate ephemeral key: %w", err)
	}
	h := &Handshake{
		state:     newSymmetricState(prologue),
		ephemeral: eph,
		static:    staticKeyPair,
	}
	return h, nil
}

// WriteClientHello produces message 1: "-> e", the client's ephemeral
// public key sent in the clear.
func (h *Handshake) WriteClientHello() []byte {
	h.state.mixHash(h.ephemeral.Public[:])
	msg := wap.EncodeHandshakeMessage(&wap.HandshakeMessage{
		ClientHello: &wap.ClientHello{Ephemeral: h.ephemeral.Public[:]},
	})
	return msg
}

// ReadServerHello processes message 2: "<- e, ee, s, es". It returns the
// decrypted certificate chain payload for the caller to verify with
// VerifyCertChain (the handshake state itself doesn't know the root key).
func (h *Handshake) ReadServerHello(data []byte) (certChainPayload []byte, serverStaticKey []byte, err error) {
	msg, err := wap.DecodeHandshakeMessage(data)
	if err != nil || msg.ServerHello == nil {
		return nil, nil, fmt.Errorf("noise: malformed server hello")
	}
	sh := msg.ServerHello
	if len(sh.Ephemeral) != 32 {
		return nil, nil, fmt.Errorf("noise: server hello ephemeral key has wrong length")
	}
	copy(h.serverEph[:], sh.Ephemeral)
	h.state.mixHash(h.serverEph[:])

	shared1, err := dh(h.ephemeral.Private, h.serverEph)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: ee dh failed: %w", err)
	}
	h.state.mixKey(shared1)

	staticPlain, err := h.state.decryptAndHash(sh.Static)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: decrypt server static key: %w", err)
	}
	if len(staticPlain) != 32 {
		return nil, nil, fmt.Errorf("noise: decrypted server static key has wrong length")
	}
	var serverStatic [32]byte
	copy(serverStatic[:], staticPlain)

	shared2, err := dh(h.ephemeral.Private, serverStatic)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: es dh failed: %w", err)
	}
	h.state.mixKey(shared2)

	payload, err := h.state.decryptAndHash(sh.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: decrypt cert chain payload: %w", err)
	}
	return payload, staticPlain, nil
}

// WriteClientFinish produces message 3: "-> s, se", carrying the
// (encrypted) client payload negotiated by the caller, and finalizes the
// handshake, returning the transport Cipher.
func (h *Handshake) WriteClientFinish(clientPayload []byte) ([]byte, *Cipher, error) {
	encStatic, err := h.state.encryptAndHash(h.static.Public[:])
	if err != nil {
		return nil, nil, fmt.Errorf("noise: encrypt static key: %w", err)
	}

	shared3, err := dh(h.static.Private, h.serverEph)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: se dh failed: %w", err)
	}
	h.state.mixKey(shared3)

	encPayload, err := h.state.encryptAndHash(clientPayload)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: encrypt client payload: %w", err)
	}

	msg := wap.EncodeHandshakeMessage(&wap.HandshakeMessage{
		ClientFinish: &wap.ClientFinish{Static: encStatic, Payload: encPayload},
	})

	sendKey, recvKey := h.state.split()
	cipher := newCipher(sendKey, recvKey)
	return msg, cipher, nil
}
