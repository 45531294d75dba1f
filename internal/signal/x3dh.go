package signal

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// x3dhDomainSeparator is prepended to the DH outputs before deriving the
// shared secret, per the X3DH spec's recommendation for Curve25519 (32
// 0xFF bytes, to rule out small-subgroup/all-zero DH outputs being
// confused with a valid encoded point).
var x3dhDomainSeparator = bytes.Repeat([]byte{0xFF}, 32)

func x3dhDeriveSecret(dhOutputs ...[]byte) [32]byte {
	var ikm []byte
	ikm = append(ikm, x3dhDomainSeparator...)
	for _, dh := range dhOutputs {
		ikm = append(ikm, dh...)
	}
	r := hkdf.New(sha256.New, ikm, make([]byte, 32), []byte("WhisperText"))
	var out [32]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("signal: hkdf read failed: " + err.Error())
	}
	return out
}

// OutgoingBundle is the remote peer's published pre-key bundle, fetched
// from the server before establishing a new outgoing session.
type OutgoingBundle struct {
	IdentityKey   [32]byte
	SignedPreKey  PreKey
	OneTimePreKey *PreKey // nil if the peer's pool was exhausted
	RegistrationID uint32
}

// InitOutgoing establishes a new session toward a peer from their
// published bundle. It returns the session state plus the fields the
// caller needs to build the PreKeySignalMessage envelope for the first
// ciphertext sent on this session.
func InitOutgoing(localIdentity KeyPair, bundle OutgoingBundle) (*SessionState, baseKey [32]byte, err error) {
	ephemeral, err := GenerateKeyPair()
	if err != nil {
		return nil, baseKey, err
	}

	dh1, err := DH(localIdentity.Private, bundle.SignedPreKey.KeyPair.Public)
	if err != nil {
		return nil, baseKey, fmt.Errorf("signal: x3dh dh1: %w", err)
	}
	dh2, err := DH(ephemeral.Private, bundle.IdentityKey)
	if err != nil {
		return nil, baseKey, fmt.Errorf("signal: x3dh dh2: %w", err)
	}
	dh3, err := DH(ephemeral.Private, bundle.SignedPreKey.KeyPair.Public)
	if err != nil {
		return nil, baseKey, fmt.Errorf("signal: x3dh dh3: %w", err)
	}
	dhOutputs := [][]byte{dh1, dh2, dh3}
	if bundle.OneTimePreKey != nil {
		dh4, err := DH(ephemeral.Private, bundle.OneTimePreKey.KeyPair.Public)
		if err != nil {
			return nil, baseKey, fmt.Errorf("signal: x3dh dh4: %w", err)
		}
		dhOutputs = append(dhOutputs, dh4)
	}
	sharedSecret := x3dhDeriveSecret(dhOutputs...)

	senderRatchet, err := GenerateKeyPair()
	if err != nil {
		return nil, baseKey, err
	}
	dhRatchet, err := DH(senderRatchet.Private, bundle.SignedPreKey.KeyPair.Public)
	if err != nil {
		return nil, baseKey, err
	}
	rootKey, sendChainKey, err := kdfRootStep(sharedSecret, dhRatchet)
	if err != nil {
		return nil, baseKey, err
	}

	var preKeyID *uint32
	if bundle.OneTimePreKey != nil {
		id := bundle.OneTimePreKey.ID
		preKeyID = &id
	}

	state := &SessionState{
		RemoteIdentityKey:  bundle.IdentityKey,
		RootKey:            rootKey,
		SenderRatchetKey:   senderRatchet,
		SenderChain:        chain{key: sendChainKey, index: 0},
		RemoteRegistration: bundle.RegistrationID,
		PendingPreKey: &pendingPreKey{
			preKeyID:       preKeyID,
			signedPreKeyID: bundle.SignedPreKey.ID,
			baseKey:        ephemeral.Public,
		},
	}
	return state, ephemeral.Public, nil
}

// InitIncoming establishes a session on first receipt of a
// PreKeySignalMessage, using the local pre-key material the message
// references and the sender's identity key and base key.
func InitIncoming(localIdentity KeyPair, localSignedPreKey PreKey, localOneTimePreKey *PreKey, remoteIdentityKey, baseKey [32]byte, remoteRegistrationID uint32) (*SessionState, error) {
	dh1, err := DH(localSignedPreKey.KeyPair.Private, remoteIdentityKey)
	if err != nil {
		return nil, fmt.Errorf("signal: x3dh dh1: %w", err)
	}
	dh2, err := DH(localIdentity.Private, baseKey)
	if err != nil {
		return nil, fmt.Errorf("signal: x3dh dh2: %w", err)
	}
	dh3, err := DH(localSignedPreKey.KeyPair.Private, baseKey)
	if err != nil {
		return nil, fmt.Errorf("signal: x3dh dh3: %w", err)
	}
	dhOutputs := [][]byte{dh1, dh2, dh3}
	if localOneTimePreKey != nil {
		dh4, err := DH(localOneTimePreKey.KeyPair.Private, baseKey)
		if err != nil {
			return nil, fmt.Errorf("signal: x3dh dh4: %w", err)
		}
		dhOutputs = append(dhOutputs, dh4)
	}
	sharedSecret := x3dhDeriveSecret(dhOutputs...)

	return &SessionState{
		RemoteIdentityKey:  remoteIdentityKey,
		RootKey:            sharedSecret,
		SenderRatchetKey:   localSignedPreKey.KeyPair,
		RemoteRegistration: remoteRegistrationID,
	}, nil
}
