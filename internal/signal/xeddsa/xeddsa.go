// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package xeddsa implements XEdDSA signing and verification over
// Curve25519 keys: signed pre-keys and ADV device identities are signed
// with the account's Curve25519 identity key, not a separate Ed25519
// key. crypto/ed25519 only operates on Edwards
// keys it generated itself, so the birational Montgomery<->Edwards
// conversion is done directly against filippo.io/edwards25519's scalar
// and point arithmetic.
package xeddsa

import (
	"crypto/sha512"
	"errors"
	"io"

	"filippo.io/edwards25519"
)

var ErrInvalidSignature = errors.New("xeddsa: invalid signature")

// Sign produces a 64-byte XEdDSA signature of message under the
// Curve25519 private key montgomeryPriv, drawing nonce entropy from
// random (rand.Reader in production, a deterministic source in tests).
func Sign(montgomeryPriv [32]byte, message []byte, random io.Reader) ([]byte, error) {
	a := new(edwards25519.Scalar).SetBytesWithClamping(montgomeryPriv[:])
	A := new(edwards25519.Point).ScalarBaseMult(a)

	// XEdDSA convention: always sign with the Edwards point whose sign
	// bit is 0, negating the scalar to compensate when needed.
	if A.Bytes()[31]&0x80 != 0 {
		a = new(edwards25519.Scalar).Negate(a)
		A = new(edwards25519.Point).ScalarBaseMult(a)
	}

	var seed [32]byte
	if _, err := io.ReadFull(random, seed[:]); err != nil {
		return nil, err
	}
	var nonceInput []byte
	nonceInput = append(nonceInput, seed[:]...)
	nonceInput = append(nonceInput, a.Bytes()...)
	nonceInput = append(nonceInput, message...)
	nonceHash := sha512.Sum512(nonceInput)
	r, err := new(edwards25519.Scalar).SetUniformBytes(nonceHash[:])
	if err != nil {
		return nil, err
	}
	R := new(edwards25519.Point).ScalarBaseMult(r)

	var hramInput []byte
	hramInput = append(hramInput, R.Bytes()...)
	hramInput = append(hramInput, A.Bytes()...)
	hramInput = append(hramInput, message...)
	hramHash := sha512.Sum512(hramInput)
	h, err := new(edwards25519.Scalar).SetUniformBytes(hramHash[:])
	if err != nil {
		return nil, err
	}

	s := new(edwards25519.Scalar).MultiplyAdd(h, a, r)

	sig := make([]byte, 64)
	copy(sig[:32], R.Bytes())
	copy(sig[32:], s.Bytes())
	return sig, nil
}

// Verify checks an XEdDSA signature produced by Sign against the
// Curve25519 public key montgomeryPub.
func Verify(montgomeryPub [32]byte, message, signature []byte) error {
	if len(signature) != 64 {
		return ErrInvalidSignature
	}
	A, err := montgomeryToEdwards(montgomeryPub)
	if err != nil {
		return ErrInvalidSignature
	}

	R, err := new(edwards25519.Point).SetBytes(signature[:32])
	if err != nil {
		return ErrInvalidSignature
	}
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(signature[32:])
	if err != nil {
		return ErrInvalidSignature
	}

	var hramInput []byte
	hramInput = append(hramInput, signature[:32]...)
	hramInput = append(hramInput, A.Bytes()...)
	hramInput = append(hramInput, message...)
	hramHash := sha512.Sum512(hramInput)
	h, err := new(edwards25519.Scalar).SetUniformBytes(hramHash[:])
	if err != nil {
		return ErrInvalidSignature
	}

	sB := new(edwards25519.Point).ScalarBaseMult(s)
	hA := new(edwards25519.Point).ScalarMult(h, A)
	rhs := new(edwards25519.Point).Add(R, hA)
	if sB.Equal(rhs) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
