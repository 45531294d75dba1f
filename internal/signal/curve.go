package signal

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a Curve25519 key pair used for identity keys, signed
// pre-keys, one-time pre-keys, and X3DH ephemeral keys.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return kp, err
	}
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DH performs the Curve25519 Diffie-Hellman used throughout X3DH and
// the ratchet step.
func DH(priv, pub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}

// PreKey is a one-time or signed pre-key published for others to
// initiate a session against.
type PreKey struct {
	ID        uint32
	KeyPair   KeyPair
	Signature []byte // set only for the signed pre-key
}
