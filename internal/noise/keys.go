package noise

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a Curve25519 key pair, used for both the ephemeral
// handshake keys and the long-lived noise (static) identity key.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return kp, err
	}
	// Clamp per RFC 7748; curve25519.X25519 also clamps internally, but
	// clamping here keeps the stored private key canonical for storage.
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

func dh(priv, pub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}
