package noise

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// CounterExhaustedError is a fatal cryptography error: the 64-bit
// per-direction frame counter has reached its maximum and reusing a
// nonce would break AEAD confidentiality.
type CounterExhaustedError struct{ Direction string }

func (e *CounterExhaustedError) Error() string {
	return fmt.Sprintf("noise: %s counter exhausted, connection must be re-established", e.Direction)
}

// Cipher is the post-handshake transport cipher: independent send and
// receive AES-256-GCM keys, each with its own monotonic 64-bit counter
// used as the low 8 bytes of a 12-byte IV.
type Cipher struct {
	mu sync.Mutex

	sendKey [32]byte
	recvKey [32]byte
	sendCtr uint64
	recvCtr uint64
}

func newCipher(sendKey, recvKey [32]byte) *Cipher {
	return &Cipher{sendKey: sendKey, recvKey: recvKey}
}

func iv(counter uint64) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[4:], counter)
	return b
}

func gcmFor(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under the send key and advances the send counter.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendCtr == math.MaxUint64 {
		return nil, &CounterExhaustedError{Direction: "send"}
	}
	gcm, err := gcmFor(c.sendKey)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, iv(c.sendCtr), plaintext, nil)
	c.sendCtr++
	return ciphertext, nil
}

// Decrypt opens ciphertext under the recv key and advances the recv counter.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recvCtr == math.MaxUint64 {
		return nil, &CounterExhaustedError{Direction: "recv"}
	}
	gcm, err := gcmFor(c.recvKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv(c.recvCtr), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt: %w", err)
	}
	c.recvCtr++
	return plaintext, nil
}
