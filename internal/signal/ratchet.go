package signal

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
)

var (
	chainKeySeed    = []byte{0x02}
	messageKeySeed  = []byte{0x01}
	rootHKDFInfo    = []byte("WhisperRatchet")
	messageHKDFInfo = []byte("WhisperMessageKeys")
)

// messageKeys are the three values KDF_CK's message-key output is
// expanded into: an AES-256 key, an HMAC-SHA256 key, and an IV, per the
// Double Ratchet message key derivation.
type messageKeys struct {
	cipherKey [32]byte
	macKey    [32]byte
	iv        [16]byte
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// kdfChainStep advances a symmetric-key ratchet chain one step,
// returning the next chain key and the message keys derived for the
// current step.
func kdfChainStep(ck [32]byte) (next [32]byte, mk messageKeys, err error) {
	nextChainKey := hmacSHA256(ck[:], chainKeySeed)
	copy(next[:], nextChainKey)

	inputKeyMaterial := hmacSHA256(ck[:], messageKeySeed)
	r := hkdf.New(sha256.New, inputKeyMaterial, make([]byte, 32), messageHKDFInfo)
	var out [80]byte
	if _, err = r.Read(out[:]); err != nil {
		return next, mk, err
	}
	copy(mk.cipherKey[:], out[0:32])
	copy(mk.macKey[:], out[32:64])
	copy(mk.iv[:], out[64:80])
	return next, mk, nil
}

// kdfRootStep performs the DH ratchet's root-key KDF: given the current
// root key and a fresh DH output, derives the next root key and the
// chain key that seeds the new sending or receiving chain.
func kdfRootStep(rootKey [32]byte, dhOutput []byte) (nextRoot [32]byte, chainKey [32]byte, err error) {
	r := hkdf.New(sha256.New, dhOutput, rootKey[:], rootHKDFInfo)
	var out [64]byte
	if _, err = r.Read(out[:]); err != nil {
		return nextRoot, chainKey, err
	}
	copy(nextRoot[:], out[:32])
	copy(chainKey[:], out[32:])
	return nextRoot, chainKey, nil
}
