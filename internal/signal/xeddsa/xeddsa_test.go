package xeddsa

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func genMontgomeryKeyPair(t *testing.T) (priv, pub [32]byte) {
	t.Helper()
	_, err := rand.Read(priv[:])
	require.NoError(t, err)
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	require.NoError(t, err)
	copy(pub[:], pubSlice)
	return
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub := genMontgomeryKeyPair(t)
	msg := []byte("signed pre key payload")

	sig, err := Sign(priv, msg, rand.Reader)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	require.NoError(t, Verify(pub, msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, pub := genMontgomeryKeyPair(t)
	msg := []byte("original message")
	sig, err := Sign(priv, msg, rand.Reader)
	require.NoError(t, err)

	err = Verify(pub, []byte("tampered message"), sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := genMontgomeryKeyPair(t)
	_, otherPub := genMontgomeryKeyPair(t)
	msg := []byte("message")
	sig, err := Sign(priv, msg, rand.Reader)
	require.NoError(t, err)

	err = Verify(otherPub, msg, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	_, pub := genMontgomeryKeyPair(t)
	err := Verify(pub, []byte("m"), bytes.Repeat([]byte{0}, 10))
	require.ErrorIs(t, err, ErrInvalidSignature)
}
