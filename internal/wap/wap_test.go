package wap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientPayloadRoundTrip(t *testing.T) {
	p := &ClientPayload{
		Username: 15550001111,
		PushName: "Tester",
		UserAgent: &UserAgent{
			Platform:   "WEB",
			AppVersion: "2.3000.0",
		},
		Passive: true,
	}
	dec, err := DecodeClientPayload(EncodeClientPayload(p))
	require.NoError(t, err)
	require.Equal(t, p.Username, dec.Username)
	require.Equal(t, p.PushName, dec.PushName)
	require.True(t, dec.Passive)
	require.Equal(t, "WEB", dec.UserAgent.Platform)
	require.Equal(t, "2.3000.0", dec.UserAgent.AppVersion)
}

func TestDevicePairingDataRoundTrip(t *testing.T) {
	p := &ClientPayload{
		Pairing: &DevicePairingData{
			ERegID:   []byte{1, 2, 3, 4},
			EKeyType: []byte{5},
			EIdent:   bytes.Repeat([]byte{0xAB}, 32),
		},
	}
	dec, err := DecodeClientPayload(EncodeClientPayload(p))
	require.NoError(t, err)
	require.NotNil(t, dec.Pairing)
	require.Equal(t, p.Pairing.ERegID, dec.Pairing.ERegID)
	require.Equal(t, p.Pairing.EIdent, dec.Pairing.EIdent)
}

func TestHandshakeMessageRoundTrip(t *testing.T) {
	eph := bytes.Repeat([]byte{1}, 32)
	m := &HandshakeMessage{ClientHello: &ClientHello{Ephemeral: eph}}
	dec, err := DecodeHandshakeMessage(EncodeHandshakeMessage(m))
	require.NoError(t, err)
	require.NotNil(t, dec.ClientHello)
	require.Equal(t, eph, dec.ClientHello.Ephemeral)

	sh := &HandshakeMessage{ServerHello: &ServerHello{
		Ephemeral: bytes.Repeat([]byte{2}, 32),
		Static:    bytes.Repeat([]byte{3}, 48),
		Payload:   bytes.Repeat([]byte{4}, 100),
	}}
	dec, err = DecodeHandshakeMessage(EncodeHandshakeMessage(sh))
	require.NoError(t, err)
	require.NotNil(t, dec.ServerHello)
	require.Equal(t, sh.ServerHello.Payload, dec.ServerHello.Payload)
}

func TestCertChainRoundTrip(t *testing.T) {
	details := EncodeCertChainDetails(&CertChainDetails{Serial: 42, IssuerSerial: 1, Key: bytes.Repeat([]byte{9}, 32)})
	chain := &CertChain{
		Leaf:         &NoiseCertificate{Details: details, Signature: bytes.Repeat([]byte{7}, 64)},
		Intermediate: &NoiseCertificate{Details: details, Signature: bytes.Repeat([]byte{8}, 64)},
	}
	dec, err := DecodeCertChain(EncodeCertChain(chain))
	require.NoError(t, err)
	require.NotNil(t, dec.Leaf)
	require.NotNil(t, dec.Intermediate)

	leafDetails, err := DecodeCertChainDetails(dec.Leaf.Details)
	require.NoError(t, err)
	require.EqualValues(t, 42, leafDetails.Serial)
}

func TestADVSignedDeviceIdentityRoundTrip(t *testing.T) {
	details := EncodeADVDeviceIdentity(&ADVDeviceIdentity{RawID: 7, Timestamp: 1234, KeyIndex: 1})
	s := &ADVSignedDeviceIdentity{
		Details:          details,
		AccountSignature: bytes.Repeat([]byte{1}, 64),
	}
	dec, err := DecodeADVSignedDeviceIdentity(EncodeADVSignedDeviceIdentity(s))
	require.NoError(t, err)
	require.Equal(t, s.AccountSignature, dec.AccountSignature)

	identity, err := DecodeADVDeviceIdentity(dec.Details)
	require.NoError(t, err)
	require.EqualValues(t, 7, identity.RawID)
	require.EqualValues(t, 1234, identity.Timestamp)
}

func TestSignalMessageRoundTrip(t *testing.T) {
	m := &SignalMessage{
		RatchetKey:      bytes.Repeat([]byte{1}, 32),
		Counter:         5,
		PreviousCounter: 3,
		Ciphertext:      []byte("ciphertext"),
	}
	dec, err := DecodeSignalMessage(EncodeSignalMessage(m))
	require.NoError(t, err)
	require.Equal(t, m.RatchetKey, dec.RatchetKey)
	require.EqualValues(t, 5, dec.Counter)
	require.EqualValues(t, 3, dec.PreviousCounter)
	require.Equal(t, m.Ciphertext, dec.Ciphertext)
}

func TestPreKeySignalMessageRoundTrip(t *testing.T) {
	pkID := uint32(99)
	inner := EncodeSignalMessage(&SignalMessage{RatchetKey: bytes.Repeat([]byte{1}, 32), Counter: 0})
	m := &PreKeySignalMessage{
		RegistrationID: 12345,
		PreKeyID:       &pkID,
		SignedPreKeyID: 1,
		BaseKey:        bytes.Repeat([]byte{2}, 32),
		IdentityKey:    bytes.Repeat([]byte{3}, 32),
		Message:        inner,
	}
	dec, err := DecodePreKeySignalMessage(EncodePreKeySignalMessage(m))
	require.NoError(t, err)
	require.NotNil(t, dec.PreKeyID)
	require.EqualValues(t, 99, *dec.PreKeyID)
	require.EqualValues(t, 12345, dec.RegistrationID)
	require.Equal(t, m.BaseKey, dec.BaseKey)
}
