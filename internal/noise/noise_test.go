package noise

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waconnect/waconnect-go/internal/signal/xeddsa"
	"github.com/waconnect/waconnect-go/internal/wap"
)

// serverXX drives the server side of the XX pattern directly against
// the symmetric-state primitives, standing in for the real WhatsApp
// socket in these tests.
type serverXX struct {
	state  *symmetricState
	eph    KeyPair
	static KeyPair
}

func newServerXX(t *testing.T, static KeyPair, prologue []byte) *serverXX {
	t.Helper()
	eph, err := GenerateKeyPair()
	require.NoError(t, err)
	return &serverXX{state: newSymmetricState(prologue), eph: eph, static: static}
}

func (s *serverXX) readClientHello(data []byte) [32]byte {
	msg, err := wap.DecodeHandshakeMessage(data)
	if err != nil || msg.ClientHello == nil {
		panic("bad client hello")
	}
	var clientEph [32]byte
	copy(clientEph[:], msg.ClientHello.Ephemeral)
	s.state.mixHash(clientEph[:])
	return clientEph
}

func (s *serverXX) writeServerHello(clientEph [32]byte, certChainPayload []byte) []byte {
	s.state.mixHash(s.eph.Public[:])

	shared1, err := dh(s.eph.Private, clientEph)
	if err != nil {
		panic(err)
	}
	s.state.mixKey(shared1)

	encStatic, err := s.state.encryptAndHash(s.static.Public[:])
	if err != nil {
		panic(err)
	}

	shared2, err := dh(s.static.Private, clientEph)
	if err != nil {
		panic(err)
	}
	s.state.mixKey(shared2)

	encPayload, err := s.state.encryptAndHash(certChainPayload)
	if err != nil {
		panic(err)
	}

	return wap.EncodeHandshakeMessage(&wap.HandshakeMessage{
		ServerHello: &wap.ServerHello{Ephemeral: s.eph.Public[:], Static: encStatic, Payload: encPayload},
	})
}

func (s *serverXX) readClientFinish(data []byte) (clientPayload []byte, serverCipher *Cipher) {
	msg, err := wap.DecodeHandshakeMessage(data)
	if err != nil || msg.ClientFinish == nil {
		panic("bad client finish")
	}

	clientStaticPlain, err := s.state.decryptAndHash(msg.ClientFinish.Static)
	if err != nil {
		panic(err)
	}
	var clientStatic [32]byte
	copy(clientStatic[:], clientStaticPlain)

	shared3, err := dh(s.eph.Private, clientStatic)
	if err != nil {
		panic(err)
	}
	s.state.mixKey(shared3)

	payload, err := s.state.decryptAndHash(msg.ClientFinish.Payload)
	if err != nil {
		panic(err)
	}

	// From the server's perspective (the responder), Split()'s k1 is
	// initiator->responder (its recv key) and k2 is responder->initiator
	// (its send key) -- the mirror image of the client's Cipher.
	k1, k2 := s.state.split()
	return payload, newCipher(k2, k1)
}

func buildTestCertChain(t *testing.T, serverStaticPub [32]byte) (*wap.CertChain, [32]byte) {
	t.Helper()
	root, err := GenerateKeyPair()
	require.NoError(t, err)
	intermediate, err := GenerateKeyPair()
	require.NoError(t, err)

	intermediateDetails := wap.EncodeCertChainDetails(&wap.CertChainDetails{Serial: 2, Key: intermediate.Public[:]})
	intermediateSig, err := xeddsa.Sign(root.Private, intermediateDetails, rand.Reader)
	require.NoError(t, err)

	leafDetails := wap.EncodeCertChainDetails(&wap.CertChainDetails{Serial: 1, IssuerSerial: 2, Key: serverStaticPub[:]})
	leafSig, err := xeddsa.Sign(intermediate.Private, leafDetails, rand.Reader)
	require.NoError(t, err)

	chain := &wap.CertChain{
		Leaf:         &wap.NoiseCertificate{Details: leafDetails, Signature: leafSig},
		Intermediate: &wap.NoiseCertificate{Details: intermediateDetails, Signature: intermediateSig},
	}
	return chain, root.Public
}

func TestFullHandshakeAndCertChain(t *testing.T) {
	clientStatic, err := GenerateKeyPair()
	require.NoError(t, err)
	serverStatic, err := GenerateKeyPair()
	require.NoError(t, err)

	prologue := []byte("WA\x06\x02")

	hs, err := NewHandshake(clientStatic, prologue)
	require.NoError(t, err)
	clientHello := hs.WriteClientHello()

	srv := newServerXX(t, serverStatic, prologue)
	clientEph := srv.readClientHello(clientHello)

	chain, rootPub := buildTestCertChain(t, serverStatic.Public)
	certPayload := wap.EncodeCertChain(chain)
	serverHello := srv.writeServerHello(clientEph, certPayload)

	recvCertPayload, serverStaticKey, err := hs.ReadServerHello(serverHello)
	require.NoError(t, err)

	decodedChain, err := wap.DecodeCertChain(recvCertPayload)
	require.NoError(t, err)
	require.NoError(t, VerifyCertChain(decodedChain, serverStaticKey, rootPub))

	clientPayload := []byte("client payload placeholder")
	clientFinish, clientCipher, err := hs.WriteClientFinish(clientPayload)
	require.NoError(t, err)

	recvPayload, serverCipher := srv.readClientFinish(clientFinish)
	require.Equal(t, clientPayload, recvPayload)

	ciphertext, err := clientCipher.Encrypt([]byte("hello server"))
	require.NoError(t, err)
	plaintext, err := serverCipher.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "hello server", string(plaintext))

	reply, err := serverCipher.Encrypt([]byte("hello client"))
	require.NoError(t, err)
	decoded, err := clientCipher.Decrypt(reply)
	require.NoError(t, err)
	require.Equal(t, "hello client", string(decoded))
}
