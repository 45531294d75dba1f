package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory signal.Store, local to this test
// file so it doesn't pull in internal/store (which itself depends on
// this package).
type fakeStore struct {
	identity       KeyPair
	registrationID uint32
	sessions       map[Address]*SessionRecord
	signedPreKeys  map[uint32]PreKey
	preKeys        map[uint32]PreKey
	peerIdentities map[Address][32]byte
}

func newFakeStore(t *testing.T, registrationID uint32) *fakeStore {
	t.Helper()
	identity, err := GenerateKeyPair()
	require.NoError(t, err)
	return &fakeStore{
		identity:       identity,
		registrationID: registrationID,
		sessions:       make(map[Address]*SessionRecord),
		signedPreKeys:  make(map[uint32]PreKey),
		preKeys:        make(map[uint32]PreKey),
		peerIdentities: make(map[Address][32]byte),
	}
}

func (s *fakeStore) LoadIdentityKeyPair() (KeyPair, error) { return s.identity, nil }
func (s *fakeStore) LoadRegistrationID() (uint32, error)   { return s.registrationID, nil }

func (s *fakeStore) LoadSession(addr Address) (*SessionRecord, bool, error) {
	rec, ok := s.sessions[addr]
	return rec, ok, nil
}

func (s *fakeStore) StoreSession(addr Address, record *SessionRecord) error {
	s.sessions[addr] = record
	return nil
}

func (s *fakeStore) LoadSignedPreKey(id uint32) (PreKey, bool, error) {
	pk, ok := s.signedPreKeys[id]
	return pk, ok, nil
}

func (s *fakeStore) LoadPreKey(id uint32) (PreKey, bool, error) {
	pk, ok := s.preKeys[id]
	return pk, ok, nil
}

func (s *fakeStore) DeletePreKey(id uint32) error {
	delete(s.preKeys, id)
	return nil
}

func (s *fakeStore) LoadPeerIdentity(addr Address) ([32]byte, bool, error) {
	key, ok := s.peerIdentities[addr]
	return key, ok, nil
}

func (s *fakeStore) SavePeerIdentity(addr Address, key [32]byte) error {
	s.peerIdentities[addr] = key
	return nil
}

// bobBundle publishes bob's current signed pre-key (and, optionally, a
// one-time pre-key) as an OutgoingBundle alice can initiate a session
// against, mirroring what a real pre-key fetch off the server returns.
func bobBundle(bob *fakeStore, signedPreKeyID uint32, withOneTime bool) OutgoingBundle {
	bundle := OutgoingBundle{
		IdentityKey:    bob.identity.Public,
		SignedPreKey:   bob.signedPreKeys[signedPreKeyID],
		RegistrationID: bob.registrationID,
	}
	if withOneTime {
		for _, pk := range bob.preKeys {
			p := pk
			bundle.OneTimePreKey = &p
			break
		}
	}
	return bundle
}

func setupSignedPreKey(t *testing.T, store *fakeStore, id uint32) {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	store.signedPreKeys[id] = PreKey{ID: id, KeyPair: kp}
}

func TestSessionCipherRoundTripWithPreKeyMessage(t *testing.T) {
	alice := newFakeStore(t, 1001)
	bob := newFakeStore(t, 2002)
	setupSignedPreKey(t, bob, 1)

	aliceAddr := Address{User: "alice", Device: 0}
	bobAddr := Address{User: "bob", Device: 0}

	outgoing, baseKey, err := InitOutgoing(alice.identity, bobBundle(bob, 1, false))
	require.NoError(t, err)
	alice.sessions[bobAddr] = &SessionRecord{Current: outgoing}

	aliceCipher := NewSessionCipher(alice)
	wireType, payload, err := aliceCipher.Encrypt(bobAddr, []byte("hello bob"))
	require.NoError(t, err)
	require.Equal(t, "pkmsg", wireType)

	bobCipher := NewSessionCipher(bob)
	plaintext, err := bobCipher.Decrypt(aliceAddr, wireType, payload)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plaintext))

	// bob's session should now carry alice's base key in its pending
	// pre-key/ratchet bookkeeping implicitly via the stored record.
	rec, ok, err := bob.LoadSession(aliceAddr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, baseKey, rec.Current.PendingPreKey.baseKey)

	// bob replies; alice decrypts as a plain "msg" against her existing session.
	reply, replyPayload, err := bobCipher.Encrypt(aliceAddr, []byte("hi alice"))
	require.NoError(t, err)
	require.Equal(t, "msg", reply)

	replyPlaintext, err := aliceCipher.Decrypt(bobAddr, reply, replyPayload)
	require.NoError(t, err)
	require.Equal(t, "hi alice", string(replyPlaintext))
}

func TestSessionCipherOutOfOrderDelivery(t *testing.T) {
	alice := newFakeStore(t, 1001)
	bob := newFakeStore(t, 2002)
	setupSignedPreKey(t, bob, 1)

	aliceAddr := Address{User: "alice", Device: 0}
	bobAddr := Address{User: "bob", Device: 0}

	outgoing, _, err := InitOutgoing(alice.identity, bobBundle(bob, 1, false))
	require.NoError(t, err)
	alice.sessions[bobAddr] = &SessionRecord{Current: outgoing}

	aliceCipher := NewSessionCipher(alice)
	bobCipher := NewSessionCipher(bob)

	_, first, err := aliceCipher.Encrypt(bobAddr, []byte("one"))
	require.NoError(t, err)
	_, second, err := aliceCipher.Encrypt(bobAddr, []byte("two"))
	require.NoError(t, err)

	// Deliver "two" before "one": bob must skip-cache the key for
	// counter 0 and still decrypt "one" correctly when it arrives late.
	pt2, err := bobCipher.Decrypt(aliceAddr, "pkmsg", second)
	require.NoError(t, err)
	require.Equal(t, "two", string(pt2))

	pt1, err := bobCipher.Decrypt(aliceAddr, "msg", first)
	require.NoError(t, err)
	require.Equal(t, "one", string(pt1))
}

func TestSessionCipherRejectsTamperedMAC(t *testing.T) {
	alice := newFakeStore(t, 1001)
	bob := newFakeStore(t, 2002)
	setupSignedPreKey(t, bob, 1)

	bobAddr := Address{User: "bob", Device: 0}
	aliceAddr := Address{User: "alice", Device: 0}

	outgoing, _, err := InitOutgoing(alice.identity, bobBundle(bob, 1, false))
	require.NoError(t, err)
	alice.sessions[bobAddr] = &SessionRecord{Current: outgoing}

	aliceCipher := NewSessionCipher(alice)
	_, payload, err := aliceCipher.Encrypt(bobAddr, []byte("tamper me"))
	require.NoError(t, err)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-1] ^= 0xFF

	bobCipher := NewSessionCipher(bob)
	_, err = bobCipher.Decrypt(aliceAddr, "pkmsg", tampered)
	require.Error(t, err)
}
