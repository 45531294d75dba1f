package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "store.db")
	st, err := Open(dsn)
	require.NoError(t, err)
	return st
}

func TestOpenRejectsUnsupportedDSN(t *testing.T) {
	_, err := Open("postgres://localhost/db")
	require.Error(t, err)
}

func TestCredentialsRoundTrip(t *testing.T) {
	st := openTestStore(t)

	empty, err := st.LoadCredentials()
	require.NoError(t, err)
	require.Nil(t, empty)

	noiseKey, err := signal.GenerateKeyPair()
	require.NoError(t, err)
	identityKey, err := signal.GenerateKeyPair()
	require.NoError(t, err)

	creds := &store.Credentials{
		NoiseKey:          noiseKey,
		SignedIdentityKey: identityKey,
		SignedPreKey:      store.SignedPreKey{ID: 7, KeyPair: identityKey, Signature: []byte("sig")},
		RegistrationID:    4242,
		Me:                &store.MeInfo{JID: mustParseJID("15551234567@s.whatsapp.net"), Name: "Test User"},
		SignalIdentities:  map[string][32]byte{"peer.0": {1, 2, 3}},
		NextPreKeyID:      5,
		Registered:        true,
	}
	require.NoError(t, st.SaveCredentials(creds))

	loaded, err := st.LoadCredentials()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, noiseKey, loaded.NoiseKey)
	require.Equal(t, uint32(4242), loaded.RegistrationID)
	require.Equal(t, uint32(7), loaded.SignedPreKey.ID)
	require.True(t, loaded.Registered)
	require.NotNil(t, loaded.Me)
	require.Equal(t, "15551234567", loaded.Me.JID.User)
	require.Equal(t, [32]byte{1, 2, 3}, loaded.SignalIdentities["peer.0"])
}

func TestSessionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	addr := signal.Address{User: "15551234567", Device: 0}

	_, ok, err := st.LoadSession(addr)
	require.NoError(t, err)
	require.False(t, ok)

	kp, err := signal.GenerateKeyPair()
	require.NoError(t, err)
	record := &signal.SessionRecord{Current: &signal.SessionState{
		RemoteIdentityKey: kp.Public,
		RootKey:           kp.Private,
		SenderRatchetKey:  kp,
	}}
	require.NoError(t, st.StoreSession(addr, record))

	loaded, ok, err := st.LoadSession(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kp.Public, loaded.Current.RemoteIdentityKey)
}

func TestPreKeyLifecycle(t *testing.T) {
	st := openTestStore(t)

	kp, err := signal.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, st.PutPreKey(9, kp))

	loaded, ok, err := st.LoadPreKey(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kp.Public, loaded.KeyPair.Public)

	require.NoError(t, st.DeletePreKey(9))
	_, ok, err = st.LoadPreKey(9)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNextPreKeyBatchAdvancesCounter(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveCredentials(&store.Credentials{NextPreKeyID: 1}))

	batch, err := st.NextPreKeyBatch(3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, uint32(1), batch[0].ID)
	require.Equal(t, uint32(3), batch[2].ID)

	creds, err := st.LoadCredentials()
	require.NoError(t, err)
	require.Equal(t, uint32(4), creds.NextPreKeyID)
}

func TestGetAllSessionsForUserFiltersByUser(t *testing.T) {
	st := openTestStore(t)
	kp, err := signal.GenerateKeyPair()
	require.NoError(t, err)

	rec := &signal.SessionRecord{Current: &signal.SessionState{RemoteIdentityKey: kp.Public, SenderRatchetKey: kp}}
	require.NoError(t, st.StoreSession(signal.Address{User: "alice", Device: 0}, rec))
	require.NoError(t, st.StoreSession(signal.Address{User: "alice", Device: 1}, rec))
	require.NoError(t, st.StoreSession(signal.Address{User: "bob", Device: 0}, rec))

	sessions, err := st.GetAllSessionsForUser("alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestIsProcessedMarksSeen(t *testing.T) {
	st := openTestStore(t)

	seen, err := st.IsProcessed("chat1", "msg1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = st.IsProcessed("chat1", "msg1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = st.IsProcessed("chat1", "msg2")
	require.NoError(t, err)
	require.False(t, seen)
}
