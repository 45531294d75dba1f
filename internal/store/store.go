// Package store defines the persistence boundary the connection
// manager, authenticator, and session cipher depend on: credentials,
// pre-keys, Signal sessions, peer identities, and sender keys, each
// addressed the way a real deployment keys them on disk (pre-key:<id>,
// session:<addr>, ...). internal/store/memstore and
// internal/store/sqlstore provide concrete backends.
package store

import (
	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/signal"
)

// MeInfo identifies the local account once pairing has completed.
type MeInfo struct {
	JID  jid.JID
	Name string
	LID  string
}

// SignedPreKey is the one signed pre-key a device publishes at a time,
// carrying the identity-key signature over its public half.
type SignedPreKey struct {
	ID        uint32
	KeyPair   signal.KeyPair
	Signature []byte
}

// Credentials is the full persisted identity and pairing state for one
// account, serialized atomically by SaveCredentials after every
// mutation that affects pairing or counters.
type Credentials struct {
	NoiseKey            signal.KeyPair
	PairingEphemeralKey signal.KeyPair
	SignedIdentityKey   signal.KeyPair
	SignedPreKey        SignedPreKey
	RegistrationID      uint32 // 14-bit
	ADVSecretKey        [32]byte

	Me      *MeInfo
	Account []byte // ADV-signed device identity, encoded protobuf

	SignalIdentities map[string][32]byte // peer JID string -> identity public key

	NextPreKeyID            uint32
	FirstUnuploadedPreKeyID uint32
	Registered              bool

	RoutingInfo []byte
}

// Store is the full persistence contract. It embeds signal.Store so a
// *store.Store value can be handed directly to signal.NewSessionCipher.
type Store interface {
	signal.Store

	LoadCredentials() (*Credentials, error)
	SaveCredentials(*Credentials) error

	PutPreKey(id uint32, kp signal.KeyPair) error
	NextPreKeyBatch(count int) ([]signal.PreKey, error)

	GetAllSessionsForUser(user string) (map[signal.Address]*signal.SessionRecord, error)

	PutSenderKey(name string, record []byte) error
	GetSenderKey(name string) ([]byte, bool, error)

	// IsProcessed reports whether (chat, id) has already been seen, and
	// records it as seen if not, implementing the connection manager's
	// bounded inbound-duplicate cache atomically.
	IsProcessed(chat, id string) (alreadySeen bool, err error)
}
