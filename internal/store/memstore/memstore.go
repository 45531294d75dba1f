// Package memstore is an in-memory store.Store, used by tests and by
// callers that don't need the state to survive a process restart.
package memstore

import (
	"sync"

	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
)

type Store struct {
	mu sync.Mutex

	creds *store.Credentials

	preKeys       map[uint32]signal.KeyPair
	signedPreKeys map[uint32]signal.PreKey
	sessions      map[signal.Address]*signal.SessionRecord
	peerIdentity  map[signal.Address][32]byte
	senderKeys    map[string][]byte
	processed     map[string]struct{}
	processedSeq  []string
}

const processedCacheBound = 2000

func New() *Store {
	return &Store{
		preKeys:       make(map[uint32]signal.KeyPair),
		signedPreKeys: make(map[uint32]signal.PreKey),
		sessions:      make(map[signal.Address]*signal.SessionRecord),
		peerIdentity:  make(map[signal.Address][32]byte),
		senderKeys:    make(map[string][]byte),
		processed:     make(map[string]struct{}),
	}
}

func (s *Store) LoadCredentials() (*store.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, nil
	}
	c := *s.creds
	return &c, nil
}

func (s *Store) SaveCredentials(c *store.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds = &cp
	if c.SignedPreKey.ID != 0 || c.SignedPreKey.KeyPair.Public != ([32]byte{}) {
		s.signedPreKeys[c.SignedPreKey.ID] = signal.PreKey{
			ID:        c.SignedPreKey.ID,
			KeyPair:   c.SignedPreKey.KeyPair,
			Signature: c.SignedPreKey.Signature,
		}
	}
	return nil
}

func (s *Store) LoadIdentityKeyPair() (signal.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return signal.KeyPair{}, nil
	}
	return s.creds.SignedIdentityKey, nil
}

func (s *Store) LoadRegistrationID() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return 0, nil
	}
	return s.creds.RegistrationID, nil
}

func (s *Store) LoadSession(addr signal.Address) (*signal.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[addr]
	return rec, ok, nil
}

func (s *Store) StoreSession(addr signal.Address, record *signal.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[addr] = record
	return nil
}

func (s *Store) LoadSignedPreKey(id uint32) (signal.PreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ok := s.signedPreKeys[id]
	return pk, ok, nil
}

func (s *Store) LoadPreKey(id uint32) (signal.PreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kp, ok := s.preKeys[id]
	if !ok {
		return signal.PreKey{}, false, nil
	}
	return signal.PreKey{ID: id, KeyPair: kp}, true, nil
}

func (s *Store) DeletePreKey(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.preKeys, id)
	return nil
}

func (s *Store) LoadPeerIdentity(addr signal.Address) ([32]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.peerIdentity[addr]
	return key, ok, nil
}

func (s *Store) SavePeerIdentity(addr signal.Address, key [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerIdentity[addr] = key
	return nil
}

func (s *Store) PutPreKey(id uint32, kp signal.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preKeys[id] = kp
	return nil
}

// NextPreKeyBatch generates count fresh pre-keys, assigning ids
// starting at the credentials' next_pre_key_id counter and advancing
// it, per the monotonic-counter invariant in the data model.
func (s *Store) NextPreKeyBatch(count int) ([]signal.PreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, nil
	}
	out := make([]signal.PreKey, 0, count)
	for i := 0; i < count; i++ {
		kp, err := signal.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		id := s.creds.NextPreKeyID
		s.creds.NextPreKeyID++
		s.preKeys[id] = kp
		out = append(out, signal.PreKey{ID: id, KeyPair: kp})
	}
	return out, nil
}

func (s *Store) GetAllSessionsForUser(user string) (map[signal.Address]*signal.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[signal.Address]*signal.SessionRecord)
	for addr, rec := range s.sessions {
		if addr.User == user {
			out[addr] = rec
		}
	}
	return out, nil
}

func (s *Store) PutSenderKey(name string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senderKeys[name] = record
	return nil
}

func (s *Store) GetSenderKey(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.senderKeys[name]
	return record, ok, nil
}

// IsProcessed checks and records (chat, id) in a bounded
// insertion-order cache, oldest evicted first once the bound is
// exceeded.
func (s *Store) IsProcessed(chat, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chat + "\x00" + id
	if _, ok := s.processed[key]; ok {
		return true, nil
	}
	s.processed[key] = struct{}{}
	s.processedSeq = append(s.processedSeq, key)
	if len(s.processedSeq) > processedCacheBound {
		oldest := s.processedSeq[0]
		s.processedSeq = s.processedSeq[1:]
		delete(s.processed, oldest)
	}
	return false, nil
}
