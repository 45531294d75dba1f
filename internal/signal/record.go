package signal

// maxArchivedStates bounds how many superseded ratchet states a session
// record keeps around to decrypt messages still in flight from before
// the last session re-negotiation.
const maxArchivedStates = 40

// maxSkippedMessageKeys bounds the out-of-order delivery window per
// receiving chain.
const maxSkippedMessageKeys = 2000

// chain is one side of the ratchet: a KDF chain key plus the index of
// the next message key to derive from it.
type chain struct {
	key   [32]byte
	index uint32
}

// receiverChain is a chain keyed by the sender ratchet public key that
// produced it, holding any message keys skipped while waiting for an
// earlier message to arrive out of order.
type receiverChain struct {
	ratchetKey  [32]byte
	chain       chain
	skippedKeys map[uint32]messageKeys
}

// pendingPreKey records the one-time/signed pre-key IDs we used to
// initiate a session, carried until the peer's first reply confirms
// they've adopted it.
type pendingPreKey struct {
	preKeyID       *uint32
	signedPreKeyID uint32
	baseKey        [32]byte
}

// SessionState is one Double Ratchet session: the sending chain (with
// our current ratchet key pair), zero or more receiving chains (one per
// ratchet step the peer has taken that we've seen), and the root key
// that seeds new chains on each DH ratchet step.
type SessionState struct {
	RemoteIdentityKey  [32]byte
	RootKey            [32]byte
	SenderRatchetKey   KeyPair
	SenderChain        chain
	ReceiverChains     []receiverChain
	PreviousCounter    uint32
	PendingPreKey      *pendingPreKey
	RemoteRegistration uint32
}

// SessionRecord holds the current session state plus a bounded history
// of superseded states, addressed by most-recently-used ordering when
// dispatching an inbound message of unknown session generation.
type SessionRecord struct {
	Current  *SessionState
	Archived []*SessionState
}

// promote moves the current state to the front of the archive and
// installs next as current, evicting the oldest archived state once the
// bound is exceeded.
func (r *SessionRecord) promote(next *SessionState) {
	if r.Current != nil {
		r.Archived = append([]*SessionState{r.Current}, r.Archived...)
		if len(r.Archived) > maxArchivedStates {
			r.Archived = r.Archived[:maxArchivedStates]
		}
	}
	r.Current = next
}

// candidates returns every state worth trying to decrypt against, most
// recently used first.
func (r *SessionRecord) candidates() []*SessionState {
	if r.Current == nil {
		return r.Archived
	}
	out := make([]*SessionState, 0, 1+len(r.Archived))
	out = append(out, r.Current)
	return append(out, r.Archived...)
}

// clone deep-copies a session state so a decrypt attempt can mutate the
// ratchet speculatively and be discarded on failure, leaving the stored
// state untouched until a candidate actually succeeds.
func (s *SessionState) clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.ReceiverChains = make([]receiverChain, len(s.ReceiverChains))
	for i, rc := range s.ReceiverChains {
		out.ReceiverChains[i] = rc
		out.ReceiverChains[i].skippedKeys = make(map[uint32]messageKeys, len(rc.skippedKeys))
		for k, v := range rc.skippedKeys {
			out.ReceiverChains[i].skippedKeys[k] = v
		}
	}
	if s.PendingPreKey != nil {
		pk := *s.PendingPreKey
		out.PendingPreKey = &pk
	}
	return &out
}

// replace overwrites the stored state at whichever slot (Current or one
// of Archived) the pointer original came from with next's contents.
func (r *SessionRecord) replace(original, next *SessionState) {
	if r.Current == original {
		*r.Current = *next
		return
	}
	for _, st := range r.Archived {
		if st == original {
			*st = *next
			return
		}
	}
}
