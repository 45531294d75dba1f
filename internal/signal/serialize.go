package signal

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// serializeVersion guards the wire format of EncodeSessionRecord; bump
// it if the struct shape changes in a way that breaks decoding.
const serializeVersion = 1

// EncodeSessionRecord packs a SessionRecord into a flat byte slice.
// Every field here is unexported to callers outside this package (the
// ratchet's chain/receiverChain/messageKeys types), so a store
// implementation cannot reflect its way to a lossless encoding the way
// encoding/gob or encoding/json would for exported structs; this
// package writes the bytes itself instead.
func EncodeSessionRecord(r *SessionRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(serializeVersion)
	writeState(&buf, r.Current)
	writeUint32(&buf, uint32(len(r.Archived)))
	for _, st := range r.Archived {
		writeState(&buf, st)
	}
	return buf.Bytes(), nil
}

// DecodeSessionRecord is the inverse of EncodeSessionRecord.
func DecodeSessionRecord(data []byte) (*SessionRecord, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("signal: empty session record")
	}
	if version != serializeVersion {
		return nil, fmt.Errorf("signal: unsupported session record version %d", version)
	}
	current, err := readState(r)
	if err != nil {
		return nil, err
	}
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	archived := make([]*SessionState, 0, n)
	for i := uint32(0); i < n; i++ {
		st, err := readState(r)
		if err != nil {
			return nil, err
		}
		archived = append(archived, st)
	}
	return &SessionRecord{Current: current, Archived: archived}, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, fmt.Errorf("signal: truncated session record: %w", err)
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func writeBytes32(buf *bytes.Buffer, b [32]byte) { buf.Write(b[:]) }

func readBytes32(r *bytes.Reader) ([32]byte, error) {
	var out [32]byte
	if _, err := r.Read(out[:]); err != nil {
		return out, fmt.Errorf("signal: truncated session record: %w", err)
	}
	return out, nil
}

// writeState writes a presence flag, then the state if present, so a
// nil Current round-trips as nil.
func writeState(buf *bytes.Buffer, s *SessionState) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeBytes32(buf, s.RemoteIdentityKey)
	writeBytes32(buf, s.RootKey)
	writeBytes32(buf, s.SenderRatchetKey.Private)
	writeBytes32(buf, s.SenderRatchetKey.Public)
	writeChain(buf, s.SenderChain)
	writeUint32(buf, uint32(len(s.ReceiverChains)))
	for _, rc := range s.ReceiverChains {
		writeBytes32(buf, rc.ratchetKey)
		writeChain(buf, rc.chain)
		writeUint32(buf, uint32(len(rc.skippedKeys)))
		for counter, mk := range rc.skippedKeys {
			writeUint32(buf, counter)
			writeMessageKeys(buf, mk)
		}
	}
	writeUint32(buf, s.PreviousCounter)
	if s.PendingPreKey == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		if s.PendingPreKey.preKeyID == nil {
			buf.WriteByte(0)
		} else {
			buf.WriteByte(1)
			writeUint32(buf, *s.PendingPreKey.preKeyID)
		}
		writeUint32(buf, s.PendingPreKey.signedPreKeyID)
		writeBytes32(buf, s.PendingPreKey.baseKey)
	}
	writeUint32(buf, s.RemoteRegistration)
}

func readState(r *bytes.Reader) (*SessionState, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("signal: truncated session record: %w", err)
	}
	if present == 0 {
		return nil, nil
	}
	s := &SessionState{}
	if s.RemoteIdentityKey, err = readBytes32(r); err != nil {
		return nil, err
	}
	if s.RootKey, err = readBytes32(r); err != nil {
		return nil, err
	}
	if s.SenderRatchetKey.Private, err = readBytes32(r); err != nil {
		return nil, err
	}
	if s.SenderRatchetKey.Public, err = readBytes32(r); err != nil {
		return nil, err
	}
	if s.SenderChain, err = readChain(r); err != nil {
		return nil, err
	}
	nChains, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	s.ReceiverChains = make([]receiverChain, 0, nChains)
	for i := uint32(0); i < nChains; i++ {
		var rc receiverChain
		if rc.ratchetKey, err = readBytes32(r); err != nil {
			return nil, err
		}
		if rc.chain, err = readChain(r); err != nil {
			return nil, err
		}
		nSkipped, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		rc.skippedKeys = make(map[uint32]messageKeys, nSkipped)
		for j := uint32(0); j < nSkipped; j++ {
			counter, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			mk, err := readMessageKeys(r)
			if err != nil {
				return nil, err
			}
			rc.skippedKeys[counter] = mk
		}
		s.ReceiverChains = append(s.ReceiverChains, rc)
	}
	if s.PreviousCounter, err = readUint32(r); err != nil {
		return nil, err
	}
	hasPending, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("signal: truncated session record: %w", err)
	}
	if hasPending == 1 {
		pk := &pendingPreKey{}
		hasPreKeyID, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("signal: truncated session record: %w", err)
		}
		if hasPreKeyID == 1 {
			id, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			pk.preKeyID = &id
		}
		if pk.signedPreKeyID, err = readUint32(r); err != nil {
			return nil, err
		}
		if pk.baseKey, err = readBytes32(r); err != nil {
			return nil, err
		}
		s.PendingPreKey = pk
	}
	if s.RemoteRegistration, err = readUint32(r); err != nil {
		return nil, err
	}
	return s, nil
}

func writeChain(buf *bytes.Buffer, c chain) {
	writeBytes32(buf, c.key)
	writeUint32(buf, c.index)
}

func readChain(r *bytes.Reader) (chain, error) {
	var c chain
	var err error
	if c.key, err = readBytes32(r); err != nil {
		return c, err
	}
	if c.index, err = readUint32(r); err != nil {
		return c, err
	}
	return c, nil
}

func writeMessageKeys(buf *bytes.Buffer, mk messageKeys) {
	buf.Write(mk.cipherKey[:])
	buf.Write(mk.macKey[:])
	buf.Write(mk.iv[:])
}

func readMessageKeys(r *bytes.Reader) (messageKeys, error) {
	var mk messageKeys
	if _, err := r.Read(mk.cipherKey[:]); err != nil {
		return mk, fmt.Errorf("signal: truncated session record: %w", err)
	}
	if _, err := r.Read(mk.macKey[:]); err != nil {
		return mk, fmt.Errorf("signal: truncated session record: %w", err)
	}
	if _, err := r.Read(mk.iv[:]); err != nil {
		return mk, fmt.Errorf("signal: truncated session record: %w", err)
	}
	return mk, nil
}
