package wap

// SignalMessage is the ordinary Double Ratchet wire message ("msg" node
// content): current ratchet public key, chain counter, previous-chain
// length, and ciphertext, MAC-appended on the wire.
type SignalMessage struct {
	RatchetKey      []byte // field 1
	Counter         uint32 // field 2
	PreviousCounter uint32 // field 3
	Ciphertext      []byte // field 4
}

func EncodeSignalMessage(m *SignalMessage) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, m.RatchetKey)...)
	out = append(out, EncodeVarintField(2, uint64(m.Counter))...)
	out = append(out, EncodeVarintField(3, uint64(m.PreviousCounter))...)
	out = append(out, EncodeBytesField(4, m.Ciphertext)...)
	return out
}

func DecodeSignalMessage(data []byte) (*SignalMessage, error) {
	m := &SignalMessage{}
	m.RatchetKey, _ = FindField(data, 1)
	if v, ok := FindVarintField(data, 2); ok {
		m.Counter = uint32(v)
	}
	if v, ok := FindVarintField(data, 3); ok {
		m.PreviousCounter = uint32(v)
	}
	m.Ciphertext, _ = FindField(data, 4)
	if m.RatchetKey == nil {
		return nil, ErrInvalidProtobuf
	}
	return m, nil
}

// PreKeySignalMessage wraps a SignalMessage with the X3DH bundle
// identifiers needed to establish a session on first receipt ("pkmsg"
// node content).
type PreKeySignalMessage struct {
	RegistrationID uint32 // field 1
	PreKeyID       *uint32 // field 2, optional (one-time prekey used)
	SignedPreKeyID uint32 // field 3
	BaseKey        []byte // field 4, sender's ephemeral X3DH key
	IdentityKey    []byte // field 5, sender's identity key
	Message        []byte // field 6, serialized SignalMessage
}

func EncodePreKeySignalMessage(m *PreKeySignalMessage) []byte {
	var out []byte
	out = append(out, EncodeVarintField(1, uint64(m.RegistrationID))...)
	if m.PreKeyID != nil {
		out = append(out, EncodeVarintField(2, uint64(*m.PreKeyID))...)
	}
	out = append(out, EncodeVarintField(3, uint64(m.SignedPreKeyID))...)
	out = append(out, EncodeBytesField(4, m.BaseKey)...)
	out = append(out, EncodeBytesField(5, m.IdentityKey)...)
	out = append(out, EncodeBytesField(6, m.Message)...)
	return out
}

func DecodePreKeySignalMessage(data []byte) (*PreKeySignalMessage, error) {
	m := &PreKeySignalMessage{}
	if v, ok := FindVarintField(data, 1); ok {
		m.RegistrationID = uint32(v)
	}
	if v, ok := FindVarintField(data, 2); ok {
		pk := uint32(v)
		m.PreKeyID = &pk
	}
	if v, ok := FindVarintField(data, 3); ok {
		m.SignedPreKeyID = uint32(v)
	}
	m.BaseKey, _ = FindField(data, 4)
	m.IdentityKey, _ = FindField(data, 5)
	m.Message, _ = FindField(data, 6)
	if m.BaseKey == nil || m.IdentityKey == nil {
		return nil, ErrInvalidProtobuf
	}
	return m, nil
}
