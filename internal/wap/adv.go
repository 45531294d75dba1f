package wap

// ADVDeviceIdentity is the payload XEdDSA-signed by the account's
// identity key during pairing.
type ADVDeviceIdentity struct {
	RawID           uint32 // field 1
	Timestamp       int64  // field 2
	KeyIndex        uint32 // field 3
	AccountSigKey   []byte // field 4, signed pre-key matching material
}

func EncodeADVDeviceIdentity(d *ADVDeviceIdentity) []byte {
	var out []byte
	out = append(out, EncodeVarintField(1, uint64(d.RawID))...)
	out = append(out, EncodeVarintField(2, uint64(d.Timestamp))...)
	out = append(out, EncodeVarintField(3, uint64(d.KeyIndex))...)
	out = append(out, EncodeBytesField(4, d.AccountSigKey)...)
	return out
}

func DecodeADVDeviceIdentity(data []byte) (*ADVDeviceIdentity, error) {
	d := &ADVDeviceIdentity{}
	if v, ok := FindVarintField(data, 1); ok {
		d.RawID = uint32(v)
	}
	if v, ok := FindVarintField(data, 2); ok {
		d.Timestamp = int64(v)
	}
	if v, ok := FindVarintField(data, 3); ok {
		d.KeyIndex = uint32(v)
	}
	d.AccountSigKey, _ = FindField(data, 4)
	return d, nil
}

// ADVSignedDeviceIdentity wraps the serialized ADVDeviceIdentity with the
// two signatures verified during pairing: accountSignature (over the
// identity bytes, by the primary device's identity key) and
// deviceSignature (by this device's identity key, added once we accept).
type ADVSignedDeviceIdentity struct {
	Details          []byte // field 1, serialized ADVDeviceIdentity
	AccountSignature []byte // field 2
	DeviceSignature  []byte // field 3
}

func EncodeADVSignedDeviceIdentity(s *ADVSignedDeviceIdentity) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, s.Details)...)
	out = append(out, EncodeBytesField(2, s.AccountSignature)...)
	out = append(out, EncodeBytesField(3, s.DeviceSignature)...)
	return out
}

func DecodeADVSignedDeviceIdentity(data []byte) (*ADVSignedDeviceIdentity, error) {
	s := &ADVSignedDeviceIdentity{}
	s.Details, _ = FindField(data, 1)
	s.AccountSignature, _ = FindField(data, 2)
	s.DeviceSignature, _ = FindField(data, 3)
	if s.Details == nil {
		return nil, ErrInvalidProtobuf
	}
	return s, nil
}

// ADVSignedDeviceIdentityHMAC is the HMAC-wrapped envelope sent over the
// wire; the HMAC check precedes signature verification.
type ADVSignedDeviceIdentityHMAC struct {
	Details []byte // field 1, serialized ADVSignedDeviceIdentity
	HMAC    []byte // field 2
}

func EncodeADVSignedDeviceIdentityHMAC(h *ADVSignedDeviceIdentityHMAC) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, h.Details)...)
	out = append(out, EncodeBytesField(2, h.HMAC)...)
	return out
}

func DecodeADVSignedDeviceIdentityHMAC(data []byte) (*ADVSignedDeviceIdentityHMAC, error) {
	h := &ADVSignedDeviceIdentityHMAC{}
	h.Details, _ = FindField(data, 1)
	h.HMAC, _ = FindField(data, 2)
	if h.Details == nil {
		return nil, ErrInvalidProtobuf
	}
	return h, nil
}
