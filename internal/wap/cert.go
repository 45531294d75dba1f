package wap

// NoiseCertificate is the signed leaf/intermediate certificate exchanged
// inside the ServerHello payload as part of the certificate chain check.
type NoiseCertificate struct {
	Details   []byte // field 1, serialized Details message
	Signature []byte // field 2
}

// CertChainDetails is the signed body of a NoiseCertificate.
type CertChainDetails struct {
	Serial      uint32 // field 1
	IssuerSerial uint32 // field 2
	Key         []byte // field 3, the subject's signing public key
}

// CertChain wraps the two-certificate leaf/intermediate chain WhatsApp
// sends in ServerHello.Payload.
type CertChain struct {
	Leaf         *NoiseCertificate // field 1
	Intermediate *NoiseCertificate // field 2
}

func EncodeCertChainDetails(d *CertChainDetails) []byte {
	var out []byte
	out = append(out, EncodeVarintField(1, uint64(d.Serial))...)
	out = append(out, EncodeVarintField(2, uint64(d.IssuerSerial))...)
	out = append(out, EncodeBytesField(3, d.Key)...)
	return out
}

func DecodeCertChainDetails(data []byte) (*CertChainDetails, error) {
	d := &CertChainDetails{}
	if v, ok := FindVarintField(data, 1); ok {
		d.Serial = uint32(v)
	}
	if v, ok := FindVarintField(data, 2); ok {
		d.IssuerSerial = uint32(v)
	}
	d.Key, _ = FindField(data, 3)
	return d, nil
}

func encodeNoiseCertificate(c *NoiseCertificate) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, c.Details)...)
	out = append(out, EncodeBytesField(2, c.Signature)...)
	return out
}

func decodeNoiseCertificate(data []byte) *NoiseCertificate {
	details, _ := FindField(data, 1)
	sig, _ := FindField(data, 2)
	return &NoiseCertificate{Details: details, Signature: sig}
}

func EncodeCertChain(c *CertChain) []byte {
	var out []byte
	if c.Leaf != nil {
		out = append(out, EncodeBytesField(1, encodeNoiseCertificate(c.Leaf))...)
	}
	if c.Intermediate != nil {
		out = append(out, EncodeBytesField(2, encodeNoiseCertificate(c.Intermediate))...)
	}
	return out
}

func DecodeCertChain(data []byte) (*CertChain, error) {
	c := &CertChain{}
	if b, ok := FindField(data, 1); ok {
		c.Leaf = decodeNoiseCertificate(b)
	}
	if b, ok := FindField(data, 2); ok {
		c.Intermediate = decodeNoiseCertificate(b)
	}
	if c.Leaf == nil {
		return nil, ErrInvalidProtobuf
	}
	return c, nil
}
