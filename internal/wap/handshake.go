package wap

// HandshakeMessage mirrors the WhatsApp Noise handshake envelope: each
// of the three messages populates exactly one of ClientHello,
// ServerHello, or ClientFinish.
type HandshakeMessage struct {
	ClientHello  *ClientHello
	ServerHello  *ServerHello
	ClientFinish *ClientFinish
}

type ClientHello struct {
	Ephemeral []byte // field 1
}

type ServerHello struct {
	Ephemeral []byte // field 1
	Static    []byte // field 2, encrypted
	Payload   []byte // field 3, encrypted (cert chain)
}

type ClientFinish struct {
	Static  []byte // field 1, encrypted
	Payload []byte // field 2, encrypted (ClientPayload)
}

func EncodeHandshakeMessage(m *HandshakeMessage) []byte {
	var out []byte
	if m.ClientHello != nil {
		var inner []byte
		inner = append(inner, EncodeBytesField(1, m.ClientHello.Ephemeral)...)
		out = append(out, EncodeBytesField(1, inner)...)
	}
	if m.ServerHello != nil {
		var inner []byte
		inner = append(inner, EncodeBytesField(1, m.ServerHello.Ephemeral)...)
		inner = append(inner, EncodeBytesField(2, m.ServerHello.Static)...)
		inner = append(inner, EncodeBytesField(3, m.ServerHello.Payload)...)
		out = append(out, EncodeBytesField(2, inner)...)
	}
	if m.ClientFinish != nil {
		var inner []byte
		inner = append(inner, EncodeBytesField(1, m.ClientFinish.Static)...)
		inner = append(inner, EncodeBytesField(2, m.ClientFinish.Payload)...)
		out = append(out, EncodeBytesField(3, inner)...)
	}
	return out
}

func DecodeHandshakeMessage(data []byte) (*HandshakeMessage, error) {
	m := &HandshakeMessage{}
	if b, ok := FindField(data, 1); ok {
		eph, _ := FindField(b, 1)
		m.ClientHello = &ClientHello{Ephemeral: eph}
	}
	if b, ok := FindField(data, 2); ok {
		eph, _ := FindField(b, 1)
		static, _ := FindField(b, 2)
		payload, _ := FindField(b, 3)
		m.ServerHello = &ServerHello{Ephemeral: eph, Static: static, Payload: payload}
	}
	if b, ok := FindField(data, 3); ok {
		static, _ := FindField(b, 1)
		payload, _ := FindField(b, 2)
		m.ClientFinish = &ClientFinish{Static: static, Payload: payload}
	}
	if m.ClientHello == nil && m.ServerHello == nil && m.ClientFinish == nil {
		return nil, ErrInvalidProtobuf
	}
	return m, nil
}
