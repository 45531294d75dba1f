// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package wap

// Message is the plaintext payload carried inside a SignalMessage once
// decrypted: the externally-given Message protobuf has hundreds of
// fields for every content type WhatsApp supports, but the text path
// only needs the plain conversation string (field 1).
type Message struct {
	Conversation string
}

func EncodeMessage(m *Message) []byte {
	return EncodeBytesField(1, []byte(m.Conversation))
}

func DecodeMessage(data []byte) (*Message, error) {
	m := &Message{}
	if b, ok := FindField(data, 1); ok {
		m.Conversation = string(b)
	}
	return m, nil
}
