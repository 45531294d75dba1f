// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package wap holds minimal hand-rolled protobuf wire encode/decode for
// the small set of WhatsApp messages the core needs to construct or
// inspect directly (handshake, certificate chain, ADV, client payload,
// Signal wire messages), treating those message layouts as externally
// given protobuf schemas. This supplies wire-compatible encode/decode
// for them without depending on a protoc code generation step.
package wap

import "errors"

// Wire types.
const (
	WireVarint  = 0
	WireFixed64 = 1
	WireBytes   = 2
	WireFixed32 = 5
)

var (
	ErrInvalidProtobuf = errors.New("wap: invalid protobuf data")
	ErrFieldNotFound   = errors.New("wap: field not found")
)

func EncodeVarint(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var buf []byte
	for n > 0 {
		b := byte(n & 0x7F)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

func DecodeVarint(data []byte) (uint64, int) {
	var n uint64
	var shift uint
	for i, b := range data {
		n |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return n, i + 1
		}
		shift += 7
		if shift >= 64 {
			return 0, 0
		}
	}
	return 0, 0
}

// EncodeUint32BE renders v as 4 raw big-endian bytes, the form the
// registration-data fields (eRegid) use inside DevicePairingData rather
// than a protobuf varint.
func EncodeUint32BE(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// EncodeUint24BE renders v as 3 raw big-endian bytes (eSkeyId).
func EncodeUint24BE(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func encodeTag(fieldNum, wireType int) []byte {
	return EncodeVarint(uint64(fieldNum<<3 | wireType))
}

// EncodeBytesField encodes a length-delimited field; empty payloads are
// omitted, matching proto3 implicit presence for bytes/message fields.
func EncodeBytesField(fieldNum int, data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	tag := encodeTag(fieldNum, WireBytes)
	length := EncodeVarint(uint64(len(data)))
	out := make([]byte, 0, len(tag)+len(length)+len(data))
	out = append(out, tag...)
	out = append(out, length...)
	out = append(out, data...)
	return out
}

// EncodeVarintField encodes a varint-typed field.
func EncodeVarintField(fieldNum int, v uint64) []byte {
	tag := encodeTag(fieldNum, WireVarint)
	out := make([]byte, 0, len(tag)+10)
	out = append(out, tag...)
	out = append(out, EncodeVarint(v)...)
	return out
}

// Field is one decoded (fieldNum, wireType, raw-bytes-or-varint) entry.
type Field struct {
	Num      int
	WireType int
	Varint   uint64
	Bytes    []byte
}

// ParseFields walks a protobuf message's top-level fields without
// needing its schema, collecting every field encountered (repeatable
// fields therefore appear multiple times, in order).
func ParseFields(data []byte) ([]Field, error) {
	var fields []Field
	pos := 0
	for pos < len(data) {
		tag, n := DecodeVarint(data[pos:])
		if n == 0 {
			return nil, ErrInvalidProtobuf
		}
		pos += n
		fieldNum := int(tag >> 3)
		wireType := int(tag & 0x7)

		switch wireType {
		case WireVarint:
			v, n := DecodeVarint(data[pos:])
			if n == 0 {
				return nil, ErrInvalidProtobuf
			}
			pos += n
			fields = append(fields, Field{Num: fieldNum, WireType: wireType, Varint: v})
		case WireFixed64:
			if pos+8 > len(data) {
				return nil, ErrInvalidProtobuf
			}
			fields = append(fields, Field{Num: fieldNum, WireType: wireType, Bytes: data[pos : pos+8]})
			pos += 8
		case WireFixed32:
			if pos+4 > len(data) {
				return nil, ErrInvalidProtobuf
			}
			fields = append(fields, Field{Num: fieldNum, WireType: wireType, Bytes: data[pos : pos+4]})
			pos += 4
		case WireBytes:
			length, n := DecodeVarint(data[pos:])
			if n == 0 {
				return nil, ErrInvalidProtobuf
			}
			pos += n
			if pos+int(length) > len(data) {
				return nil, ErrInvalidProtobuf
			}
			fields = append(fields, Field{Num: fieldNum, WireType: wireType, Bytes: data[pos : pos+int(length)]})
			pos += int(length)
		default:
			return nil, ErrInvalidProtobuf
		}
	}
	return fields, nil
}

// FindField returns the bytes of the first occurrence of fieldNum.
func FindField(data []byte, fieldNum int) ([]byte, bool) {
	fields, err := ParseFields(data)
	if err != nil {
		return nil, false
	}
	for _, f := range fields {
		if f.Num == fieldNum {
			return f.Bytes, true
		}
	}
	return nil, false
}

// FindAllFields returns the bytes of every occurrence of fieldNum, in order.
func FindAllFields(data []byte, fieldNum int) [][]byte {
	fields, err := ParseFields(data)
	if err != nil {
		return nil
	}
	var out [][]byte
	for _, f := range fields {
		if f.Num == fieldNum {
			out = append(out, f.Bytes)
		}
	}
	return out
}

// FindVarintField returns the varint value of the first occurrence of fieldNum.
func FindVarintField(data []byte, fieldNum int) (uint64, bool) {
	fields, err := ParseFields(data)
	if err != nil {
		return 0, false
	}
	for _, f := range fields {
		if f.Num == fieldNum {
			return f.Varint, true
		}
	}
	return 0, false
}
