// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package socket implements the length-prefixed frame layer that sits
// on top of the WebSocket transport: every outbound payload gets a
// 3-byte big-endian length prefix, and the client emits
// a fixed prologue exactly once at the start of a connection before any
// framed payload. The WebSocket's own message boundaries are treated as
// an opaque byte stream; multiple frames may arrive concatenated in one
// WebSocket message, or a single frame may be split across several.
package socket

import (
	"bytes"
	"fmt"
)

const (
	// MaxFrameSize is the largest payload this core will frame or accept;
	// anything larger is a fatal protocol violation.
	MaxFrameSize = 1 << 24 // 16 MiB

	frameHeaderLen = 3
)

// NoiseWAHeader is the 4-byte prologue ("WA", protocol major, protocol
// minor) sent exactly once, before the first Noise handshake frame.
var NoiseWAHeader = []byte{'W', 'A', 6, 2}

// EncodeRoutingPrologue builds the 7-byte "ED" + 0x00 0x01 + u24be(len)
// prefix that precedes routing and, in turn, NoiseWAHeader when the
// stored credentials carry routing info. Returns nil when routing is
// empty, so the caller falls back to the bare Noise prologue.
func EncodeRoutingPrologue(routing []byte) []byte {
	if len(routing) == 0 {
		return nil
	}
	out := make([]byte, 0, 7+len(routing))
	out = append(out, 'E', 'D', 0x00, 0x01)
	out = append(out, byte(len(routing)>>16), byte(len(routing)>>8), byte(len(routing)))
	out = append(out, routing...)
	return out
}

// FrameTooLargeError is a fatal transport error.
type FrameTooLargeError struct {
	Size int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("socket: frame size %d exceeds maximum %d", e.Size, MaxFrameSize)
}

// EncodeFrame prepends a 3-byte big-endian length prefix to payload.
// header, when non-nil, is written immediately before the length-prefixed
// payload and only intended for the one-time prologue emission.
func EncodeFrame(header []byte, payload []byte) ([]byte, error) {
	if len(payload) >= MaxFrameSize {
		return nil, &FrameTooLargeError{Size: len(payload)}
	}
	buf := make([]byte, 0, len(header)+frameHeaderLen+len(payload))
	buf = append(buf, header...)
	buf = append(buf, byte(len(payload)>>16), byte(len(payload)>>8), byte(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

// FrameDecoder accumulates raw bytes across WebSocket message boundaries
// and yields complete length-prefixed frames as they become available.
// It is not safe for concurrent use; the receive pipeline runs on a
// single goroutine.
type FrameDecoder struct {
	buf bytes.Buffer
}

// Feed appends newly-received bytes and returns every frame payload that
// is now fully buffered, in order.
func (d *FrameDecoder) Feed(data []byte) ([][]byte, error) {
	d.buf.Write(data)
	var frames [][]byte
	for {
		b := d.buf.Bytes()
		if len(b) < frameHeaderLen {
			break
		}
		length := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
		if length >= MaxFrameSize {
			return frames, &FrameTooLargeError{Size: length}
		}
		if len(b) < frameHeaderLen+length {
			break
		}
		payload := make([]byte, length)
		copy(payload, b[frameHeaderLen:frameHeaderLen+length])
		frames = append(frames, payload)
		d.buf.Next(frameHeaderLen + length)
	}
	return frames, nil
}
