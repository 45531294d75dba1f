package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/flate"
	"io"

	"github.com/waconnect/waconnect-go/internal/jid"
)

// DecodeError classifies a stanza decode failure.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "binary: decode error: " + e.Reason }

func decodeErr(reason string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(reason, args...)}
}

// Unmarshal decodes the leading-byte-prefixed wire format produced by
// Marshal, transparently inflating a raw-deflate payload when the
// server set the compression bit.
func Unmarshal(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, decodeErr("empty frame")
	}
	lead := data[0]
	rest := data[1:]
	if lead&0x02 != 0 {
		fr := flate.NewReader(bytes.NewReader(rest))
		defer fr.Close()
		inflated, err := io.ReadAll(fr)
		if err != nil {
			return nil, decodeErr("inflate: %v", err)
		}
		rest = inflated
	}
	r := bytes.NewReader(rest)
	return decodeNode(r)
}

func decodeNode(r *bytes.Reader) (*Node, error) {
	size, empty, err := readListHeader(r)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	tag, err := decodeString(r)
	if err != nil {
		return nil, err
	}

	numAttrs := (size - 1)
	hasContent := false
	if numAttrs%2 == 1 {
		hasContent = true
		numAttrs--
	}
	numAttrs /= 2

	attrs := make(map[string]string, numAttrs)
	for i := 0; i < numAttrs; i++ {
		k, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		v, err := decodeString(r)
		if err != nil {
			return nil, err
		}
		if _, dup := attrs[k]; dup {
			return nil, decodeErr("duplicate attribute %q", k)
		}
		attrs[k] = v
	}

	node := &Node{Tag: tag, Attrs: attrs}
	if hasContent {
		content, err := decodeContent(r)
		if err != nil {
			return nil, err
		}
		node.Content = content
	}
	return node, nil
}

func decodeContent(r *bytes.Reader) (Content, error) {
	tagByte, err := peekByte(r)
	if err != nil {
		return Content{}, err
	}
	switch tagByte {
	case tagListEmpty, tagList8, tagList16:
		n, empty, err := readListHeader(r)
		if err != nil {
			return Content{}, err
		}
		if empty {
			return ChildrenContent(), nil
		}
		children := make([]*Node, n)
		for i := range children {
			c, err := decodeNode(r)
			if err != nil {
				return Content{}, err
			}
			children[i] = c
		}
		return ChildrenContent(children...), nil
	case tagBinary8, tagBinary20, tagBinary32:
		b, err := decodeRawBytes(r)
		if err != nil {
			return Content{}, err
		}
		return BytesContent(b), nil
	default:
		s, err := decodeString(r)
		if err != nil {
			return Content{}, err
		}
		return TextContent(s), nil
	}
}

func peekByte(r *bytes.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, decodeErr("truncated: %v", err)
	}
	if err := r.UnreadByte(); err != nil {
		return 0, err
	}
	return b, nil
}

func readListHeader(r *bytes.Reader) (size int, empty bool, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, false, decodeErr("truncated list header: %v", err)
	}
	switch b {
	case tagListEmpty:
		return 0, true, nil
	case tagList8:
		n, err := r.ReadByte()
		if err != nil {
			return 0, false, decodeErr("truncated LIST_8: %v", err)
		}
		return int(n), false, nil
	case tagList16:
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return 0, false, decodeErr("truncated LIST_16: %v", err)
		}
		return int(n), false, nil
	default:
		return 0, false, decodeErr("InvalidTag: expected list header, got 0x%02x", b)
	}
}

// decodeString decodes a single string-or-JID value (the inverse of
// encodeString).
func decodeString(r *bytes.Reader) (string, error) {
	b, err := r.ReadByte()
	if err != nil {
		return "", decodeErr("truncated string: %v", err)
	}

	switch b {
	case tagListEmpty:
		return "", nil
	case tagDictionary0, tagDictionary1, tagDictionary2, tagDictionary3:
		idx, err := r.ReadByte()
		if err != nil {
			return "", decodeErr("truncated dictionary index: %v", err)
		}
		dict := int(b - tagDictionary0)
		s, ok := dictionaryToken(dict, idx)
		if !ok {
			return "", decodeErr("UnknownToken: dictionary %d index %d", dict, idx)
		}
		return s, nil
	case tagNibble8:
		desc, err := r.ReadByte()
		if err != nil {
			return "", decodeErr("truncated NIBBLE_8: %v", err)
		}
		count := int(desc & 0x7F)
		data := make([]byte, count)
		if _, err := io.ReadFull(r, data); err != nil {
			return "", decodeErr("truncated NIBBLE_8 payload: %v", err)
		}
		return unpackNibbles(desc, data, nibbleAlphabet)
	case tagHex8:
		desc, err := r.ReadByte()
		if err != nil {
			return "", decodeErr("truncated HEX_8: %v", err)
		}
		count := int(desc & 0x7F)
		data := make([]byte, count)
		if _, err := io.ReadFull(r, data); err != nil {
			return "", decodeErr("truncated HEX_8 payload: %v", err)
		}
		return unpackNibbles(desc, data, hexAlphabet)
	case tagADJID:
		domainType, err := r.ReadByte()
		if err != nil {
			return "", decodeErr("truncated AD_JID domain: %v", err)
		}
		device, err := r.ReadByte()
		if err != nil {
			return "", decodeErr("truncated AD_JID device: %v", err)
		}
		user, err := decodeString(r)
		if err != nil {
			return "", err
		}
		j := jid.JID{User: user, Device: uint16(device), Server: domainFromType(domainType)}
		return j.String(), nil
	case tagJIDPair:
		user, err := decodeString(r)
		if err != nil {
			return "", err
		}
		server, err := decodeString(r)
		if err != nil {
			return "", err
		}
		j := jid.JID{User: user, Server: server}
		return j.String(), nil
	case tagBinary8, tagBinary20, tagBinary32:
		if err := r.UnreadByte(); err != nil {
			return "", err
		}
		b, err := decodeRawBytes(r)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		if s, ok := singleByteToken(b); ok {
			return s, nil
		}
		return "", decodeErr("InvalidTag: unexpected string tag 0x%02x", b)
	}
}

func decodeRawBytes(r *bytes.Reader) ([]byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, decodeErr("truncated bytes tag: %v", err)
	}
	var length int
	switch b {
	case tagBinary8:
		n, err := r.ReadByte()
		if err != nil {
			return nil, decodeErr("truncated BINARY_8: %v", err)
		}
		length = int(n)
	case tagBinary20:
		length, err = readInt20(r)
		if err != nil {
			return nil, err
		}
	case tagBinary32:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, decodeErr("truncated BINARY_32: %v", err)
		}
		length = int(n)
	default:
		return nil, decodeErr("InvalidTag: expected bytes tag, got 0x%02x", b)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, decodeErr("truncated bytes payload: %v", err)
	}
	return data, nil
}

func readInt20(r *bytes.Reader) (int, error) {
	var b [3]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, decodeErr("truncated BINARY_20: %v", err)
	}
	return int(b[0]&0x0F)<<16 | int(b[1])<<8 | int(b[2]), nil
}

// DecodeBinaryNode decodes a node's tagged-tree bytes without the
// leading frame byte; the counterpart to EncodeBinaryNode.
func DecodeBinaryNode(data []byte) (*Node, error) {
	return decodeNode(bytes.NewReader(data))
}
