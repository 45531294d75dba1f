package binary

import (
	"bytes"
	"encoding/binary"

	"github.com/waconnect/waconnect-go/internal/jid"
)

// Marshal encodes n into the wire format: a leading 0x00 byte followed by
// the node's tagged binary encoding. This core never sets the
// compression bit on encode; outbound payloads are never compressed.
func Marshal(n *Node) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(0x00)
	if err := encodeNode(buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNode(buf *bytes.Buffer, n *Node) error {
	if n == nil {
		buf.WriteByte(tagListEmpty)
		return nil
	}

	validAttrs := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		validAttrs = append(validAttrs, k)
	}

	hasContent := n.Content.Kind != ContentNone
	listSize := 2*len(validAttrs) + 1
	if hasContent {
		listSize++
	}
	writeListHeader(buf, listSize)

	if err := encodeString(buf, n.Tag); err != nil {
		return err
	}
	for _, k := range validAttrs {
		if err := encodeString(buf, k); err != nil {
			return err
		}
		if err := encodeString(buf, n.Attrs[k]); err != nil {
			return err
		}
	}

	if hasContent {
		switch n.Content.Kind {
		case ContentText:
			if err := encodeString(buf, n.Content.Text); err != nil {
				return err
			}
		case ContentBytes:
			writeRawBytes(buf, n.Content.Bytes)
		case ContentChildren:
			writeListHeader(buf, len(n.Content.Children))
			for _, c := range n.Content.Children {
				if err := encodeNode(buf, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeListHeader(buf *bytes.Buffer, size int) {
	switch {
	case size == 0:
		buf.WriteByte(tagListEmpty)
	case size < 256:
		buf.WriteByte(tagList8)
		buf.WriteByte(byte(size))
	default:
		buf.WriteByte(tagList16)
		binary.Write(buf, binary.BigEndian, uint16(size))
	}
}

// encodeString picks the shortest applicable wire representation for s,
// trying the token dictionaries before falling back to raw bytes.
func encodeString(buf *bytes.Buffer, s string) error {
	if dict, b, ok := tokenIndex(s); ok {
		if dict >= 0 {
			buf.WriteByte(dictionaryTagFor(dict))
		}
		buf.WriteByte(b)
		return nil
	}

	if isNibbleString(s) {
		buf.WriteByte(tagNibble8)
		buf.Write(packNibbles(s, nibbleIndex))
		return nil
	}

	if isHexString(s) {
		buf.WriteByte(tagHex8)
		buf.Write(packNibbles(s, hexIndex))
		return nil
	}

	if j, ok := tryParseJID(s); ok {
		return encodeJID(buf, j)
	}

	writeRawBytes(buf, []byte(s))
	return nil
}

func encodeJID(buf *bytes.Buffer, j jid.JID) error {
	if j.Device > 0 {
		buf.WriteByte(tagADJID)
		buf.WriteByte(domainTypeByte(j.Server))
		buf.WriteByte(byte(j.Device))
		return encodeString(buf, j.User)
	}
	buf.WriteByte(tagJIDPair)
	if j.User == "" {
		buf.WriteByte(tagListEmpty)
	} else if err := encodeString(buf, j.User); err != nil {
		return err
	}
	return encodeString(buf, j.Server)
}

func writeRawBytes(buf *bytes.Buffer, data []byte) {
	n := len(data)
	switch {
	case n < 256:
		buf.WriteByte(tagBinary8)
		buf.WriteByte(byte(n))
	case n < 1<<20:
		buf.WriteByte(tagBinary20)
		writeInt20(buf, n)
	default:
		buf.WriteByte(tagBinary32)
		binary.Write(buf, binary.BigEndian, uint32(n))
	}
	buf.Write(data)
}

func writeInt20(buf *bytes.Buffer, n int) {
	// 20 bits across 3 bytes; top 4 bits of byte 0 unused.
	b0 := byte((n >> 16) & 0x0F)
	b1 := byte((n >> 8) & 0xFF)
	b2 := byte(n & 0xFF)
	buf.WriteByte(b0)
	buf.WriteByte(b1)
	buf.WriteByte(b2)
}

// EncodeBinaryNode is a convenience wrapper returning only the node's
// tagged-tree bytes (no leading frame byte), used when embedding a node's
// encoding inside another payload (e.g. sender-key distribution blobs).
func EncodeBinaryNode(n *Node) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := encodeNode(buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
