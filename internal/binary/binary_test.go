package binary

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, n *Node) *Node {
	t.Helper()
	enc, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec, err := Unmarshal(enc)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return dec
}

func TestRoundTripEmpty(t *testing.T) {
	n := NewNode("iq", nil)
	dec := roundTrip(t, n)
	if dec.Tag != "iq" || len(dec.Attrs) != 0 || dec.Content.Kind != ContentNone {
		t.Fatalf("unexpected decode: %+v", dec)
	}
}

func TestRoundTripSingleAttr(t *testing.T) {
	n := NewNode("iq", map[string]string{"id": "abc123"})
	dec := roundTrip(t, n)
	if dec.AttrString("id") != "abc123" {
		t.Fatalf("attr mismatch: %+v", dec)
	}
}

func TestRoundTripNested(t *testing.T) {
	child := NewNode("pair-device", map[string]string{"count": "2"})
	child.Content = ChildrenContent(
		NewNode("ref", nil),
	)
	child.Content.Children[0].Content = BytesContent([]byte("R1NONCE"))

	root := NewNode("iq", map[string]string{"type": "set", "id": "1"})
	root.Content = ChildrenContent(child)

	dec := roundTrip(t, root)
	c := dec.GetChildByTag("pair-device")
	if c == nil {
		t.Fatalf("missing pair-device child: %+v", dec)
	}
	ref := c.GetChildByTag("ref")
	if ref == nil || !bytes.Equal(ref.GetBytes(), []byte("R1NONCE")) {
		t.Fatalf("ref mismatch: %+v", ref)
	}
}

func TestRoundTripBinaryContentLengths(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 65535, 1 << 20} {
		data := bytes.Repeat([]byte{0xAB}, n)
		node := NewNode("enc", map[string]string{"v": "2"})
		node.Content = BytesContent(data)
		dec := roundTrip(t, node)
		if !bytes.Equal(dec.GetBytes(), data) {
			t.Fatalf("length %d: content mismatch (got %d bytes)", n, len(dec.GetBytes()))
		}
	}
}

func TestRoundTripTokenStrings(t *testing.T) {
	n := NewNode("message", map[string]string{"type": "text", "from": "s.whatsapp.net"})
	dec := roundTrip(t, n)
	if dec.Tag != "message" || dec.AttrString("type") != "text" || dec.AttrString("from") != "s.whatsapp.net" {
		t.Fatalf("token round trip failed: %+v", dec)
	}
}

func TestRoundTripJIDAttr(t *testing.T) {
	n := NewNode("message", map[string]string{
		"to":          "15550001111@s.whatsapp.net",
		"participant": "15550002222:3@s.whatsapp.net",
	})
	dec := roundTrip(t, n)
	if dec.AttrString("to") != "15550001111@s.whatsapp.net" {
		t.Fatalf("jid pair mismatch: %q", dec.AttrString("to"))
	}
	if dec.AttrString("participant") != "15550002222:3@s.whatsapp.net" {
		t.Fatalf("ad jid mismatch: %q", dec.AttrString("participant"))
	}
}

func TestRoundTripNibbleAndHexStrings(t *testing.T) {
	n := NewNode("x", map[string]string{
		"count": "12345",
		"hash":  "A1B2C3D4",
	})
	dec := roundTrip(t, n)
	if dec.AttrString("count") != "12345" {
		t.Fatalf("nibble string mismatch: %q", dec.AttrString("count"))
	}
	if dec.AttrString("hash") != "A1B2C3D4" {
		t.Fatalf("hex string mismatch: %q", dec.AttrString("hash"))
	}
}

func TestDecodeInvalidTag(t *testing.T) {
	_, err := Unmarshal([]byte{0x00, 0xFF})
	if err == nil {
		t.Fatalf("expected decode error")
	}
}
