package binary

import (
	"fmt"
	"strings"

	"github.com/waconnect/waconnect-go/internal/jid"
)

const nibbleAlphabet = "0123456789-.\x00"
const hexAlphabet = "0123456789ABCDEF"

func nibbleIndex(c byte) (int, bool) {
	i := strings.IndexByte(nibbleAlphabet, c)
	if i < 0 {
		return 0, false
	}
	return i, true
}

func hexIndex(c byte) (int, bool) {
	i := strings.IndexByte(hexAlphabet, c)
	if i < 0 {
		return 0, false
	}
	return i, true
}

func isNibbleString(s string) bool {
	if len(s) == 0 || len(s) > PackedMax {
		return false
	}
	for i := 0; i < len(s); i++ {
		if _, ok := nibbleIndex(s[i]); !ok {
			return false
		}
	}
	return true
}

func isHexString(s string) bool {
	if len(s) == 0 || len(s) > PackedMax {
		return false
	}
	for i := 0; i < len(s); i++ {
		if _, ok := hexIndex(s[i]); !ok {
			return false
		}
	}
	return true
}

// packNibbles packs s (already validated against the given index func)
// two characters per byte, with a length-descriptor byte in front whose
// low 7 bits are ceil(len/2) and high bit flags an odd-length tail.
func packNibbles(s string, index func(byte) (int, bool)) []byte {
	n := len(s)
	packedLen := (n + 1) / 2
	out := make([]byte, 1+packedLen)
	desc := byte(packedLen)
	if n%2 == 1 {
		desc |= 0x80
	}
	out[0] = desc
	for i := 0; i < packedLen; i++ {
		hi, _ := index(s[2*i])
		lo := 0
		if 2*i+1 < n {
			lo, _ = index(s[2*i+1])
		} else {
			lo = 0xF
		}
		out[1+i] = byte(hi<<4 | lo)
	}
	return out
}

func unpackNibbles(desc byte, data []byte, alphabet string) (string, error) {
	odd := desc&0x80 != 0
	count := int(desc & 0x7F)
	if count > len(data) {
		return "", fmt.Errorf("binary: truncated packed string")
	}
	var sb strings.Builder
	for i := 0; i < count; i++ {
		b := data[i]
		hi := int(b >> 4)
		lo := int(b & 0xF)
		if hi >= len(alphabet) {
			return "", fmt.Errorf("binary: invalid packed nibble %d", hi)
		}
		sb.WriteByte(alphabet[hi])
		if i == count-1 && odd {
			break
		}
		if lo >= len(alphabet) {
			return "", fmt.Errorf("binary: invalid packed nibble %d", lo)
		}
		sb.WriteByte(alphabet[lo])
	}
	return sb.String(), nil
}

// tryParseJID attempts to interpret s as user[:device]@server.
func tryParseJID(s string) (jid.JID, bool) {
	j, err := jid.Parse(s)
	if err != nil {
		return jid.JID{}, false
	}
	return j, true
}

func domainTypeByte(server string) byte {
	if server == jid.ServerLID {
		return 1
	}
	return 0
}

func domainFromType(t byte) string {
	if t == 1 {
		return jid.ServerLID
	}
	return jid.ServerDefault
}
