package socket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeFrameLengthPrefix(t *testing.T) {
	payload := []byte("hello")
	framed, err := EncodeFrame(nil, payload)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 5}, framed[:3])
	require.Equal(t, payload, framed[3:])
}

func TestEncodeFrameWithHeader(t *testing.T) {
	framed, err := EncodeFrame(NoiseWAHeader, []byte("x"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(framed, NoiseWAHeader))
	require.Equal(t, byte(1), framed[len(NoiseWAHeader)+2])
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(nil, make([]byte, MaxFrameSize))
	require.Error(t, err)
	var tooLarge *FrameTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestFrameDecoderSingleFrame(t *testing.T) {
	var d FrameDecoder
	framed, err := EncodeFrame(nil, []byte("abc"))
	require.NoError(t, err)
	frames, err := d.Feed(framed)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("abc"), frames[0])
}

func TestFrameDecoderSplitAcrossFeeds(t *testing.T) {
	var d FrameDecoder
	framed, _ := EncodeFrame(nil, []byte("abcdef"))
	frames, err := d.Feed(framed[:2])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = d.Feed(framed[2:5])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = d.Feed(framed[5:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("abcdef"), frames[0])
}

func TestFrameDecoderMultipleFramesInOneFeed(t *testing.T) {
	var d FrameDecoder
	f1, _ := EncodeFrame(nil, []byte("one"))
	f2, _ := EncodeFrame(nil, []byte("two"))
	var combined []byte
	combined = append(combined, f1...)
	combined = append(combined, f2...)

	frames, err := d.Feed(combined)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, []byte("one"), frames[0])
	require.Equal(t, []byte("two"), frames[1])
}

func TestEncodeRoutingPrologueEmptyIsNil(t *testing.T) {
	require.Nil(t, EncodeRoutingPrologue(nil))
}

func TestEncodeRoutingPrologueShape(t *testing.T) {
	routing := []byte("abc")
	prologue := EncodeRoutingPrologue(routing)
	require.Equal(t, []byte{'E', 'D', 0x00, 0x01, 0, 0, 3}, prologue[:7])
	require.Equal(t, routing, prologue[7:])
}

func TestFrameDecoderOversizedLengthFatal(t *testing.T) {
	var d FrameDecoder
	bad := []byte{0xFF, 0xFF, 0xFF, 0x00}
	_, err := d.Feed(bad)
	require.Error(t, err)
}
