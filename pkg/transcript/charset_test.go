package transcript

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

func TestDecodeBytes_UTF8Passthrough(t *testing.T) {
	input := []byte("already utf-8 ✓")

	for _, charset := range []string{"", "utf-8", "UTF-8", "utf8", "ascii"} {
		t.Run("charset="+charset, func(t *testing.T) {
			out, err := DecodeBytes(input, charset)
			require.NoError(t, err)
			assert.Equal(t, input, out)
		})
	}
}

func TestDecodeBytes_Latin1(t *testing.T) {
	// "café" in ISO-8859-1
	out, err := DecodeBytes([]byte{0x63, 0x61, 0x66, 0xE9}, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
}

func TestDecodeBytes_Windows1252(t *testing.T) {
	// Curly quotes as written by desktop export tools
	out, err := DecodeBytes([]byte{0x93, 0x68, 0x69, 0x94}, "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "“hi”", string(out))
}

func TestDecodeBytes_ShiftJIS(t *testing.T) {
	// "こんにちは" in Shift_JIS
	input := []byte{0x82, 0xB1, 0x82, 0xF1, 0x82, 0xC9, 0x82, 0xBF, 0x82, 0xCD}

	out, err := DecodeBytes(input, "shift_jis")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", string(out))
}

func TestDecodeBytes_CaseAndAliasTolerant(t *testing.T) {
	input := []byte{0xE9} // "é" in latin-1

	for _, charset := range []string{"ISO-8859-1", " latin1 ", "Latin1"} {
		t.Run(charset, func(t *testing.T) {
			out, err := DecodeBytes(input, charset)
			require.NoError(t, err)
			assert.Equal(t, "é", string(out))
		})
	}
}

func TestDecodeBytes_UnknownCharset(t *testing.T) {
	_, err := DecodeBytes([]byte("data"), "ebcdic")
	require.Error(t, err)
	assert.True(t, slerrors.IsUnsupportedFormat(err))
	assert.Contains(t, err.Error(), "ebcdic")
}

func TestDecodeReader_Latin1(t *testing.T) {
	r, err := DecodeReader(bytes.NewReader([]byte{0x63, 0x61, 0x66, 0xE9}), "latin1")
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
}

func TestDecodeReader_UTF8ReturnsSameReader(t *testing.T) {
	src := strings.NewReader("unchanged")

	r, err := DecodeReader(src, "utf-8")
	require.NoError(t, err)
	assert.Same(t, io.Reader(src), r)
}

func TestDecodeReader_UnknownCharset(t *testing.T) {
	_, err := DecodeReader(strings.NewReader("data"), "rot13")
	require.Error(t, err)
	assert.True(t, slerrors.IsUnsupportedFormat(err))
}
