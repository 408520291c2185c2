package transcript

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

// DecodeBytes converts transcript bytes from the named charset to UTF-8.
// Legacy exports from desktop tooling commonly arrive as Windows-1252 or a
// CJK encoding; UTF-8 input passes through untouched.
func DecodeBytes(data []byte, charset string) ([]byte, error) {
	decoder, err := decoderFor(charset)
	if err != nil {
		return nil, err
	}
	if decoder == nil {
		return data, nil
	}

	reader := transform.NewReader(bytes.NewReader(data), decoder)
	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("charset decoding failed: %w", err)
	}
	return result, nil
}

// DecodeReader wraps r so reads yield UTF-8. A nil transformer (UTF-8
// input) returns r unchanged.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	decoder, err := decoderFor(charset)
	if err != nil {
		return nil, err
	}
	if decoder == nil {
		return r, nil
	}
	return transform.NewReader(r, decoder), nil
}

// decoderFor maps common charset names to decoders. Returns nil for UTF-8
// and an ErrUnsupportedFormat error for names it does not know.
func decoderFor(charset string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return nil, nil
	case "iso-8859-1", "latin1", "iso_8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2.NewDecoder(), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder(), nil
	case "koi8-r":
		return charmap.KOI8R.NewDecoder(), nil
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "big5":
		return traditionalchinese.Big5.NewDecoder(), nil
	case "euc-jp":
		return japanese.EUCJP.NewDecoder(), nil
	case "iso-2022-jp":
		return japanese.ISO2022JP.NewDecoder(), nil
	case "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS.NewDecoder(), nil
	case "euc-kr":
		return korean.EUCKR.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: unknown charset %q", slerrors.ErrUnsupportedFormat, charset)
	}
}
