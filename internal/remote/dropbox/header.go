package dropbox

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// headerArg encodes v for the Dropbox-API-Arg header. The header must be
// ASCII, so every rune at or above 0x7F is written as a \uXXXX escape, using
// a surrogate pair outside the BMP.
func headerArg(v any) (string, error) {
	raw, err := jsonMarshal(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r < 0x7f:
			b.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}
