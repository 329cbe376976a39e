package serial

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode renders data as a quoted string of \xHH escapes, e.g. "\x41\xff".
// The result can be embedded as a literal in a JavaScript or JSON-like
// calling convention without any byte being reinterpreted as text.
func Encode(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data)*4 + 2)
	sb.WriteByte('"')
	for _, b := range data {
		fmt.Fprintf(&sb, `\x%02x`, b)
	}
	sb.WriteByte('"')
	return sb.String()
}

// StripEscapes undoes the quoting and \x markers added by Encode and
// returns the bare hex digits, so Decode(StripEscapes(Encode(b))) == b.
func StripEscapes(encoded string) string {
	s := strings.TrimPrefix(encoded, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.ReplaceAll(s, `\x`, "")
}

// Decode converts a string of hex digit pairs to bytes. A trailing single
// digit is ignored, so "414" decodes to "A".
func Decode(hexStr string) ([]byte, error) {
	out := make([]byte, 0, len(hexStr)/2)
	for i := 0; i+1 < len(hexStr); i += 2 {
		pair := hexStr[i : i+2]
		b, err := strconv.ParseUint(pair, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidHex, pair, i)
		}
		out = append(out, byte(b))
	}
	return out, nil
}
