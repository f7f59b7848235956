package application

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodeBody turns a body stored as a printed byte string (b'...' or b"...")
// back into UTF-8 text: the prefix and quotes are dropped and escapes such as
// \n or \xNN are resolved. Any other body, or one with malformed escapes, is
// returned unchanged.
func DecodeBody(body string) string {
	if len(body) < 3 || body[0] != 'b' {
		return body
	}

	quote := body[1]
	if (quote != '\'' && quote != '"') || body[len(body)-1] != quote {
		return body
	}

	out := make([]byte, 0, len(body))
	for s := body[2 : len(body)-1]; len(s) > 0; {
		value, multibyte, tail, err := strconv.UnquoteChar(s, quote)
		if err != nil {
			return body
		}

		if multibyte {
			out = utf8.AppendRune(out, value)
		} else {
			// \xNN escapes are raw bytes of the encoded text
			out = append(out, byte(value))
		}
		s = tail
	}

	if !utf8.Valid(out) {
		return strings.ToValidUTF8(string(out), string(utf8.RuneError))
	}
	return string(out)
}
