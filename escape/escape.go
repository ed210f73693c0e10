// Package escape implements the octal escape codec (spec §4.1) used to
// make mtab-style fields safe to store one-per-line: bytes in
// { space, tab, newline, backslash } become a four-character \NNN
// octal sequence, and everything else passes through unchanged.
package escape

import "strings"

const escapedBytes = " \t\n\\"

// Encode returns s with every byte in { space, tab, newline,
// backslash } replaced by a four-character `\` + three-octal-digit
// sequence.
func Encode(s string) string {
	if !strings.ContainsAny(s, escapedBytes) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(escapedBytes, c) >= 0 {
			b.WriteByte('\\')
			b.WriteByte('0' + (c>>6)&07)
			b.WriteByte('0' + (c>>3)&07)
			b.WriteByte('0' + c&07)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Decode inverts Encode: a backslash followed by three octal digits is
// replaced by the corresponding byte. A lone backslash, or one
// followed by fewer than three octal digits, is left as-is for
// forward compatibility with unescaped input.
func Decode(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			v := int(s[i+1]-'0')<<6 | int(s[i+2]-'0')<<3 | int(s[i+3]-'0')
			b.WriteByte(byte(v))
			i += 4
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }
