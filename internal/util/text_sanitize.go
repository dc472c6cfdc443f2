package util

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText strips what PDF extractors leak into page text: NUL bytes,
// other C0 controls and invalid UTF-8. Newlines and tabs survive.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch == '\n', ch == '\r', ch == '\t':
			b.WriteRune(ch)
		case ch < 0x20, ch == 0x7f:
		default:
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}
