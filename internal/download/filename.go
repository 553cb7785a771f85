package download

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxFileNameBytes = 200

var dashRunes = map[rune]bool{
	'‐': true, // hyphen
	'‑': true, // non-breaking hyphen
	'‒': true, // figure dash
	'–': true, // en dash
	'—': true, // em dash
	'―': true, // horizontal bar
	'−': true, // minus sign
}

// SanitizeFileName turns an arbitrary video title into a name that is safe
// on common filesystems: unicode dashes folded to '-', whitespace collapsed,
// accents stripped via NFD decomposition, anything outside the safe set
// replaced with '_', and the result truncated to a UTF-8-safe 200 bytes
// with a "..." marker when truncation happened.
func SanitizeFileName(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case dashRunes[r]:
			b.WriteRune('-')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	decomposed := norm.NFD.String(b.String())
	b.Reset()
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark left over from decomposition
		}
		if isSafeFileNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	name := collapseRuns(b.String())
	name = strings.Trim(name, " ._-")
	if name == "" {
		name = "untitled"
	}
	return truncateUTF8(name, maxFileNameBytes)
}

// Quotes, parens, ampersands and the rest of the shell-significant
// punctuation are folded to '_'; the result must be a safe path component
// AND safe to splice into a command line.
func isSafeFileNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', '[', ']', ',':
		return true
	}
	return false
}

// collapseRuns squeezes repeated spaces and underscores, which pile up when
// adjacent unsafe characters are each replaced.
func collapseRuns(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		if (r == ' ' || r == '_') && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

// truncateUTF8 cuts at a rune boundary so the marker never splits a
// multi-byte character.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes - len("...")
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
