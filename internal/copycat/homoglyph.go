package copycat

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// confusables maps characters that render like a basic Latin letter to that
// letter. Keys are already case folded. The digit and symbol entries cover the
// substitutions people make by hand (Adm1n, N4no).
var confusables = map[rune]rune{
	// i / l / 1 are one class: they are indistinguishable in many UI fonts.
	'1': 'i', 'l': 'i', '|': 'i', '!': 'i',
	'ı': 'i', 'ǀ': 'i', 'ӏ': 'i', 'і': 'i', 'ι': 'i', 'ɩ': 'i',

	'0': 'o', 'о': 'o', 'ο': 'o', 'օ': 'o',
	'а': 'a', 'α': 'a', 'ɑ': 'a', '@': 'a', '4': 'a',
	'е': 'e', 'ε': 'e', 'є': 'e', '3': 'e',
	'ѕ': 's', '5': 's', '$': 's',
	'с': 'c', 'ϲ': 'c',
	'р': 'p', 'ρ': 'p',
	'х': 'x', 'χ': 'x',
	'у': 'y', 'γ': 'y', 'ү': 'y',
	'к': 'k', 'κ': 'k',
	'м': 'm',
	'н': 'h', 'һ': 'h',
	'т': 't', 'τ': 't', '7': 't',
	'в': 'b', 'ь': 'b', '8': 'b',
	'ԁ': 'd',
	'ɡ': 'g', '9': 'g',
	'ј': 'j', 'ϳ': 'j',
	'п': 'n', 'η': 'n', 'ո': 'n',
	'ν': 'v', 'ѵ': 'v',
	'ω': 'w', 'ԝ': 'w', 'ш': 'w',
	'ᴢ': 'z', '2': 'z',
	'ԛ': 'q',
	'ս': 'u', 'υ': 'u',
}

// fold reduces s to a skeleton in which visually confusable strings compare
// equal: case folded, compatibility decomposed, combining marks and format
// characters dropped, then the confusables table applied.
func fold(s string) string {
	// transform chains keep state and cannot be shared across goroutines.
	decompose := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded := cases.Fold().String(s)
	bare, _, err := transform.String(decompose, folded)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		bare = folded
	}

	var b strings.Builder
	b.Grow(len(bare))
	for _, r := range bare {
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		if m, ok := confusables[r]; ok {
			r = m
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripSpace removes every whitespace character.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
