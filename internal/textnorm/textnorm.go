// Package textnorm holds the text normalization shared by scoring, drafting
// and the disclosure gate, so every stage compares text the same way.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s without format characters, in NFKC form, Unicode case
// folded, with runs of whitespace collapsed to a single ASCII space and the
// ends trimmed.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// cases.Caser keeps state between calls, so build one per call.
	folded := cases.Fold().String(norm.NFKC.String(StripFormat(s)))
	return Collapse(folded)
}

// StripFormat removes invisible format characters (Unicode category Cf:
// zero-width space, soft hyphen, word joiner, bidi controls).
func StripFormat(s string) string {
	if strings.IndexFunc(s, isFormat) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isFormat(r) {
			return -1
		}
		return r
	}, s)
}

func isFormat(r rune) bool {
	return unicode.Is(unicode.Cf, r)
}

// Collapse replaces every run of Unicode whitespace with one space and trims.
func Collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Join concatenates non-empty parts with a single space.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// Tokens splits already-folded text into words made of letters, digits,
// apostrophes and hyphens.
func Tokens(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-')
	})
}

// Clip returns at most max grapheme clusters of s. Combined emoji and
// accented letters are never split.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if uniseg.GraphemeClusterCount(s) <= max {
		return s
	}
	g := uniseg.NewGraphemes(s)
	n := 0
	end := 0
	for g.Next() {
		if n == max {
			break
		}
		_, end = g.Positions()
		n++
	}
	return s[:end]
}
