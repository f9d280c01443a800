package knowledge

import "strings"

// Tokenize lowercases text, keeps [a-z0-9#+.-] runs, drops short tokens and
// stopwords, and stems what remains. Index build and query scoring must both
// go through here.
func Tokenize(text string) []string {
	words := strings.Fields(normalize(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".-")
		if len(w) < 2 || isStopword(w) {
			continue
		}
		out = append(out, Stem(w))
	}
	return out
}

// normalize lowercases and blanks every byte outside the token alphabet.
// Multi-byte runes become a single space.
func normalize(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if isTokenRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '#', r == '+', r == '.', r == '-':
		return true
	}
	return false
}
