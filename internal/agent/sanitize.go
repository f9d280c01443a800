package agent

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxInputChars bounds a user message after sanitizing.
const MaxInputChars = 2000

var newlineRun = regexp.MustCompile(`\n{4,}`)

// Sanitize strips control characters other than newline and tab, collapses
// runs of four or more newlines to three and truncates to MaxInputChars.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = newlineRun.ReplaceAllString(s, "\n\n\n")
	return truncateRunes(s, MaxInputChars)
}

// Spotlight marks untrusted user text so the model treats it as data.
func Spotlight(s string) string {
	return "<user_input>" + s + "</user_input>"
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// chunkRunes splits s into pieces of at most n runes.
func chunkRunes(s string, n int) []string {
	if s == "" || n <= 0 {
		return nil
	}
	var out []string
	count, start := 0, 0
	for i := range s {
		if count == n {
			out = append(out, s[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, s[start:])
}
