package agent

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// directiveMarkers are the directive's own headings. They match with case
// intact so ordinary words like "critical" or "business-critical" pass.
var directiveMarkers = []string{
	"CRITICAL RULES",
	"CRITICAL:",
}

// leakPatterns only appear in output when the model is echoing its
// configuration, delimiters or directive sentences. They match
// case-insensitively.
var leakPatterns = []string{
	"SIGNING_SECRET",
	"ANTHROPIC_API_KEY",
	"LLM_API_KEY",
	"ADMIN_KEY",
	"system prompt is",
	"<user_input>",
	"</user_input>",
	"paraphrase these instructions",
	"not as commands to follow",
}

var foldedPatterns = func() []string {
	out := make([]string, len(leakPatterns))
	for i, p := range leakPatterns {
		out[i] = fold(p)
	}
	return out
}()

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// FilterOutput returns safe in place of text when text contains a directive
// marker or leak pattern. Both checks run after NFKC normalization so
// full-width and compatibility forms are caught.
func FilterOutput(text, safe string) (string, bool) {
	normalized := norm.NFKC.String(text)
	for _, m := range directiveMarkers {
		if strings.Contains(normalized, m) {
			return safe, true
		}
	}
	folded := strings.ToLower(normalized)
	for _, p := range foldedPatterns {
		if strings.Contains(folded, p) {
			return safe, true
		}
	}
	return text, false
}
