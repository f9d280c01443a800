package knowledge

import "regexp"

type stemRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func rule(pattern, replacement string) stemRule {
	return stemRule{pattern: regexp.MustCompile(pattern), replacement: replacement}
}

// Ordered longest-suffix first. Every rule shortens the word.
var stemRules = []stemRule{
	rule(`ational$`, "ate"),
	rule(`tional$`, "tion"),
	rule(`izations?$`, "ize"),
	rule(`isations?$`, "ize"),
	rule(`ations$`, "ate"),
	rule(`ation$`, "ate"),
	rule(`ators?$`, "ate"),
	rule(`fulness$`, "ful"),
	rule(`ousness$`, "ous"),
	rule(`iveness$`, "ive"),
	rule(`nesses$`, ""),
	rule(`ness$`, ""),
	rule(`ments$`, "ment"),
	rule(`ities$`, "ity"),
	rule(`ically$`, "ic"),
	rule(`fully$`, "ful"),
	rule(`ingly$`, ""),
	rule(`edly$`, ""),
	rule(`ally$`, "al"),
	rule(`izing$`, "ize"),
	rule(`ising$`, "ize"),
	rule(`ized$`, "ize"),
	rule(`ised$`, "ize"),
	rule(`izes$`, "ize"),
	rule(`ates$`, "ate"),
	rule(`ated$`, "ate"),
	rule(`ists$`, "ist"),
	rule(`ings$`, ""),
	rule(`ing$`, ""),
	rule(`ies$`, "y"),
	rule(`ied$`, "y"),
	rule(`sses$`, "ss"),
	rule(`(ch|sh|x)es$`, "$1"),
	rule(`ed$`, ""),
	rule(`([^aeiou])ly$`, "$1"),
	rule(`([^sui])s$`, "$1"),
}

const minStemLen = 3

// Stem applies the first rule that keeps at least three characters, then
// repeats on the result until no rule applies. The result is a fixpoint, so
// Stem is idempotent and inflections of one word meet at the same stem.
func Stem(word string) string {
	for {
		next, ok := stemOnce(word)
		if !ok {
			return word
		}
		word = next
	}
}

func stemOnce(word string) (string, bool) {
	for _, r := range stemRules {
		if out, ok := r.apply(word); ok {
			return out, true
		}
	}
	return "", false
}

func (r stemRule) apply(word string) (string, bool) {
	if !r.pattern.MatchString(word) {
		return "", false
	}
	out := r.pattern.ReplaceAllString(word, r.replacement)
	if len(out) < minStemLen || out == word {
		return "", false
	}
	return out, true
}
