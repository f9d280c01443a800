package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

// Lexicon maps query words and phrases to synonym bags.
type Lexicon struct {
	Words   map[string][]string `yaml:"words"`
	Phrases map[string][]string `yaml:"phrases"`
}

// ParseLexicon decodes a YAML lexicon and lowercases its keys.
func ParseLexicon(data []byte) (Lexicon, error) {
	var raw Lexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Lexicon{}, fmt.Errorf("decode lexicon: %w", err)
	}
	lex := Lexicon{
		Words:   make(map[string][]string, len(raw.Words)),
		Phrases: make(map[string][]string, len(raw.Phrases)),
	}
	for k, v := range raw.Words {
		lex.Words[strings.ToLower(k)] = v
	}
	for k, v := range raw.Phrases {
		lex.Phrases[strings.ToLower(k)] = v
	}
	return lex, nil
}

// Expander appends synonyms from a lexicon to a query. It never removes or
// replaces query terms.
type Expander struct {
	lexicon Lexicon
	phrases []string
}

func NewExpander(lex Lexicon) *Expander {
	phrases := make([]string, 0, len(lex.Phrases))
	for p := range lex.Phrases {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	return &Expander{lexicon: lex, phrases: phrases}
}

// DefaultExpander uses the embedded lexicon.
func DefaultExpander() (*Expander, error) {
	lex, err := ParseLexicon(lexiconYAML)
	if err != nil {
		return nil, err
	}
	return NewExpander(lex), nil
}

// Expand returns query followed by deduplicated synonyms, space-joined.
func (e *Expander) Expand(query string) string {
	words := strings.Fields(normalize(query))
	for i, w := range words {
		words[i] = strings.Trim(w, ".-")
	}
	padded := " " + strings.Join(words, " ") + " "

	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	var extra []string
	addAll := func(syns []string) {
		for _, s := range syns {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			extra = append(extra, s)
		}
	}

	for _, p := range e.phrases {
		if strings.Contains(padded, " "+p+" ") {
			addAll(e.lexicon.Phrases[p])
		}
	}
	for _, w := range words {
		addAll(e.lexicon.Words[w])
	}

	if len(extra) == 0 {
		return query
	}
	return strings.TrimSpace(query) + " " + strings.Join(extra, " ")
}
