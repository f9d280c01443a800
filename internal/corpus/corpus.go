// Package corpus holds the structured portfolio record that every retrieval
// path reads from. The record is embedded at build time and read-only.
package corpus

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var embedded []byte

type Portfolio struct {
	About      About        `yaml:"about" json:"about"`
	Projects   []Project    `yaml:"projects" json:"projects"`
	Experience []Experience `yaml:"experience" json:"experience"`
	Skills     Skills       `yaml:"skills" json:"skills"`
	Education  []Education  `yaml:"education" json:"education"`
	Interests  Interests    `yaml:"interests" json:"interests"`
	Site       Site         `yaml:"portfolio" json:"portfolio"`
}

type About struct {
	Name     string            `yaml:"name" json:"name"`
	Title    string            `yaml:"title" json:"title"`
	Location string            `yaml:"location" json:"location"`
	Pronouns string            `yaml:"pronouns" json:"pronouns,omitempty"`
	Summary  string            `yaml:"summary" json:"summary"`
	Links    map[string]string `yaml:"links" json:"links,omitempty"`
}

type Project struct {
	Name       string   `yaml:"name" json:"name"`
	Summary    string   `yaml:"summary" json:"summary"`
	Tech       []string `yaml:"tech" json:"tech"`
	Highlights []string `yaml:"highlights" json:"highlights,omitempty"`
	URL        string   `yaml:"url" json:"url,omitempty"`
}

type Experience struct {
	Company    string   `yaml:"company" json:"company"`
	Role       string   `yaml:"role" json:"role"`
	Period     string   `yaml:"period" json:"period"`
	Summary    string   `yaml:"summary" json:"summary"`
	Highlights []string `yaml:"highlights" json:"highlights,omitempty"`
}

type Skills struct {
	Languages  []string `yaml:"languages" json:"languages"`
	Frameworks []string `yaml:"frameworks" json:"frameworks"`
	Concepts   []string `yaml:"concepts" json:"concepts"`
}

type Education struct {
	Institution   string `yaml:"institution" json:"institution"`
	Qualification string `yaml:"qualification" json:"qualification"`
	Period        string `yaml:"period" json:"period"`
	Notes         string `yaml:"notes" json:"notes,omitempty"`
}

type Interests struct {
	Software []string `yaml:"software" json:"software"`
	Music    []string `yaml:"music" json:"music"`
}

type Site struct {
	Description string   `yaml:"description" json:"description"`
	Features    []string `yaml:"features" json:"features"`
	Stack       []string `yaml:"stack" json:"stack"`
	Source      string   `yaml:"source" json:"source,omitempty"`
}

var (
	loadOnce sync.Once
	loaded   Portfolio
	loadErr  error
)

// Default returns the embedded portfolio, parsed once per process.
func Default() (Portfolio, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(embedded)
	})
	return loaded, loadErr
}

// Parse decodes a YAML portfolio document and checks the fields every chunk
// template relies on.
func Parse(data []byte) (Portfolio, error) {
	var p Portfolio
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Portfolio{}, fmt.Errorf("decode corpus: %w", err)
	}
	if strings.TrimSpace(p.About.Name) == "" {
		return Portfolio{}, fmt.Errorf("corpus: about.name is required")
	}
	for i, proj := range p.Projects {
		if strings.TrimSpace(proj.Name) == "" {
			return Portfolio{}, fmt.Errorf("corpus: projects[%d].name is required", i)
		}
	}
	for i, exp := range p.Experience {
		if strings.TrimSpace(exp.Company) == "" {
			return Portfolio{}, fmt.Errorf("corpus: experience[%d].company is required", i)
		}
	}
	return p, nil
}

// FindProject matches name case-insensitively, preferring an exact name over
// a substring hit in either direction.
func (p Portfolio) FindProject(name string) (Project, bool) {
	idx := bestMatch(name, len(p.Projects), func(i int) string { return p.Projects[i].Name })
	if idx < 0 {
		return Project{}, false
	}
	return p.Projects[idx], true
}

// FindExperience returns every role held at a matching company, in corpus order.
func (p Portfolio) FindExperience(company string) []Experience {
	needle := fold(company)
	if needle == "" {
		return nil
	}
	var out []Experience
	for _, exp := range p.Experience {
		hay := fold(exp.Company)
		if hay == needle || strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			out = append(out, exp)
		}
	}
	return out
}

// SkillCategories lists the accepted category names for SkillsFor.
var SkillCategories = []string{"languages", "frameworks", "concepts"}

// SkillsFor returns a category's skills. "all" (or an empty category) returns
// every category keyed by name.
func (p Portfolio) SkillsFor(category string) (map[string][]string, bool) {
	all := map[string][]string{
		"languages":  p.Skills.Languages,
		"frameworks": p.Skills.Frameworks,
		"concepts":   p.Skills.Concepts,
	}
	key := fold(category)
	switch key {
	case "", "all":
		return all, true
	case "language", "programming languages":
		key = "languages"
	case "framework", "tools", "tooling":
		key = "frameworks"
	case "concept", "practices":
		key = "concepts"
	}
	list, ok := all[key]
	if !ok {
		return nil, false
	}
	return map[string][]string{key: list}, true
}

// SiteAspects lists the accepted aspect names for SiteAspect.
var SiteAspects = []string{"description", "features", "stack", "source"}

// SiteAspect returns one facet of the portfolio site, or the whole record for "all".
func (p Portfolio) SiteAspect(aspect string) (any, bool) {
	switch fold(aspect) {
	case "", "all", "overview":
		return p.Site, true
	case "description", "about", "site":
		return p.Site.Description, true
	case "features", "feature":
		return p.Site.Features, true
	case "stack", "tech", "technology", "tech stack":
		return p.Site.Stack, true
	case "source", "code", "repository", "repo":
		return p.Site.Source, true
	}
	return nil, false
}

// ProjectNames lists project names sorted for stable error messages.
func (p Portfolio) ProjectNames() []string {
	names := make([]string, 0, len(p.Projects))
	for _, proj := range p.Projects {
		names = append(names, proj.Name)
	}
	sort.Strings(names)
	return names
}

// Companies lists distinct employers in corpus order.
func (p Portfolio) Companies() []string {
	seen := make(map[string]bool, len(p.Experience))
	var out []string
	for _, exp := range p.Experience {
		if !seen[exp.Company] {
			seen[exp.Company] = true
			out = append(out, exp.Company)
		}
	}
	return out
}

func bestMatch(name string, n int, at func(int) string) int {
	needle := fold(name)
	if needle == "" {
		return -1
	}
	partial := -1
	for i := 0; i < n; i++ {
		hay := fold(at(i))
		if hay == needle {
			return i
		}
		if partial < 0 && (strings.Contains(hay, needle) || strings.Contains(needle, hay)) {
			partial = i
		}
	}
	return partial
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
