package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
)

// Categories a chunk can belong to.
const (
	CategoryAbout      = "about"
	CategoryProject    = "project"
	CategoryExperience = "experience"
	CategorySkills     = "skills"
	CategoryEducation  = "education"
	CategoryInterests  = "interests"
	CategoryPortfolio  = "portfolio"
)

// maxChunkContent bounds chunk content in bytes.
const maxChunkContent = 1024

// Chunk is one retrievable passage derived from the portfolio.
type Chunk struct {
	ID       string            `json:"id"`
	Topic    string            `json:"topic"`
	Category string            `json:"category"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BuildChunks flattens the portfolio into chunks in a fixed order. The output
// depends only on p.
func BuildChunks(p corpus.Portfolio) []Chunk {
	ids := make(map[string]int)
	var chunks []Chunk
	add := func(c Chunk) {
		c.ID = uniqueID(ids, c.ID)
		c.Content = truncateWords(strings.TrimSpace(c.Content), maxChunkContent)
		chunks = append(chunks, c)
	}

	add(aboutChunk(p.About))
	for _, proj := range p.Projects {
		add(projectChunk(proj))
	}
	for _, exp := range p.Experience {
		add(experienceChunk(exp))
	}
	add(skillChunk("languages", "Programming languages", p.Skills.Languages))
	add(skillChunk("frameworks", "Frameworks and tools", p.Skills.Frameworks))
	add(skillChunk("concepts", "Concepts and practices", p.Skills.Concepts))
	for _, edu := range p.Education {
		add(educationChunk(edu))
	}
	add(interestChunk("software", "Software interests", p.Interests.Software))
	add(interestChunk("music", "Music interests", p.Interests.Music))
	add(Chunk{
		ID:       "portfolio-site",
		Topic:    "Portfolio Website",
		Category: CategoryPortfolio,
		Content:  sentence(p.Site.Description) + labelled("Features", p.Site.Features) + labelled("Source", nonEmpty(p.Site.Source)),
		Metadata: meta("source", p.Site.Source),
	})
	add(Chunk{
		ID:       "portfolio-stack",
		Topic:    "Portfolio Tech Stack",
		Category: CategoryPortfolio,
		Content:  "The portfolio website is built with " + joinList(p.Site.Stack) + ".",
	})
	return chunks
}

func aboutChunk(a corpus.About) Chunk {
	var b strings.Builder
	b.WriteString(a.Name)
	if a.Title != "" {
		fmt.Fprintf(&b, " is a %s", a.Title)
	}
	if a.Location != "" {
		fmt.Fprintf(&b, " based in %s", a.Location)
	}
	b.WriteString(". ")
	b.WriteString(sentence(a.Summary))
	if a.Pronouns != "" {
		fmt.Fprintf(&b, " Pronouns: %s.", a.Pronouns)
	}
	if len(a.Links) > 0 {
		keys := make([]string, 0, len(a.Links))
		for k := range a.Links {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		links := make([]string, 0, len(keys))
		for _, k := range keys {
			links = append(links, k+": "+a.Links[k])
		}
		b.WriteString(labelled("Links", links))
	}
	return Chunk{
		ID:       "about",
		Topic:    "About " + a.Name,
		Category: CategoryAbout,
		Content:  b.String(),
		Metadata: meta("name", a.Name, "title", a.Title, "location", a.Location),
	}
}

func projectChunk(p corpus.Project) Chunk {
	content := fmt.Sprintf("Project %s. %s", p.Name, sentence(p.Summary)) +
		labelled("Tech", p.Tech) +
		labelled("Highlights", p.Highlights) +
		labelled("Link", nonEmpty(p.URL))
	return Chunk{
		ID:       "project-" + Slug(p.Name),
		Topic:    "Project: " + p.Name,
		Category: CategoryProject,
		Content:  content,
		Metadata: meta("name", p.Name, "url", p.URL),
	}
}

func experienceChunk(e corpus.Experience) Chunk {
	content := fmt.Sprintf("%s at %s", e.Role, e.Company)
	if e.Period != "" {
		content += " (" + e.Period + ")"
	}
	content += ". " + sentence(e.Summary) + labelled("Highlights", e.Highlights)
	return Chunk{
		ID:       "experience-" + Slug(e.Company) + "-" + Slug(e.Role),
		Topic:    fmt.Sprintf("%s at %s", e.Role, e.Company),
		Category: CategoryExperience,
		Content:  content,
		Metadata: meta("company", e.Company, "role", e.Role, "period", e.Period),
	}
}

func skillChunk(key, title string, items []string) Chunk {
	return Chunk{
		ID:       "skills-" + key,
		Topic:    "Skills: " + title,
		Category: CategorySkills,
		Content:  title + ": " + joinList(items) + ".",
	}
}

func educationChunk(e corpus.Education) Chunk {
	content := fmt.Sprintf("%s from %s", e.Qualification, e.Institution)
	if e.Period != "" {
		content += " (" + e.Period + ")"
	}
	content += ". " + sentence(e.Notes)
	return Chunk{
		ID:       "education-" + Slug(e.Institution),
		Topic:    "Education: " + e.Qualification,
		Category: CategoryEducation,
		Content:  content,
		Metadata: meta("institution", e.Institution, "qualification", e.Qualification),
	}
}

func interestChunk(key, title string, items []string) Chunk {
	return Chunk{
		ID:       "interests-" + key,
		Topic:    "Interests: " + title,
		Category: CategoryInterests,
		Content:  title + ": " + strings.Join(items, "; ") + ".",
	}
}

// Slug lowercases s and collapses every run of non-alphanumerics into '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func uniqueID(seen map[string]int, id string) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

// truncateWords cuts s to at most limit bytes on a word boundary.
func truncateWords(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndexByte(s[:limit], ' ')
	if cut <= 0 {
		cut = limit
	}
	return strings.TrimSpace(s[:cut])
}

func sentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func labelled(label string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return " " + label + ": " + strings.Join(items, "; ") + "."
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

// meta builds a metadata map from key/value pairs, skipping empty values.
func meta(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
