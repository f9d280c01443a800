package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// Local tool names.
const (
	ToolSearchKnowledge = "search_knowledge"
	ToolProjectDetails  = "get_project_details"
	ToolExperience      = "get_experience"
	ToolSkills          = "get_skills"
	ToolPortfolioInfo   = "get_portfolio_info"
	localProviderName   = "local"
)

// Searcher runs the retrieval pipeline and returns its JSON result.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type localTool struct {
	descriptor Descriptor
	field      string
	maxLen     int
}

// LocalProvider serves the portfolio corpus in-process. It is always available.
type LocalProvider struct {
	portfolio corpus.Portfolio
	searcher  Searcher
	logger    logging.Logger
	tools     []localTool
	byName    map[string]localTool
}

func NewLocalProvider(p corpus.Portfolio, searcher Searcher, logger logging.Logger) *LocalProvider {
	tools := []localTool{
		newLocalTool(ToolSearchKnowledge,
			"Search the portfolio knowledge base. Use this for any factual question about the owner's background, projects, experience, skills, education or interests.",
			"query", "Natural-language search query", 500),
		newLocalTool(ToolProjectDetails,
			"Get full details of one project by name: summary, technologies, highlights and link.",
			"name", "Project name, e.g. "+exampleOf(p.ProjectNames()), 200),
		newLocalTool(ToolExperience,
			"Get the roles held at a company, or every role when company is \"all\".",
			"company", "Company name or \"all\"", 200),
		newLocalTool(ToolSkills,
			"List skills by category.",
			"category", "One of: "+strings.Join(corpus.SkillCategories, ", ")+", all", 100),
		newLocalTool(ToolPortfolioInfo,
			"Describe this portfolio website.",
			"aspect", "One of: "+strings.Join(corpus.SiteAspects, ", ")+", all", 100),
	}
	byName := make(map[string]localTool, len(tools))
	for _, t := range tools {
		byName[t.descriptor.Name] = t
	}
	return &LocalProvider{
		portfolio: p,
		searcher:  searcher,
		logger:    logger,
		tools:     tools,
		byName:    byName,
	}
}

func newLocalTool(name, description, field, fieldDescription string, maxLen int) localTool {
	return localTool{
		descriptor: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: stringSchema(field, fieldDescription, maxLen),
		},
		field:  field,
		maxLen: maxLen,
	}
}

func exampleOf(names []string) string {
	if len(names) == 0 {
		return "\"My Project\""
	}
	return fmt.Sprintf("%q", names[0])
}

func (p *LocalProvider) Name() string { return localProviderName }

func (p *LocalProvider) Initialize(context.Context) error { return nil }

func (p *LocalProvider) Available() bool { return true }

func (p *LocalProvider) Dispose(context.Context) error { return nil }

func (p *LocalProvider) Tools() []Descriptor {
	out := make([]Descriptor, 0, len(p.tools))
	for _, t := range p.tools {
		out = append(out, t.descriptor)
	}
	return out
}

// Validate checks that the tool's single field is a non-blank string within
// its length bound.
func (p *LocalProvider) Validate(name string, input json.RawMessage) bool {
	t, ok := p.byName[name]
	if !ok {
		return false
	}
	_, ok = t.argument(input)
	return ok
}

func (t localTool) argument(input json.RawMessage) (string, bool) {
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return "", false
	}
	value, ok := args[t.field].(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" || utf8.RuneCountInString(value) > t.maxLen {
		return "", false
	}
	return value, true
}

func (p *LocalProvider) Execute(ctx context.Context, name string, input json.RawMessage) string {
	t, ok := p.byName[name]
	if !ok {
		return ErrorResult("Unknown tool: " + name)
	}
	arg, ok := t.argument(input)
	if !ok {
		return ErrorResult("Invalid tool input")
	}

	switch name {
	case ToolSearchKnowledge:
		return p.searchKnowledge(ctx, arg)
	case ToolProjectDetails:
		return p.projectDetails(arg)
	case ToolExperience:
		return p.experience(arg)
	case ToolSkills:
		return p.skills(arg)
	case ToolPortfolioInfo:
		return p.portfolioInfo(arg)
	}
	return ErrorResult("Unknown tool: " + name)
}

func (p *LocalProvider) searchKnowledge(ctx context.Context, query string) string {
	if p.searcher == nil {
		return ErrorResult("Knowledge search unavailable")
	}
	out, err := p.searcher.Search(ctx, query)
	if err != nil {
		p.logger.WithError(err).Warn("Knowledge search failed")
		return ErrorResult("Knowledge search failed")
	}
	return out
}

func (p *LocalProvider) projectDetails(name string) string {
	proj, ok := p.portfolio.FindProject(name)
	if !ok {
		return JSONResult(map[string]any{
			"error":     "Project not found: " + name,
			"available": p.portfolio.ProjectNames(),
		})
	}
	return JSONResult(proj)
}

func (p *LocalProvider) experience(company string) string {
	if strings.EqualFold(company, "all") {
		return JSONResult(p.portfolio.Experience)
	}
	roles := p.portfolio.FindExperience(company)
	if len(roles) == 0 {
		return JSONResult(map[string]any{
			"error":     "No experience found for: " + company,
			"available": p.portfolio.Companies(),
		})
	}
	return JSONResult(roles)
}

func (p *LocalProvider) skills(category string) string {
	skills, ok := p.portfolio.SkillsFor(category)
	if !ok {
		return JSONResult(map[string]any{
			"error":     "Unknown skill category: " + category,
			"available": append(append([]string{}, corpus.SkillCategories...), "all"),
		})
	}
	return JSONResult(skills)
}

func (p *LocalProvider) portfolioInfo(aspect string) string {
	info, ok := p.portfolio.SiteAspect(aspect)
	if !ok {
		return JSONResult(map[string]any{
			"error":     "Unknown portfolio aspect: " + aspect,
			"available": append(append([]string{}, corpus.SiteAspects...), "all"),
		})
	}
	return JSONResult(map[string]any{"aspect": strings.ToLower(aspect), "info": info})
}
