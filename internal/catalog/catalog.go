// Package catalog holds the read-only content shipped with MindCare:
// counselors, the resource library, screening question banks and coping strategies.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// QuestionBank is the question set of one screening instrument.
type QuestionBank struct {
	Title     string   `json:"title" yaml:"title"`
	Questions []string `json:"questions" yaml:"questions"`
}

// Catalog is the static content served by the API.
type Catalog struct {
	Counselors      []models.Counselor                    `yaml:"counselors"`
	Resources       []models.Resource                     `yaml:"resources"`
	Screenings      map[models.ScreeningType]QuestionBank `yaml:"screenings"`
	AnswerOptions   []string                              `yaml:"answer_options"`
	Coping          map[string]string                     `yaml:"coping"`
	ForumCategories []string                              `yaml:"forum_categories"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a YAML catalog and checks it for obvious mistakes.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	seen := make(map[int]bool)
	for _, co := range c.Counselors {
		if seen[co.ID] {
			return nil, fmt.Errorf("duplicate counselor id %d", co.ID)
		}
		seen[co.ID] = true
	}
	for typ, bank := range c.Screenings {
		if len(bank.Questions) == 0 {
			return nil, fmt.Errorf("screening %s has no questions", typ)
		}
	}
	if len(c.AnswerOptions) == 0 {
		return nil, fmt.Errorf("catalog has no answer options")
	}
	return &c, nil
}

// Counselor looks up a counselor by id.
func (c *Catalog) Counselor(id int) (models.Counselor, bool) {
	for _, co := range c.Counselors {
		if co.ID == id {
			return co, true
		}
	}
	return models.Counselor{}, false
}

// QuestionBank returns the questions of a screening instrument.
func (c *Catalog) QuestionBank(typ models.ScreeningType) (QuestionBank, bool) {
	bank, ok := c.Screenings[typ]
	return bank, ok
}

// FilterResources returns the resources matching every non-empty filter field.
// Search is a case-insensitive substring match over title and description.
func (c *Catalog) FilterResources(f models.ResourceFilter) []models.Resource {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.Resource, 0, len(c.Resources))
	for _, r := range c.Resources {
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.Language != "" && r.Language != f.Language {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Title), search) &&
			!strings.Contains(strings.ToLower(r.Description), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CopingNames returns the coping strategy keys in sorted order.
func (c *Catalog) CopingNames() []string {
	names := make([]string, 0, len(c.Coping))
	for k := range c.Coping {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
