// Package sections defines the closed set of document categories and the
// named sections each one is made of.
package sections

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrUnknownSection = errors.New("unknown section")

type Category string

const (
	Overview        Category = "overview"
	MarketResearch  Category = "market_research"
	ProjectPlanning Category = "project_planning"
	// Other is only ever produced by Describe for keys outside the registry.
	Other Category = "other"
)

// Section is one named slice of a category's structured document.
type Section struct {
	Key          string // registry key, e.g. project_planning_objectives
	ShortKey     string // marker key inside the structured document
	Title        string
	Category     Category
	DocumentType string
	placeholder  string
}

func (s Section) Placeholder() string {
	if s.placeholder != "" {
		return s.placeholder
	}
	return fmt.Sprintf("No %s provided yet.", strings.ToLower(s.Title))
}

type sectionDef struct {
	shortKey    string
	title       string
	placeholder string
}

type categoryDef struct {
	documentType string
	title        string
	sections     []sectionDef
}

// Order of sections is display order and must not change once documents
// have been written with it.
var categories = map[Category]categoryDef{
	Overview: {
		documentType: "project_overview",
		title:        "Project Overview",
		sections: []sectionDef{
			{"description", "Description", "No description provided yet."},
			{"goals", "Goals", "No goals defined yet."},
			{"target_audience", "Target Audience", ""},
			{"key_features", "Key Features", ""},
		},
	},
	MarketResearch: {
		documentType: "market_research",
		title:        "Market Research",
		sections: []sectionDef{
			{"market_size", "Market Size", ""},
			{"trends", "Market Trends", ""},
			{"competitors", "Competitor Analysis", ""},
			{"customer_segments", "Customer Segments", ""},
		},
	},
	ProjectPlanning: {
		documentType: "project_planning",
		title:        "Project Planning",
		sections: []sectionDef{
			{"objectives", "Objectives & Goals", ""},
			{"milestones", "Milestones", ""},
			{"resources", "Resources & Budget", ""},
			{"risks", "Risk Assessment", ""},
			{"timeline", "Timeline", ""},
		},
	},
}

var categoryOrder = []Category{Overview, MarketResearch, ProjectPlanning}

var byKey = func() map[string]Section {
	index := make(map[string]Section)
	for _, category := range categoryOrder {
		for _, section := range category.Sections() {
			index[section.Key] = section
		}
	}
	return index
}()

// Categories returns every canonical category in a fixed order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

func ParseCategory(name string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := categories[normalized]; ok {
		return normalized, nil
	}
	// Accept the document type tag too, e.g. project_overview.
	if category, ok := CategoryByType(string(normalized)); ok {
		return category, nil
	}
	return "", fmt.Errorf("category %q: %w", name, ErrUnknownSection)
}

// CategoryByType maps a document type tag back to its category.
func CategoryByType(documentType string) (Category, bool) {
	for _, category := range categoryOrder {
		if categories[category].documentType == documentType {
			return category, true
		}
	}
	return "", false
}

func (c Category) DocumentType() string {
	return categories[c].documentType
}

// Title is the canonical document title, which doubles as its lookup key.
func (c Category) Title() string {
	return categories[c].title
}

func (c Category) Sections() []Section {
	def, ok := categories[c]
	if !ok {
		return nil
	}
	out := make([]Section, 0, len(def.sections))
	for _, s := range def.sections {
		out = append(out, Section{
			Key:          def.documentType + "_" + s.shortKey,
			ShortKey:     s.shortKey,
			Title:        s.title,
			Category:     c,
			DocumentType: def.documentType,
			placeholder:  s.placeholder,
		})
	}
	return out
}

// ShortKeys returns the marker keys of the category in display order.
func (c Category) ShortKeys() []string {
	sections := c.Sections()
	keys := make([]string, len(sections))
	for i, s := range sections {
		keys[i] = s.ShortKey
	}
	return keys
}

// IsSectionTitle reports whether title names one of the category's sections.
func (c Category) IsSectionTitle(title string) bool {
	for _, s := range c.Sections() {
		if s.Title == title {
			return true
		}
	}
	return false
}

func Lookup(key string) (Section, error) {
	section, ok := byKey[key]
	if !ok {
		return Section{}, fmt.Errorf("section %q: %w", key, ErrUnknownSection)
	}
	return section, nil
}

// Describe is the forward-compatible variant of Lookup: unknown keys get a
// Title Case title under the Other category instead of an error.
func Describe(key string) Section {
	if section, err := Lookup(key); err == nil {
		return section
	}
	return Section{
		Key:          key,
		ShortKey:     key,
		Title:        titleCase(key),
		Category:     Other,
		DocumentType: key,
	}
}

func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}
