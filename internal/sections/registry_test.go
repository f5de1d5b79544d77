package sections

import (
	"errors"
	"testing"
)

func TestLookupKnownSection(t *testing.T) {
	section, err := Lookup("project_planning_objectives")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if section.Title != "Objectives & Goals" {
		t.Fatalf("unexpected title %q", section.Title)
	}
	if section.Category != ProjectPlanning {
		t.Fatalf("unexpected category %q", section.Category)
	}
	if section.DocumentType != "project_planning" {
		t.Fatalf("unexpected document type %q", section.DocumentType)
	}
	if section.ShortKey != "objectives" {
		t.Fatalf("unexpected short key %q", section.ShortKey)
	}
}

func TestLookupUnknownSection(t *testing.T) {
	_, err := Lookup("project_planning_unicorns")
	if !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("expected ErrUnknownSection, got %v", err)
	}
}

func TestDescribeUnknownKeyFallsBackToTitleCase(t *testing.T) {
	section := Describe("go_to_market_plan")
	if section.Title != "Go To Market Plan" {
		t.Fatalf("unexpected title %q", section.Title)
	}
	if section.Category != Other {
		t.Fatalf("expected Other category, got %q", section.Category)
	}

	known := Describe("market_research_trends")
	if known.Title != "Market Trends" || known.Category != MarketResearch {
		t.Fatalf("unexpected known description %+v", known)
	}
}

func TestDescribeTitleCasesMultibyteWords(t *testing.T) {
	section := Describe("élan_über_plan")
	if section.Title != "Élan Über Plan" {
		t.Fatalf("unexpected title %q", section.Title)
	}
}

func TestEveryRegistryKeyRoundTrips(t *testing.T) {
	for _, category := range Categories() {
		sections := category.Sections()
		if len(sections) < 2 {
			t.Fatalf("category %s must define at least two sections", category)
		}
		for _, section := range sections {
			got, err := Lookup(section.Key)
			if err != nil {
				t.Fatalf("Lookup(%s) error = %v", section.Key, err)
			}
			if got.Category != category {
				t.Fatalf("section %s resolved to %s", section.Key, got.Category)
			}
			if got.Placeholder() == "" {
				t.Fatalf("section %s has no placeholder", section.Key)
			}
		}
	}
}

func TestPlaceholders(t *testing.T) {
	description, _ := Lookup("project_overview_description")
	if description.Placeholder() != "No description provided yet." {
		t.Fatalf("unexpected placeholder %q", description.Placeholder())
	}
	goals, _ := Lookup("project_overview_goals")
	if goals.Placeholder() != "No goals defined yet." {
		t.Fatalf("unexpected placeholder %q", goals.Placeholder())
	}
	trends, _ := Lookup("market_research_trends")
	if trends.Placeholder() != "No market trends provided yet." {
		t.Fatalf("unexpected default placeholder %q", trends.Placeholder())
	}
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"overview":         Overview,
		"project_overview": Overview,
		"Market_Research":  MarketResearch,
		"project_planning": ProjectPlanning,
	}
	for input, want := range tests {
		got, err := ParseCategory(input)
		if err != nil {
			t.Fatalf("ParseCategory(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseCategory("roadmap"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestCategoryMetadata(t *testing.T) {
	if Overview.Title() != "Project Overview" || Overview.DocumentType() != "project_overview" {
		t.Fatalf("unexpected overview metadata")
	}
	if !ProjectPlanning.IsSectionTitle("Milestones") {
		t.Fatal("expected Milestones to be a planning section title")
	}
	if ProjectPlanning.IsSectionTitle("Project Planning") {
		t.Fatal("canonical title must not count as a section title")
	}
}
