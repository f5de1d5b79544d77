// Package migration converges a project's documents onto the current layout:
// one structured document per category plus one document per section.
package migration

import (
	"strings"

	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/util"
)

// LegacyPolicy decides which documents were written under an earlier naming
// scheme. Documents stamped with CurrentVersion or later are never legacy,
// however they are named.
type LegacyPolicy struct {
	CurrentVersion int
	// Aliases maps retired document types to the category they held.
	Aliases map[string]sections.Category
}

func DefaultLegacyPolicy() LegacyPolicy {
	return LegacyPolicy{
		CurrentVersion: store.CurrentSchemaVersion,
		Aliases: map[string]sections.Category{
			"overview":        sections.Overview,
			"market_analysis": sections.MarketResearch,
			"planning":        sections.ProjectPlanning,
			"project_plan":    sections.ProjectPlanning,
		},
	}
}

// Classify reports whether doc is legacy and which rule matched.
func (p LegacyPolicy) Classify(doc store.Document) (string, bool) {
	if doc.SchemaVersion >= p.CurrentVersion {
		return "", false
	}
	if util.IsLocalID(doc.ID) {
		return "local_id", true
	}
	if _, err := sections.Lookup(doc.Type); err == nil {
		return "section_key_type", true
	}
	if _, ok := p.Aliases[doc.Type]; ok {
		return "deprecated_type", true
	}
	if category, ok := sections.CategoryByType(doc.Type); ok {
		title := category.Title()
		if doc.Title != title &&
			strings.Contains(strings.ToLower(doc.Title), strings.ToLower(title)) &&
			!category.IsSectionTitle(doc.Title) {
			return "variant_title", true
		}
	}
	return "", false
}

// salvageTargets lists the sections a legacy document may still hold text
// for, keyed by short key.
func (p LegacyPolicy) salvageTargets(doc store.Document) (sections.Category, []sections.Section) {
	if section, err := sections.Lookup(doc.Type); err == nil {
		return section.Category, []sections.Section{section}
	}
	category, ok := p.Aliases[doc.Type]
	if !ok {
		category, ok = sections.CategoryByType(doc.Type)
	}
	if !ok {
		return "", nil
	}
	return category, category.Sections()
}
