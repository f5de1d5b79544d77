package migration

import (
	"context"
	"log/slog"
	"sort"

	"ideaforge/api/internal/fallback"
	"ideaforge/api/internal/markers"
	"ideaforge/api/internal/sectionsync"
	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/util"
)

// MinValidSections is how many section keys a structured document must
// decode to count as valid.
const MinValidSections = 2

// Documents is the slice of the document adapter the sweep needs.
type Documents interface {
	Snapshot(ctx context.Context, projectID string) ([]store.Document, error)
	Create(ctx context.Context, doc store.Document) *store.Document
	Update(ctx context.Context, documentID, content string) *store.Document
	Delete(ctx context.Context, documentID string) bool
	LocalDocuments(ctx context.Context, projectID string) []store.Document
	DropLocal(ctx context.Context, documentID string) bool
}

// Report counts what a sweep changed. A sweep over a converged project
// reports all zeroes and Converged.
type Report struct {
	Promoted          int  `json:"promoted"`
	Salvaged          int  `json:"salvaged"`
	LegacyDeleted     int  `json:"legacyDeleted"`
	DuplicatesDeleted int  `json:"duplicatesDeleted"`
	InvalidDeleted    int  `json:"invalidDeleted"`
	Created           int  `json:"created"`
	Rebuilt           int  `json:"rebuilt"`
	Converged         bool `json:"converged"`
}

// Changes is the total number of writes the sweep made.
func (r Report) Changes() int {
	return r.Promoted + r.Salvaged + r.LegacyDeleted + r.DuplicatesDeleted + r.InvalidDeleted + r.Created + r.Rebuilt
}

type Sweeper struct {
	docs   Documents
	local  fallback.Store
	policy LegacyPolicy
	logger *slog.Logger
}

type Option func(*Sweeper)

func WithLegacyPolicy(policy LegacyPolicy) Option {
	return func(s *Sweeper) { s.policy = policy }
}

// WithCombinedCache lets the sweep drop cached combined views of the
// categories it changes.
func WithCombinedCache(local fallback.Store) Option {
	return func(s *Sweeper) { s.local = local }
}

func NewSweeper(docs Documents, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		docs:   docs,
		policy: DefaultLegacyPolicy(),
		logger: logger.With("component", "migration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run converges one project. It never fails: problems are logged and the
// report says whether the project ended up converged.
func (s *Sweeper) Run(ctx context.Context, projectID, userID string) Report {
	var report Report
	log := s.logger.With("project_id", projectID)

	docs, err := s.docs.Snapshot(ctx, projectID)
	if err != nil {
		log.Warn("sweep skipped, document store unavailable", "operation", "sweep", "error", err)
		return report
	}

	touched := make(map[sections.Category]bool)
	if s.promote(ctx, log, projectID, touched, &report) > 0 {
		if docs, err = s.docs.Snapshot(ctx, projectID); err != nil {
			log.Warn("sweep stopped after promotion, document store unavailable", "operation", "sweep", "error", err)
			return report
		}
	}

	var current, legacy []store.Document
	for _, doc := range docs {
		if reason, ok := s.policy.Classify(doc); ok {
			log.Info("legacy document", "operation", "sweep", "document_id", doc.ID, "type", doc.Type, "rule", reason)
			legacy = append(legacy, doc)
			continue
		}
		current = append(current, doc)
	}

	current = s.salvage(ctx, log, projectID, userID, legacy, current, touched, &report)

	for _, doc := range legacy {
		if s.delete(ctx, log, doc, "legacy") {
			report.LegacyDeleted++
		}
	}

	for _, category := range sections.Categories() {
		if s.converge(ctx, log, projectID, userID, category, current, touched[category], &report) {
			touched[category] = true
		}
	}

	if s.local != nil {
		for category := range touched {
			_ = s.local.Delete(ctx, fallback.CombinedKey(projectID, category.DocumentType()))
		}
	}

	report.Converged = s.verify(ctx, log, projectID)
	if !report.Converged {
		log.Warn("project did not converge", "operation", "sweep")
	}
	if report.Changes() > 0 {
		log.Info("sweep finished",
			"operation", "sweep",
			"promoted", report.Promoted,
			"salvaged", report.Salvaged,
			"legacy_deleted", report.LegacyDeleted,
			"duplicates_deleted", report.DuplicatesDeleted,
			"invalid_deleted", report.InvalidDeleted,
			"created", report.Created,
			"rebuilt", report.Rebuilt,
		)
	}
	return report
}

// promote moves documents written to the fallback store during an outage
// into the remote store. Fallback entries are read directly since Snapshot
// hides a local document whose type also exists remotely. Categories that
// gain a section document are marked touched.
func (s *Sweeper) promote(ctx context.Context, log *slog.Logger, projectID string, touched map[sections.Category]bool, report *Report) int {
	promoted := 0
	for _, doc := range s.docs.LocalDocuments(ctx, projectID) {
		if !util.IsLocalID(doc.ID) || doc.SchemaVersion < s.policy.CurrentVersion {
			continue
		}
		copied := doc
		copied.ID = ""
		created := s.docs.Create(ctx, copied)
		if created == nil || util.IsLocalID(created.ID) {
			log.Warn("local document not promoted", "operation", "promote", "document_id", doc.ID)
			continue
		}
		if !s.docs.DropLocal(ctx, doc.ID) {
			log.Warn("promoted document left in fallback store", "operation", "promote", "document_id", doc.ID, "remote_id", created.ID)
		}
		log.Info("local document promoted", "operation", "promote", "document_id", doc.ID, "remote_id", created.ID)
		report.Promoted++
		promoted++
		if category, ok := sections.CategoryByType(doc.Type); ok && category.IsSectionTitle(doc.Title) {
			touched[category] = true
		}
	}
	return promoted
}

// salvage copies section text out of legacy documents into section
// documents that do not exist yet. Newer legacy documents win.
func (s *Sweeper) salvage(ctx context.Context, log *slog.Logger, projectID, userID string, legacy, current []store.Document, touched map[sections.Category]bool, report *Report) []store.Document {
	have := make(map[string]bool)
	for _, doc := range current {
		have[doc.Type+"\x00"+doc.Title] = true
	}

	ordered := append([]store.Document(nil), legacy...)
	sortNewestFirst(ordered)

	for _, doc := range ordered {
		category, targets := s.policy.salvageTargets(doc)
		for section, text := range salvageTexts(doc, category, targets) {
			slot := section.DocumentType + "\x00" + section.Title
			if have[slot] {
				continue
			}
			owner := doc.UserID
			if owner == "" {
				owner = userID
			}
			created := s.docs.Create(ctx, store.Document{
				ProjectID: projectID,
				UserID:    owner,
				Title:     section.Title,
				Type:      section.DocumentType,
				Content:   text,
			})
			if created == nil {
				log.Warn("salvage failed", "operation", "salvage", "document_id", doc.ID, "section", section.Key)
				continue
			}
			have[slot] = true
			touched[category] = true
			report.Salvaged++
			current = append(current, *created)
		}
	}
	return current
}

func salvageTexts(doc store.Document, category sections.Category, targets []sections.Section) map[sections.Section]string {
	texts := make(map[sections.Section]string)
	if len(targets) == 0 {
		return texts
	}
	// A document for a single section holds its text plainly or in markers.
	single := targets
	if len(targets) > 1 {
		single = nil
		for _, section := range targets {
			if section.Title == doc.Title {
				single = []sections.Section{section}
			}
		}
	}
	if len(single) == 1 {
		if text := sectionsync.Meaningful(single[0], sectionsync.SectionText(single[0], doc.Content)); text != "" {
			texts[single[0]] = text
		}
		return texts
	}

	decoded := markers.Decode(doc.Content, category.ShortKeys())
	for _, section := range targets {
		if text := sectionsync.Meaningful(section, decoded.Sections[section.ShortKey]); text != "" {
			texts[section] = text
		}
	}
	return texts
}

// converge leaves one section document per title and one valid structured
// document for the category. It reports whether anything changed.
func (s *Sweeper) converge(ctx context.Context, log *slog.Logger, projectID, userID string, category sections.Category, docs []store.Document, salvaged bool, report *Report) bool {
	var canonical []store.Document
	bySection := make(map[string][]store.Document)
	for _, doc := range docs {
		if doc.Type != category.DocumentType() {
			continue
		}
		switch {
		case doc.Title == category.Title():
			canonical = append(canonical, doc)
		case category.IsSectionTitle(doc.Title):
			bySection[doc.Title] = append(bySection[doc.Title], doc)
		}
	}

	changed := false
	sources := sectionsync.Sources{Sections: make(map[string]string)}
	for _, section := range category.Sections() {
		group := bySection[section.Title]
		if len(group) == 0 {
			continue
		}
		sortNewestFirst(group)
		sources.Sections[section.ShortKey] = sectionsync.SectionText(section, group[0].Content)
		for _, dup := range group[1:] {
			if s.delete(ctx, log, dup, "duplicate_section") {
				report.DuplicatesDeleted++
				changed = true
			}
		}
	}

	var valid, invalid []store.Document
	keys := category.ShortKeys()
	for _, doc := range canonical {
		if markers.Decode(doc.Content, keys).Found() >= MinValidSections {
			valid = append(valid, doc)
		} else {
			invalid = append(invalid, doc)
		}
	}
	sortNewestFirst(valid)
	sortNewestFirst(invalid)

	if len(valid) == 0 {
		if len(invalid) > 0 {
			// Whatever still decodes from the broken document is kept.
			sources.Structured = invalid[0].Content
		}
		created := s.docs.Create(ctx, store.Document{
			ProjectID:       projectID,
			UserID:          userID,
			Title:           category.Title(),
			Type:            category.DocumentType(),
			Content:         markers.Encode(category.Title(), sectionsync.Blocks(category, sources)),
			IsAutoGenerated: true,
		})
		if created == nil {
			log.Warn("structured document not created", "operation", "sweep", "category", category)
			return changed
		}
		report.Created++
		for _, doc := range invalid {
			if s.delete(ctx, log, doc, "invalid") {
				report.InvalidDeleted++
			}
		}
		return true
	}

	keep := valid[0]
	for _, doc := range valid[1:] {
		if s.delete(ctx, log, doc, "duplicate") {
			report.DuplicatesDeleted++
			changed = true
		}
	}
	for _, doc := range invalid {
		if s.delete(ctx, log, doc, "invalid") {
			report.InvalidDeleted++
			changed = true
		}
	}

	if salvaged {
		sources.Structured = keep.Content
		content := markers.Encode(category.Title(), sectionsync.Blocks(category, sources))
		if content != keep.Content {
			if s.docs.Update(ctx, keep.ID, content) != nil {
				report.Rebuilt++
				changed = true
			} else {
				log.Warn("structured document not rebuilt", "operation", "sweep", "document_id", keep.ID)
			}
		}
	}
	return changed
}

// verify re-reads the project and checks every category has exactly one
// valid structured document and no legacy documents remain.
func (s *Sweeper) verify(ctx context.Context, log *slog.Logger, projectID string) bool {
	docs, err := s.docs.Snapshot(ctx, projectID)
	if err != nil {
		log.Warn("convergence check failed", "operation", "verify", "error", err)
		return false
	}
	converged := true
	for _, doc := range docs {
		if reason, ok := s.policy.Classify(doc); ok {
			log.Warn("legacy document survived", "operation", "verify", "document_id", doc.ID, "rule", reason)
			converged = false
		}
	}
	for _, category := range sections.Categories() {
		valid := 0
		seen := make(map[string]bool)
		for _, doc := range docs {
			if doc.Type != category.DocumentType() {
				continue
			}
			if doc.Title == category.Title() && markers.Decode(doc.Content, category.ShortKeys()).Found() >= MinValidSections {
				valid++
			}
			if category.IsSectionTitle(doc.Title) {
				if seen[doc.Title] {
					converged = false
				}
				seen[doc.Title] = true
			}
		}
		if valid != 1 {
			log.Warn("unexpected structured document count", "operation", "verify", "category", category, "valid", valid)
			converged = false
		}
	}
	return converged
}

func (s *Sweeper) delete(ctx context.Context, log *slog.Logger, doc store.Document, reason string) bool {
	if s.docs.Delete(ctx, doc.ID) {
		log.Info("document removed", "operation", "sweep", "document_id", doc.ID, "reason", reason)
		return true
	}
	log.Warn("document not removed", "operation", "sweep", "document_id", doc.ID, "reason", reason)
	return false
}

func sortNewestFirst(docs []store.Document) {
	sort.SliceStable(docs, func(i, j int) bool { return store.Newer(docs[i], docs[j]) })
}
