package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"folio/api/internal/ordered"
	"folio/api/internal/section"
)

// Service indexes published content into the backend. Index writes are fire
// and forget; Wait blocks until pending writes finish.
type Service struct {
	backend Backend
	log     zerolog.Logger
	writes  ordered.Writes
}

// NewService creates a search service. backend may be nil when search is
// not configured, in which case every call is a no-op.
func NewService(backend Backend, log zerolog.Logger) *Service {
	return &Service{backend: backend, log: log}
}

func (s *Service) enabled() bool {
	return s.backend != nil && s.backend.Healthy()
}

// Search returns an empty response when the backend is missing or failing.
func (s *Service) Search(q Query) Response {
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if !s.enabled() || strings.TrimSpace(q.OrgID) == "" {
		return empty
	}
	results, total, err := s.backend.Search(q)
	if err != nil {
		s.log.Warn().Err(err).Msg("search failed")
		return empty
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}
}

// SectionPublished indexes the newly published content. Index writes for a
// section are sent in version order; Meilisearch applies its tasks in the
// order they were enqueued.
func (s *Service) SectionPublished(_ context.Context, item section.Section) {
	if !s.enabled() {
		return
	}
	record := RecordFor(item)
	s.writes.Go(record.ID, item.Version, func() {
		if err := s.backend.IndexSections([]SectionRecord{record}); err != nil {
			s.log.Warn().Err(err).Str("section_id", record.ID).Int64("version", item.Version).Msg("index section")
		}
	})
}

// SectionDiscarded is a no-op: discarding never changes published content,
// and only published content is indexed.
func (s *Service) SectionDiscarded(context.Context, section.Section) {}

// ReindexPage pushes the published content of every section on a page.
func (s *Service) ReindexPage(items []section.Section) error {
	if !s.enabled() {
		return nil
	}
	records := make([]SectionRecord, 0, len(items))
	for _, item := range items {
		if item.PublishedContent == nil {
			continue
		}
		records = append(records, RecordFor(item))
	}
	if err := s.backend.IndexSections(records); err != nil {
		return fmt.Errorf("reindex page: %w", err)
	}
	return nil
}

func (s *Service) Wait() {
	s.writes.Wait()
}

// RecordFor builds the index record from a section's published content.
func RecordFor(item section.Section) SectionRecord {
	return SectionRecord{
		ID:            item.ID,
		OrgID:         item.OrgID,
		PageID:        item.PageID,
		Key:           item.Key,
		ComponentType: item.ComponentType,
		Text:          flattenText(item.PublishedContent),
		PublishedAt:   unixMillis(item.PublishedAt),
	}
}

// flattenText joins every string value in content, in key order, so nested
// menus and galleries are searchable as plain text.
func flattenText(content section.Content) string {
	parts := make([]string, 0)
	collectText(map[string]any(content), &parts)
	return strings.Join(parts, " ")
}

func collectText(value any, parts *[]string) {
	switch typed := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			*parts = append(*parts, trimmed)
		}
	case section.Content:
		collectText(map[string]any(typed), parts)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			collectText(typed[key], parts)
		}
	case []any:
		for _, item := range typed {
			collectText(item, parts)
		}
	case []string:
		for _, item := range typed {
			collectText(item, parts)
		}
	}
}
