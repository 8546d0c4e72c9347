package publish

import (
	"context"
	"sort"
	"sync"
	"time"

	"folio/api/internal/section"
)

// memRepo is an in-memory Repository with the same compare-and-swap
// semantics as the Postgres store.
type memRepo struct {
	mu       sync.Mutex
	sections map[string]section.Section
	puts     int

	onGet   func(ctx context.Context, sectionID string) error
	onPut   func(ctx context.Context, item section.Section) error
	listErr error
}

func newMemRepo(items ...section.Section) *memRepo {
	repo := &memRepo{sections: map[string]section.Section{}}
	for _, item := range items {
		if item.Version == 0 {
			item.Version = 1
		}
		repo.sections[item.ID] = copySection(item)
	}
	return repo
}

func copySection(item section.Section) section.Section {
	item.DraftContent = item.DraftContent.Clone()
	item.PublishedContent = item.PublishedContent.Clone()
	return item
}

func (r *memRepo) GetSection(ctx context.Context, sectionID string) (section.Section, error) {
	if r.onGet != nil {
		if err := r.onGet(ctx, sectionID); err != nil {
			return section.Section{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.sections[sectionID]
	if !ok {
		return section.Section{}, section.ErrNotFound
	}
	return copySection(item), nil
}

func (r *memRepo) PutSection(ctx context.Context, item section.Section, expectedVersion int64) (section.Section, error) {
	if r.onPut != nil {
		if err := r.onPut(ctx, item); err != nil {
			return section.Section{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sections[item.ID]
	if !ok {
		return section.Section{}, section.ErrNotFound
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return section.Section{}, section.ErrConflict
	}
	current.DraftContent = item.DraftContent.Clone()
	current.PublishedContent = item.PublishedContent.Clone()
	current.PublishedAt = item.PublishedAt
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	r.sections[item.ID] = current
	r.puts++
	return copySection(current), nil
}

func (r *memRepo) ListSectionsForPage(_ context.Context, pageID string) ([]section.Section, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]section.Section, 0)
	for _, item := range r.sections {
		if item.PageID == pageID {
			items = append(items, copySection(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Key < items[j].Key
	})
	return items, nil
}

func (r *memRepo) get(sectionID string) section.Section {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySection(r.sections[sectionID])
}

func (r *memRepo) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.puts
}

type recordingListener struct {
	mu        sync.Mutex
	published []string
	discarded []string
}

func (l *recordingListener) SectionPublished(_ context.Context, item section.Section) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.published = append(l.published, item.ID)
}

func (l *recordingListener) SectionDiscarded(_ context.Context, item section.Section) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discarded = append(l.discarded, item.ID)
}
