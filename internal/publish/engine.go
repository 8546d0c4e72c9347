// Package publish promotes section drafts to published content, reverts
// drafts, and runs both operations across every section of a page.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"folio/api/internal/metrics"
	"folio/api/internal/schema"
	"folio/api/internal/section"
)

// Repository is the storage contract the engine relies on. PutSection must
// reject the write with section.ErrConflict when expectedVersion > 0 and the
// stored version differs.
type Repository interface {
	GetSection(ctx context.Context, sectionID string) (section.Section, error)
	PutSection(ctx context.Context, item section.Section, expectedVersion int64) (section.Section, error)
	ListSectionsForPage(ctx context.Context, pageID string) ([]section.Section, error)
}

type Validator interface {
	Validate(componentType string, content section.Content) error
}

// Listener is told about successful transitions. Failures inside a listener
// are its own concern and never affect the operation.
type Listener interface {
	SectionPublished(ctx context.Context, item section.Section)
	SectionDiscarded(ctx context.Context, item section.Section)
}

type Options struct {
	Parallelism  int
	BatchTimeout time.Duration
	Now          func() time.Time
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
	Listeners    []Listener
}

type Engine struct {
	repo         Repository
	validator    Validator
	locks        *keyedLocks
	parallelism  int
	batchTimeout time.Duration
	now          func() time.Time
	metrics      *metrics.Metrics
	log          zerolog.Logger
	listeners    []Listener
}

func NewEngine(repo Repository, validator Validator, opts Options) *Engine {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Engine{
		repo:         repo,
		validator:    validator,
		locks:        newKeyedLocks(),
		parallelism:  opts.Parallelism,
		batchTimeout: opts.BatchTimeout,
		now:          opts.Now,
		metrics:      opts.Metrics,
		log:          opts.Log,
		listeners:    opts.Listeners,
	}
}

// Publish validates the draft and promotes it to published content. With
// expectedVersion > 0 the call fails with section.ErrConflict unless the
// section is still at that version. A call whose context ends while waiting
// for the section lock is neither counted nor logged; batches report it as
// not attempted.
func (e *Engine) Publish(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error) {
	updated, changed, err := e.publish(ctx, sectionID, expectedVersion)
	if errors.Is(err, errNotStarted) {
		return section.Section{}, err
	}
	e.metrics.RecordPublish(outcomeOf(err))
	if err != nil {
		e.logFailure("publish", sectionID, err)
		return section.Section{}, err
	}
	if changed {
		e.log.Info().Str("section_id", updated.ID).Str("page_id", updated.PageID).Int64("version", updated.Version).Msg("section published")
		for _, listener := range e.listeners {
			listener.SectionPublished(ctx, updated)
		}
	}
	return updated, nil
}

func (e *Engine) publish(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, bool, error) {
	release, err := e.locks.acquire(ctx, sectionID)
	if err != nil {
		return section.Section{}, false, err
	}
	defer release()

	current, err := e.load(ctx, sectionID, expectedVersion)
	if err != nil {
		return section.Section{}, false, err
	}
	// An unset draft over published content means nothing changed since the
	// last publish.
	if current.DraftContent == nil && current.PublishedContent != nil {
		return current, false, nil
	}
	if err := e.validator.Validate(current.ComponentType, current.DraftContent); err != nil {
		return section.Section{}, false, err
	}

	next := current
	next.PublishedContent = current.DraftContent.Clone()
	if next.PublishedContent == nil {
		next.PublishedContent = section.Content{}
		next.DraftContent = section.Content{}
	}
	publishedAt := e.now().UTC()
	next.PublishedAt = &publishedAt

	updated, err := e.repo.PutSection(ctx, next, current.Version)
	if err != nil {
		return section.Section{}, false, section.WrapRepository("put section", err)
	}
	return updated, true, nil
}

// Discard reverts the draft to the published content, or clears it when the
// section was never published. No validation runs.
func (e *Engine) Discard(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error) {
	updated, changed, err := e.discard(ctx, sectionID, expectedVersion)
	if errors.Is(err, errNotStarted) {
		return section.Section{}, err
	}
	e.metrics.RecordDiscard(outcomeOf(err))
	if err != nil {
		e.logFailure("discard", sectionID, err)
		return section.Section{}, err
	}
	if changed {
		e.log.Info().Str("section_id", updated.ID).Str("page_id", updated.PageID).Int64("version", updated.Version).Msg("section draft discarded")
		for _, listener := range e.listeners {
			listener.SectionDiscarded(ctx, updated)
		}
	}
	return updated, nil
}

func (e *Engine) discard(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, bool, error) {
	release, err := e.locks.acquire(ctx, sectionID)
	if err != nil {
		return section.Section{}, false, err
	}
	defer release()

	current, err := e.load(ctx, sectionID, expectedVersion)
	if err != nil {
		return section.Section{}, false, err
	}
	if !section.HasPendingEdits(current) {
		return current, false, nil
	}

	next := current
	next.DraftContent = current.PublishedContent.Clone()
	updated, err := e.repo.PutSection(ctx, next, current.Version)
	if err != nil {
		return section.Section{}, false, section.WrapRepository("put section", err)
	}
	return updated, true, nil
}

// SaveDraft replaces the draft content. Drafts are free-form; validation
// happens at publish time.
func (e *Engine) SaveDraft(ctx context.Context, sectionID string, content section.Content, expectedVersion int64) (section.Section, error) {
	release, err := e.locks.acquire(ctx, sectionID)
	if err != nil {
		return section.Section{}, err
	}
	defer release()

	current, err := e.load(ctx, sectionID, expectedVersion)
	if err != nil {
		return section.Section{}, err
	}
	next := current
	next.DraftContent = content.Clone()
	updated, err := e.repo.PutSection(ctx, next, current.Version)
	if err != nil {
		err = section.WrapRepository("put section", err)
		e.logFailure("save draft", sectionID, err)
		return section.Section{}, err
	}
	return updated, nil
}

func (e *Engine) load(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error) {
	current, err := e.repo.GetSection(ctx, sectionID)
	if err != nil {
		return section.Section{}, section.WrapRepository("get section", err)
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return section.Section{}, fmt.Errorf("%w: section %s is at version %d, expected %d", section.ErrConflict, sectionID, current.Version, expectedVersion)
	}
	return current, nil
}

func (e *Engine) logFailure(op, sectionID string, err error) {
	var event *zerolog.Event
	switch outcomeOf(err) {
	case metrics.OutcomeError:
		event = e.log.Error()
	case metrics.OutcomeConflict:
		event = e.log.Warn()
	default:
		event = e.log.Debug()
	}
	event.Err(err).Str("op", op).Str("section_id", sectionID).Msg("section operation failed")
}

func outcomeOf(err error) string {
	var validationErr *schema.ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &validationErr):
		return metrics.OutcomeInvalid
	case errors.Is(err, section.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, section.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
