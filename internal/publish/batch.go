package publish

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"folio/api/internal/schema"
	"folio/api/internal/section"
)

type FailureKind string

const (
	FailureNotFound   FailureKind = "not_found"
	FailureInvalid    FailureKind = "invalid"
	FailureConflict   FailureKind = "conflict"
	FailureRepository FailureKind = "repository"
)

type Failure struct {
	SectionID string      `json:"sectionId"`
	Key       string      `json:"key"`
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
	FieldPath string      `json:"fieldPath,omitempty"`
}

// BatchResult aggregates a page-wide operation. Attempted counts sections the
// operation was started for; Skipped counts sections that needed no work.
type BatchResult struct {
	PageID       string    `json:"pageId"`
	Operation    string    `json:"operation"`
	Attempted    int       `json:"attempted"`
	Succeeded    int       `json:"succeeded"`
	Skipped      int       `json:"skipped"`
	Failures     []Failure `json:"failures"`
	NotAttempted []string  `json:"notAttempted"`
	Success      bool      `json:"success"`
}

type batchOp struct {
	name   string
	wants  func(section.Section) bool
	single func(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error)
}

// PublishAll publishes every dirty section of the page. Sections that fail
// are reported individually; only a failure to list the page's sections is
// returned as an error.
func (e *Engine) PublishAll(ctx context.Context, pageID string) (BatchResult, error) {
	return e.runBatch(ctx, pageID, batchOp{
		name: "publish",
		wants: func(item section.Section) bool {
			return item.Status() == section.StatusDirty
		},
		single: e.Publish,
	})
}

// DiscardAll reverts every section with pending edits, including never
// published sections that carry a draft.
func (e *Engine) DiscardAll(ctx context.Context, pageID string) (BatchResult, error) {
	return e.runBatch(ctx, pageID, batchOp{
		name:   "discard",
		wants:  section.HasPendingEdits,
		single: e.Discard,
	})
}

type taskOutcome struct {
	started bool
	err     error
}

func (e *Engine) runBatch(ctx context.Context, pageID string, op batchOp) (BatchResult, error) {
	started := e.now()
	if e.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.batchTimeout)
		defer cancel()
	}

	items, err := e.repo.ListSectionsForPage(ctx, pageID)
	if err != nil {
		return BatchResult{}, section.WrapRepository("list sections", err)
	}

	result := BatchResult{
		PageID:       pageID,
		Operation:    op.name,
		Failures:     make([]Failure, 0),
		NotAttempted: make([]string, 0),
	}
	selected := make([]section.Section, 0, len(items))
	for _, item := range items {
		if op.wants(item) {
			selected = append(selected, item)
		} else {
			result.Skipped++
		}
	}

	outcomes := make([]taskOutcome, len(selected))
	var group errgroup.Group
	group.SetLimit(e.parallelism)
	for i, item := range selected {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := op.single(ctx, item.ID, item.Version)
			if errors.Is(err, errNotStarted) {
				return nil
			}
			outcomes[i] = taskOutcome{started: true, err: err}
			return nil
		})
	}
	_ = group.Wait()

	for i, item := range selected {
		outcome := outcomes[i]
		if !outcome.started {
			result.NotAttempted = append(result.NotAttempted, item.ID)
			continue
		}
		result.Attempted++
		if outcome.err == nil {
			result.Succeeded++
			continue
		}
		result.Failures = append(result.Failures, failureOf(item, outcome.err))
	}
	result.Success = len(result.Failures) == 0 && len(result.NotAttempted) == 0

	e.metrics.RecordBatch(op.name, e.now().Sub(started), result.Succeeded, len(result.Failures), result.Skipped, len(result.NotAttempted))
	e.log.Info().
		Str("op", op.name).
		Str("page_id", pageID).
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Failures)).
		Int("skipped", result.Skipped).
		Int("not_attempted", len(result.NotAttempted)).
		Msg("page batch finished")
	return result, nil
}

func failureOf(item section.Section, err error) Failure {
	failure := Failure{SectionID: item.ID, Key: item.Key, Reason: err.Error()}
	var validationErr *schema.ValidationError
	switch {
	case errors.As(err, &validationErr):
		failure.Kind = FailureInvalid
		failure.Reason = validationErr.Reason
		failure.FieldPath = validationErr.FieldPath
	case errors.Is(err, section.ErrNotFound):
		failure.Kind = FailureNotFound
	case errors.Is(err, section.ErrConflict):
		failure.Kind = FailureConflict
	default:
		failure.Kind = FailureRepository
	}
	return failure
}
