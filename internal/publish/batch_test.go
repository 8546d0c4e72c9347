package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"folio/api/internal/metrics"
	"folio/api/internal/section"
)

func pageSection(id string, order int, draft, published section.Content) section.Section {
	item := heroSection(id, draft, published)
	item.Order = order
	return item
}

func TestPublishAllWithOneInvalidSection(t *testing.T) {
	repo := newMemRepo(
		pageSection("s1", 1, section.Content{"title": "One v2"}, section.Content{"title": "One"}),
		pageSection("s2", 2, section.Content{"subtitle": "missing title"}, section.Content{"title": "Two"}),
		pageSection("s3", 3, section.Content{"title": "Three v2"}, section.Content{"title": "Three"}),
	)
	m := metrics.Nop()
	engine := newTestEngine(repo, Options{Metrics: m, Parallelism: 2})

	result, err := engine.PublishAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if result.Attempted != 3 || result.Succeeded != 2 || len(result.Failures) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Success {
		t.Fatal("expected Success=false with a failed section")
	}
	failure := result.Failures[0]
	if failure.SectionID != "s2" || failure.Kind != FailureInvalid || failure.FieldPath != "title" || failure.Reason == "" {
		t.Fatalf("unexpected failure: %+v", failure)
	}

	if repo.get("s1").Status() != section.StatusPublished || repo.get("s3").Status() != section.StatusPublished {
		t.Fatal("valid sections should be published")
	}
	s2 := repo.get("s2")
	if s2.Status() != section.StatusDirty || s2.PublishedContent["title"] != "Two" {
		t.Fatalf("invalid section must keep its published content: %+v", s2)
	}
	if got := testutil.ToFloat64(m.BatchSections.WithLabelValues("publish", "failed")); got != 1 {
		t.Fatalf("expected one failed batch section, got %v", got)
	}
}

func TestPublishAllSkipsCleanSections(t *testing.T) {
	repo := newMemRepo(
		pageSection("draft", 1, section.Content{"title": "Never published"}, nil),
		pageSection("clean", 2, section.Content{"title": "Same"}, section.Content{"title": "Same"}),
		pageSection("dirty", 3, section.Content{"title": "New"}, section.Content{"title": "Old"}),
	)
	engine := newTestEngine(repo, Options{})

	result, err := engine.PublishAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if result.Attempted != 1 || result.Succeeded != 1 || result.Skipped != 2 || !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	if repo.get("draft").Status() != section.StatusDraft {
		t.Fatal("draft-only sections are not part of a page publish")
	}
	if repo.putCount() != 1 {
		t.Fatalf("expected a single write, got %d", repo.putCount())
	}
}

func TestPublishAllEmptyPage(t *testing.T) {
	engine := newTestEngine(newMemRepo(), Options{})
	result, err := engine.PublishAll(context.Background(), "page_empty")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if !result.Success || result.Attempted != 0 || result.Failures == nil || result.NotAttempted == nil {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDiscardAllLeavesNoDirtySections(t *testing.T) {
	repo := newMemRepo(
		pageSection("a", 1, section.Content{"title": "A2"}, section.Content{"title": "A"}),
		pageSection("b", 2, section.Content{"title": "Draft"}, nil),
		pageSection("c", 3, section.Content{"title": "C"}, section.Content{"title": "C"}),
		pageSection("d", 4, section.Content{"bogus": 1}, section.Content{"title": "D"}),
	)
	engine := newTestEngine(repo, Options{})

	result, err := engine.DiscardAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("DiscardAll() error = %v", err)
	}
	if result.Attempted != 3 || result.Succeeded != 3 || result.Skipped != 1 || !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}

	items, err := repo.ListSectionsForPage(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, item := range items {
		if item.Status() == section.StatusDirty {
			t.Fatalf("section %s still dirty after DiscardAll", item.ID)
		}
	}
	if repo.get("b").DraftContent != nil {
		t.Fatal("never-published draft should be cleared")
	}
}

func TestDiscardAllReportsConflictsWithoutFailing(t *testing.T) {
	repo := newMemRepo(
		pageSection("a", 1, section.Content{"title": "A2"}, section.Content{"title": "A"}),
		pageSection("b", 2, section.Content{"title": "B2"}, section.Content{"title": "B"}),
	)
	engine := newTestEngine(repo, Options{Parallelism: 1})
	repo.onGet = func(ctx context.Context, sectionID string) error {
		if sectionID != "b" {
			return nil
		}
		repo.onGet = nil
		// Another writer bumps b between listing and discarding.
		_, err := repo.PutSection(ctx, pageSection("b", 2, section.Content{"title": "B3"}, section.Content{"title": "B"}), 0)
		return err
	}

	result, err := engine.DiscardAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("DiscardAll() error = %v", err)
	}
	if result.Success || result.Succeeded != 1 || len(result.Failures) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Failures[0].Kind != FailureConflict || result.Failures[0].SectionID != "b" {
		t.Fatalf("unexpected failure: %+v", result.Failures[0])
	}
}

func TestBatchListFailureIsRepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errors.New("database unavailable")
	engine := newTestEngine(repo, Options{})

	_, err := engine.PublishAll(context.Background(), "page_home")
	var repoErr *section.RepositoryError
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected RepositoryError, got %v", err)
	}
}

func TestBatchReportsNotAttemptedWhenCancelled(t *testing.T) {
	repo := newMemRepo(
		pageSection("s1", 1, section.Content{"title": "1b"}, section.Content{"title": "1"}),
		pageSection("s2", 2, section.Content{"title": "2b"}, section.Content{"title": "2"}),
		pageSection("s3", 3, section.Content{"title": "3b"}, section.Content{"title": "3"}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.onGet = func(ctx context.Context, sectionID string) error {
		cancel()
		return ctx.Err()
	}
	engine := newTestEngine(repo, Options{Parallelism: 1})

	result, err := engine.PublishAll(ctx, "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if result.Attempted != 1 || len(result.Failures) != 1 || result.Failures[0].Kind != FailureRepository {
		t.Fatalf("expected the first section to fail as a repository error: %+v", result)
	}
	if len(result.NotAttempted) != 2 || result.NotAttempted[0] != "s2" || result.NotAttempted[1] != "s3" {
		t.Fatalf("expected s2 and s3 not attempted, got %v", result.NotAttempted)
	}
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if repo.putCount() != 0 {
		t.Fatal("no section should have been written")
	}
}

func TestBatchTimeoutBoundsTheCall(t *testing.T) {
	repo := newMemRepo(
		pageSection("s1", 1, section.Content{"title": "1b"}, section.Content{"title": "1"}),
		pageSection("s2", 2, section.Content{"title": "2b"}, section.Content{"title": "2"}),
	)
	repo.onGet = func(ctx context.Context, sectionID string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	engine := newTestEngine(repo, Options{Parallelism: 1, BatchTimeout: 20 * time.Millisecond})

	result, err := engine.PublishAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if result.Attempted+len(result.NotAttempted) != 2 || len(result.NotAttempted) == 0 {
		t.Fatalf("expected unstarted sections after timeout: %+v", result)
	}
}

func TestBatchRespectsParallelism(t *testing.T) {
	items := make([]section.Section, 0, 12)
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		items = append(items, pageSection(id, i, section.Content{"title": id + "2"}, section.Content{"title": id}))
	}
	repo := newMemRepo(items...)
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	repo.onGet = func(context.Context, string) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}
	engine := newTestEngine(repo, Options{Parallelism: 3})

	result, err := engine.PublishAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if !result.Success || result.Succeeded != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if maxSeen > 3 {
		t.Fatalf("expected at most 3 concurrent sections, saw %d", maxSeen)
	}
}

func TestBatchFailuresFollowPageOrder(t *testing.T) {
	repo := newMemRepo(
		pageSection("z", 1, section.Content{"nope": 1}, section.Content{"title": "Z"}),
		pageSection("a", 2, section.Content{"nope": 1}, section.Content{"title": "A"}),
		pageSection("m", 3, section.Content{"nope": 1}, section.Content{"title": "M"}),
	)
	engine := newTestEngine(repo, Options{Parallelism: 3})

	result, err := engine.PublishAll(context.Background(), "page_home")
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	got := []string{}
	for _, failure := range result.Failures {
		got = append(got, failure.SectionID)
	}
	if len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "m" {
		t.Fatalf("expected failures in page order, got %v", got)
	}
}
