package section

import (
	"errors"
	"testing"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name      string
		draft     Content
		published Content
		want      Status
	}{
		{name: "never published", draft: Content{"title": "A"}, published: nil, want: StatusDraft},
		{name: "never published empty", draft: nil, published: nil, want: StatusDraft},
		{name: "equal", draft: Content{"title": "A"}, published: Content{"title": "A"}, want: StatusPublished},
		{name: "draft unset", draft: nil, published: Content{"title": "A"}, want: StatusPublished},
		{name: "differs", draft: Content{"title": "B"}, published: Content{"title": "A"}, want: StatusDirty},
		{name: "empty draft differs", draft: Content{}, published: Content{"title": "A"}, want: StatusDirty},
		{name: "numeric kinds", draft: Content{"price": 12}, published: Content{"price": 12.0}, want: StatusPublished},
		{
			name:      "nested order irrelevant",
			draft:     Content{"items": []any{map[string]any{"a": 1, "b": 2}}},
			published: Content{"items": []any{map[string]any{"b": 2, "a": 1}}},
			want:      StatusPublished,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.draft, tc.published); got != tc.want {
				t.Fatalf("DeriveStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatusRecomputesAfterMutation(t *testing.T) {
	s := Section{DraftContent: Content{"title": "A"}, PublishedContent: Content{"title": "A"}}
	if s.Status() != StatusPublished {
		t.Fatalf("expected published, got %q", s.Status())
	}
	s.DraftContent["title"] = "B"
	if s.Status() != StatusDirty {
		t.Fatalf("expected dirty after draft edit, got %q", s.Status())
	}
}

func TestHasPendingEdits(t *testing.T) {
	cases := []struct {
		name string
		s    Section
		want bool
	}{
		{name: "dirty", s: Section{DraftContent: Content{"title": "B"}, PublishedContent: Content{"title": "A"}}, want: true},
		{name: "draft with content", s: Section{DraftContent: Content{"title": "B"}}, want: true},
		{name: "empty draft", s: Section{DraftContent: Content{}}, want: false},
		{name: "unset draft", s: Section{}, want: false},
		{name: "published", s: Section{DraftContent: Content{"title": "A"}, PublishedContent: Content{"title": "A"}}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasPendingEdits(tc.s); got != tc.want {
				t.Fatalf("HasPendingEdits() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Content{
		"title": "A",
		"items": []any{map[string]any{"name": "x"}},
		"tags":  []string{"a"},
	}
	copied := original.Clone()
	copied["items"].([]any)[0].(map[string]any)["name"] = "y"
	copied["tags"].([]string)[0] = "b"

	if original["items"].([]any)[0].(map[string]any)["name"] != "x" {
		t.Fatal("clone shares nested map with original")
	}
	if original["tags"].([]string)[0] != "a" {
		t.Fatal("clone shares string slice with original")
	}
	if Content(nil).Clone() != nil {
		t.Fatal("expected nil clone of nil content")
	}
}

func TestUnmarshalContentNull(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("null"), []byte("  null ")} {
		got, err := UnmarshalContent(raw)
		if err != nil || got != nil {
			t.Fatalf("UnmarshalContent(%q) = %v, %v; want nil, nil", raw, got, err)
		}
	}
	got, err := UnmarshalContent([]byte(`{"title":"A"}`))
	if err != nil || got["title"] != "A" {
		t.Fatalf("UnmarshalContent() = %v, %v", got, err)
	}
}

func TestWrapRepository(t *testing.T) {
	if err := WrapRepository("get", ErrNotFound); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found passthrough, got %v", err)
	}
	err := WrapRepository("put", errors.New("connection reset"))
	var repoErr *RepositoryError
	if !errors.As(err, &repoErr) || repoErr.Op != "put" {
		t.Fatalf("expected RepositoryError, got %v", err)
	}
	if WrapRepository("get", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
