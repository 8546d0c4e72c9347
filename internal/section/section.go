// Package section holds the section model shared by the store, the publish
// engine and the API layer. Status is always derived from the content pair.
package section

import (
	"bytes"
	"encoding/json"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusDirty     Status = "dirty"
	StatusPublished Status = "published"
)

// Content is a section payload: field name to JSON-compatible value.
// A nil Content means the slot is unset.
type Content map[string]any

type Section struct {
	ID               string
	OrgID            string
	PageID           string
	ComponentType    string
	Key              string
	DraftContent     Content
	PublishedContent Content
	Order            int
	Version          int64
	UpdatedAt        time.Time
	PublishedAt      *time.Time
}

type Page struct {
	ID    string
	OrgID string
	Title string
	Slug  string
}

// Status recomputes the lifecycle state on every call.
func (s Section) Status() Status {
	return DeriveStatus(s.DraftContent, s.PublishedContent)
}

// DeriveStatus is draft when nothing was ever published, published when the
// draft is unset or equal to the published payload, and dirty otherwise.
func DeriveStatus(draft, published Content) Status {
	if published == nil {
		return StatusDraft
	}
	if draft == nil || Equal(draft, published) {
		return StatusPublished
	}
	return StatusDirty
}

// HasPendingEdits reports whether discarding the section would change it.
func HasPendingEdits(s Section) bool {
	switch s.Status() {
	case StatusDirty:
		return true
	case StatusDraft:
		return len(s.DraftContent) > 0
	default:
		return false
	}
}

// Equal compares two payloads by their canonical JSON form, so 1 and 1.0
// are the same value and map ordering is irrelevant.
func Equal(a, b Content) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// Clone deep-copies maps and slices so the result shares nothing mutable with c.
func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	out := make(Content, len(c))
	for key, value := range c {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return map[string]any(Content(typed).Clone())
	case Content:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

// MarshalContent encodes c for storage; nil encodes to nil bytes.
func MarshalContent(c Content) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// UnmarshalContent decodes stored bytes; empty input and JSON null yield nil.
func UnmarshalContent(raw []byte) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var out Content
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, err
	}
	return out, nil
}
