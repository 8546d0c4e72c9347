// Package search keeps a full-text index of published section content.
package search

import "time"

// SectionRecord is what we index for a published section.
type SectionRecord struct {
	ID            string `json:"id"`
	OrgID         string `json:"orgId"`
	PageID        string `json:"pageId"`
	Key           string `json:"key"`
	ComponentType string `json:"componentType"`
	Text          string `json:"text"`
	PublishedAt   int64  `json:"publishedAt"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	SectionID     string `json:"sectionId"`
	PageID        string `json:"pageId"`
	Key           string `json:"key"`
	ComponentType string `json:"componentType"`
	Snippet       string `json:"snippet"`
}

type Query struct {
	Text          string
	OrgID         string // required; results never cross organizations
	PageID        string
	ComponentType string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Backend is a search engine holding SectionRecords.
type Backend interface {
	IndexSections(records []SectionRecord) error
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

func unixMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
