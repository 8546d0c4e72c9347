package preview

import (
	"context"
	"time"
)

// Record is the persisted form of a token. Only the hash of the token is kept.
type Record struct {
	TokenHash string    `json:"token_hash"`
	OrgID     string    `json:"org_id"`
	PageID    string    `json:"page_id"`
	SectionID string    `json:"section_id,omitempty"`
	IssuedBy  string    `json:"issued_by"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenStore persists token records. Lookup returns ErrTokenNotFound when the
// hash is unknown or the backend already dropped it.
type TokenStore interface {
	SavePreviewToken(ctx context.Context, record Record) error
	LookupPreviewToken(ctx context.Context, tokenHash string) (Record, error)
}
