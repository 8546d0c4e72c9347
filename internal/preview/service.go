// Package preview issues and redeems short-lived tokens that let a renderer
// read draft content without a session.
package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/api/internal/metrics"
	"folio/api/internal/section"
	"folio/api/internal/util"
)

const tokenBytes = 32

const (
	DefaultTTLHours = 24
	MaxTTLHours     = 168
)

// PageLookup is the read side of the page and section repository.
type PageLookup interface {
	GetPage(ctx context.Context, pageID string) (section.Page, error)
	GetSection(ctx context.Context, sectionID string) (section.Section, error)
}

type IssueRequest struct {
	OrgID     string
	PageID    string
	SectionID string
	IssuedBy  string
	// TTLHours of zero selects the configured default.
	TTLHours int
}

// Token is returned once at issuance; the plaintext is never stored.
type Token struct {
	Token     string    `json:"token"`
	OrgID     string    `json:"orgId"`
	PageID    string    `json:"pageId"`
	SectionID string    `json:"sectionId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Scope struct {
	OrgID     string    `json:"orgId"`
	PageID    string    `json:"pageId"`
	SectionID string    `json:"sectionId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Options struct {
	DefaultTTLHours int
	MaxTTLHours     int
	Now             func() time.Time
	Metrics         *metrics.Metrics
	Log             zerolog.Logger
}

type Service struct {
	tokens     TokenStore
	pages      PageLookup
	defaultTTL int
	maxTTL     int
	now        func() time.Time
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewService(tokens TokenStore, pages PageLookup, opts Options) *Service {
	if opts.MaxTTLHours <= 0 {
		opts.MaxTTLHours = MaxTTLHours
	}
	if opts.DefaultTTLHours <= 0 {
		opts.DefaultTTLHours = DefaultTTLHours
	}
	if opts.DefaultTTLHours > opts.MaxTTLHours {
		opts.DefaultTTLHours = opts.MaxTTLHours
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Service{
		tokens:     tokens,
		pages:      pages,
		defaultTTL: opts.DefaultTTLHours,
		maxTTL:     opts.MaxTTLHours,
		now:        opts.Now,
		metrics:    opts.Metrics,
		log:        opts.Log,
	}
}

// Issue mints a token scoped to a page, or to one section of it. Caller
// authorization is checked by the API layer before this is called.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Token, error) {
	ttl := req.TTLHours
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < 0 || ttl > s.maxTTL {
		return Token{}, fmt.Errorf("%w: %d hours (allowed 1..%d)", ErrInvalidTTL, req.TTLHours, s.maxTTL)
	}
	if err := s.checkScope(ctx, req); err != nil {
		return Token{}, err
	}

	plain, err := util.NewToken(tokenBytes)
	if err != nil {
		return Token{}, fmt.Errorf("generate preview token: %w", err)
	}
	now := s.now().UTC()
	record := Record{
		TokenHash: util.HashToken(plain),
		OrgID:     req.OrgID,
		PageID:    req.PageID,
		SectionID: strings.TrimSpace(req.SectionID),
		IssuedBy:  req.IssuedBy,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Hour),
		CreatedAt: now,
	}
	if err := s.tokens.SavePreviewToken(ctx, record); err != nil {
		return Token{}, section.WrapRepository("save preview token", err)
	}
	s.metrics.RecordPreviewIssued()
	s.log.Info().
		Str("org_id", record.OrgID).
		Str("page_id", record.PageID).
		Str("section_id", record.SectionID).
		Str("issued_by", record.IssuedBy).
		Time("expires_at", record.ExpiresAt).
		Msg("preview token issued")

	return Token{
		Token:     plain,
		OrgID:     record.OrgID,
		PageID:    record.PageID,
		SectionID: record.SectionID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) checkScope(ctx context.Context, req IssueRequest) error {
	page, err := s.pages.GetPage(ctx, req.PageID)
	if errors.Is(err, section.ErrPageNotFound) || errors.Is(err, section.ErrNotFound) {
		return fmt.Errorf("%w: page %s", ErrScopeNotFound, req.PageID)
	}
	if err != nil {
		return section.WrapRepository("get page", err)
	}
	if page.OrgID != req.OrgID {
		return fmt.Errorf("%w: page %s", ErrScopeNotFound, req.PageID)
	}

	sectionID := strings.TrimSpace(req.SectionID)
	if sectionID == "" {
		return nil
	}
	item, err := s.pages.GetSection(ctx, sectionID)
	if errors.Is(err, section.ErrNotFound) {
		return fmt.Errorf("%w: section %s", ErrScopeNotFound, sectionID)
	}
	if err != nil {
		return section.WrapRepository("get section", err)
	}
	if item.PageID != page.ID || item.OrgID != req.OrgID {
		return fmt.Errorf("%w: section %s", ErrScopeNotFound, sectionID)
	}
	return nil
}

// Redeem resolves a token to its scope. It never fetches content and never
// mutates the token, so it is safe to call repeatedly and concurrently.
func (s *Service) Redeem(ctx context.Context, token string) (Scope, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.RecordPreviewRedeemed("not_found")
		return Scope{}, ErrTokenNotFound
	}
	record, err := s.tokens.LookupPreviewToken(ctx, util.HashToken(token))
	if errors.Is(err, ErrTokenNotFound) {
		s.metrics.RecordPreviewRedeemed("not_found")
		return Scope{}, ErrTokenNotFound
	}
	if err != nil {
		s.metrics.RecordPreviewRedeemed("error")
		return Scope{}, section.WrapRepository("lookup preview token", err)
	}
	if !s.now().Before(record.ExpiresAt) {
		s.metrics.RecordPreviewRedeemed("expired")
		return Scope{}, ErrTokenExpired
	}
	s.metrics.RecordPreviewRedeemed("ok")
	return Scope{
		OrgID:     record.OrgID,
		PageID:    record.PageID,
		SectionID: record.SectionID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}
