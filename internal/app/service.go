package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/api/internal/auth"
	"folio/api/internal/config"
	"folio/api/internal/preview"
	"folio/api/internal/publish"
	"folio/api/internal/rbac"
	"folio/api/internal/search"
	"folio/api/internal/section"
)

// Session is the authenticated principal behind a request.
type Session struct {
	UserID   string
	UserName string
	Orgs     map[string]string
}

// Role returns the principal's role in orgID; ok is false without membership.
func (s Session) Role(orgID string) (rbac.Role, bool) {
	return rbac.Normalize(s.Orgs[orgID])
}

type Store interface {
	Ping(ctx context.Context) error
	GetPage(ctx context.Context, pageID string) (section.Page, error)
	GetSection(ctx context.Context, sectionID string) (section.Section, error)
	ListSectionsForPage(ctx context.Context, pageID string) ([]section.Section, error)
}

type Engine interface {
	Publish(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error)
	Discard(ctx context.Context, sectionID string, expectedVersion int64) (section.Section, error)
	SaveDraft(ctx context.Context, sectionID string, content section.Content, expectedVersion int64) (section.Section, error)
	PublishAll(ctx context.Context, pageID string) (publish.BatchResult, error)
	DiscardAll(ctx context.Context, pageID string) (publish.BatchResult, error)
}

type Previews interface {
	Issue(ctx context.Context, req preview.IssueRequest) (preview.Token, error)
	Redeem(ctx context.Context, token string) (preview.Scope, error)
}

type Searcher interface {
	Search(q search.Query) search.Response
}

type readinessCheck struct {
	name string
	ping func(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    Store
	engine   Engine
	previews Previews
	search   Searcher
	checks   []readinessCheck
	log      zerolog.Logger
}

func NewService(cfg config.Config, store Store, engine Engine, previews Previews, searcher Searcher, log zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		previews: previews,
		search:   searcher,
		checks:   []readinessCheck{{name: "database", ping: store.Ping}},
		log:      log,
	}
}

// AddReadinessCheck registers an extra dependency reported by /api/ready.
func (s *Service) AddReadinessCheck(name string, ping func(context.Context) error) {
	s.checks = append(s.checks, readinessCheck{name: name, ping: ping})
}

func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	results := make(map[string]any, len(s.checks))
	for _, check := range s.checks {
		if err := check.ping(ctx); err != nil {
			ready = false
			results[check.name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		results[check.name] = map[string]any{"status": "ok"}
	}
	return ready, results
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Subject, UserName: claims.Name, Orgs: claims.Orgs}, nil
}

// authorize hides resources of organizations the principal does not belong
// to and forbids actions the principal's role does not grant.
func (s *Service) authorize(session Session, orgID string, action rbac.Action) error {
	role, ok := session.Role(orgID)
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if !rbac.Can(role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return nil
}

func (s *Service) authorizedSection(ctx context.Context, session Session, sectionID string, action rbac.Action) (section.Section, error) {
	item, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return section.Section{}, section.WrapRepository("get section", err)
	}
	if err := s.authorize(session, item.OrgID, action); err != nil {
		return section.Section{}, err
	}
	return item, nil
}

func (s *Service) authorizedPage(ctx context.Context, session Session, pageID string, action rbac.Action) (section.Page, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return section.Page{}, section.WrapRepository("get page", err)
	}
	if err := s.authorize(session, page.OrgID, action); err != nil {
		return section.Page{}, err
	}
	return page, nil
}

func (s *Service) GetSection(ctx context.Context, session Session, sectionID string) (SectionView, error) {
	item, err := s.authorizedSection(ctx, session, sectionID, rbac.ActionRead)
	if err != nil {
		return SectionView{}, err
	}
	return sectionView(item), nil
}

func (s *Service) ListPageSections(ctx context.Context, session Session, pageID string) (PageView, error) {
	page, err := s.authorizedPage(ctx, session, pageID, rbac.ActionRead)
	if err != nil {
		return PageView{}, err
	}
	items, err := s.store.ListSectionsForPage(ctx, pageID)
	if err != nil {
		return PageView{}, section.WrapRepository("list sections", err)
	}
	return pageView(page, items), nil
}

func (s *Service) SaveDraft(ctx context.Context, session Session, sectionID string, content section.Content, version int64) (SectionView, error) {
	if _, err := s.authorizedSection(ctx, session, sectionID, rbac.ActionEdit); err != nil {
		return SectionView{}, err
	}
	updated, err := s.engine.SaveDraft(ctx, sectionID, content, version)
	if err != nil {
		return SectionView{}, err
	}
	return sectionView(updated), nil
}

func (s *Service) PublishSection(ctx context.Context, session Session, sectionID string, version int64) (SectionView, error) {
	if _, err := s.authorizedSection(ctx, session, sectionID, rbac.ActionPublish); err != nil {
		return SectionView{}, err
	}
	updated, err := s.engine.Publish(ctx, sectionID, version)
	if err != nil {
		return SectionView{}, err
	}
	return sectionView(updated), nil
}

func (s *Service) DiscardSection(ctx context.Context, session Session, sectionID string, version int64) (SectionView, error) {
	if _, err := s.authorizedSection(ctx, session, sectionID, rbac.ActionEdit); err != nil {
		return SectionView{}, err
	}
	updated, err := s.engine.Discard(ctx, sectionID, version)
	if err != nil {
		return SectionView{}, err
	}
	return sectionView(updated), nil
}

func (s *Service) PublishPage(ctx context.Context, session Session, pageID string) (publish.BatchResult, error) {
	if _, err := s.authorizedPage(ctx, session, pageID, rbac.ActionPublish); err != nil {
		return publish.BatchResult{}, err
	}
	return s.engine.PublishAll(ctx, pageID)
}

func (s *Service) DiscardPage(ctx context.Context, session Session, pageID string) (publish.BatchResult, error) {
	if _, err := s.authorizedPage(ctx, session, pageID, rbac.ActionEdit); err != nil {
		return publish.BatchResult{}, err
	}
	return s.engine.DiscardAll(ctx, pageID)
}

func (s *Service) IssuePreviewToken(ctx context.Context, session Session, pageID, sectionID string, ttlHours int) (preview.Token, error) {
	page, err := s.authorizedPage(ctx, session, pageID, rbac.ActionPreview)
	if errors.Is(err, section.ErrPageNotFound) {
		return preview.Token{}, fmt.Errorf("%w: page %s", preview.ErrScopeNotFound, pageID)
	}
	if err != nil {
		return preview.Token{}, err
	}
	return s.previews.Issue(ctx, preview.IssueRequest{
		OrgID:     page.OrgID,
		PageID:    page.ID,
		SectionID: strings.TrimSpace(sectionID),
		IssuedBy:  session.UserID,
		TTLHours:  ttlHours,
	})
}

// RedeemPreview resolves a preview token and loads the draft content it
// grants access to. No session is involved.
func (s *Service) RedeemPreview(ctx context.Context, token string) (PreviewPayload, error) {
	scope, err := s.previews.Redeem(ctx, token)
	if err != nil {
		return PreviewPayload{}, err
	}
	page, err := s.store.GetPage(ctx, scope.PageID)
	if err != nil {
		return PreviewPayload{}, section.WrapRepository("get page", err)
	}
	if page.OrgID != scope.OrgID {
		return PreviewPayload{}, section.ErrPageNotFound
	}

	var items []section.Section
	if scope.SectionID != "" {
		item, err := s.store.GetSection(ctx, scope.SectionID)
		if err != nil {
			return PreviewPayload{}, section.WrapRepository("get section", err)
		}
		if item.PageID != page.ID {
			return PreviewPayload{}, section.ErrNotFound
		}
		items = []section.Section{item}
	} else {
		items, err = s.store.ListSectionsForPage(ctx, page.ID)
		if err != nil {
			return PreviewPayload{}, section.WrapRepository("list sections", err)
		}
	}
	return previewPayload(scope, page, items), nil
}

func (s *Service) Search(_ context.Context, session Session, orgID, text, pageID string, limit, offset int) (search.Response, error) {
	if err := s.authorize(session, orgID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:   strings.TrimSpace(text),
		OrgID:  orgID,
		PageID: strings.TrimSpace(pageID),
		Limit:  limit,
		Offset: offset,
	}), nil
}

// SectionView is the JSON shape of a section, with its status derived at
// serialization time.
type SectionView struct {
	ID               string          `json:"id"`
	OrgID            string          `json:"orgId"`
	PageID           string          `json:"pageId"`
	ComponentType    string          `json:"componentType"`
	Key              string          `json:"key"`
	Status           section.Status  `json:"status"`
	DraftContent     section.Content `json:"draftContent"`
	PublishedContent section.Content `json:"publishedContent"`
	Order            int             `json:"order"`
	Version          int64           `json:"version"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	PublishedAt      *time.Time      `json:"publishedAt,omitempty"`
}

func sectionView(item section.Section) SectionView {
	return SectionView{
		ID:               item.ID,
		OrgID:            item.OrgID,
		PageID:           item.PageID,
		ComponentType:    item.ComponentType,
		Key:              item.Key,
		Status:           item.Status(),
		DraftContent:     item.DraftContent,
		PublishedContent: item.PublishedContent,
		Order:            item.Order,
		Version:          item.Version,
		UpdatedAt:        item.UpdatedAt,
		PublishedAt:      item.PublishedAt,
	}
}

type PageView struct {
	ID       string        `json:"id"`
	OrgID    string        `json:"orgId"`
	Title    string        `json:"title"`
	Slug     string        `json:"slug"`
	Sections []SectionView `json:"sections"`
}

func pageView(page section.Page, items []section.Section) PageView {
	views := make([]SectionView, 0, len(items))
	for _, item := range items {
		views = append(views, sectionView(item))
	}
	return PageView{ID: page.ID, OrgID: page.OrgID, Title: page.Title, Slug: page.Slug, Sections: views}
}

type PreviewSection struct {
	ID            string          `json:"id"`
	Key           string          `json:"key"`
	ComponentType string          `json:"componentType"`
	Order         int             `json:"order"`
	Status        section.Status  `json:"status"`
	Content       section.Content `json:"content"`
}

type PreviewPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type PreviewPayload struct {
	Scope    preview.Scope    `json:"scope"`
	Page     PreviewPage      `json:"page"`
	Sections []PreviewSection `json:"sections"`
}

// previewPayload renders what an editor would see: the draft, or the
// published content when the draft has no edits.
func previewPayload(scope preview.Scope, page section.Page, items []section.Section) PreviewPayload {
	sections := make([]PreviewSection, 0, len(items))
	for _, item := range items {
		content := item.DraftContent
		if content == nil {
			content = item.PublishedContent
		}
		sections = append(sections, PreviewSection{
			ID:            item.ID,
			Key:           item.Key,
			ComponentType: item.ComponentType,
			Order:         item.Order,
			Status:        item.Status(),
			Content:       content,
		})
	}
	return PreviewPayload{
		Scope:    scope,
		Page:     PreviewPage{ID: page.ID, Title: page.Title, Slug: page.Slug},
		Sections: sections,
	}
}
