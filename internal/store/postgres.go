package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"folio/api/internal/preview"
	"folio/api/internal/section"
	"folio/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertPage(ctx context.Context, page section.Page) (section.Page, error) {
	if page.ID == "" {
		page.ID = util.NewID("page")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, org_id, title, slug)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, page.ID, page.OrgID, page.Title, page.Slug)
	if err != nil {
		return section.Page{}, fmt.Errorf("insert page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (section.Page, error) {
	var page section.Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, title, slug
		FROM pages
		WHERE id=$1
	`, pageID).Scan(&page.ID, &page.OrgID, &page.Title, &page.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return section.Page{}, section.ErrPageNotFound
	}
	if err != nil {
		return section.Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

const sectionColumns = `id, org_id, page_id, component_type, key, draft_content, published_content, sort_order, version, updated_at, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSection(row rowScanner) (section.Section, error) {
	var (
		item        section.Section
		draftRaw    []byte
		publishRaw  []byte
		publishedAt sql.NullTime
	)
	if err := row.Scan(
		&item.ID,
		&item.OrgID,
		&item.PageID,
		&item.ComponentType,
		&item.Key,
		&draftRaw,
		&publishRaw,
		&item.Order,
		&item.Version,
		&item.UpdatedAt,
		&publishedAt,
	); err != nil {
		return section.Section{}, err
	}
	draft, err := section.UnmarshalContent(draftRaw)
	if err != nil {
		return section.Section{}, fmt.Errorf("decode draft content of %s: %w", item.ID, err)
	}
	published, err := section.UnmarshalContent(publishRaw)
	if err != nil {
		return section.Section{}, fmt.Errorf("decode published content of %s: %w", item.ID, err)
	}
	item.DraftContent = draft
	item.PublishedContent = published
	if publishedAt.Valid {
		at := publishedAt.Time
		item.PublishedAt = &at
	}
	return item, nil
}

// InsertSection creates a section at version 1. Pages own their sections, so
// the page-authoring workflow is the only regular caller.
func (s *PostgresStore) InsertSection(ctx context.Context, item section.Section) (section.Section, error) {
	if item.ID == "" {
		item.ID = util.NewID("sec")
	}
	draft, err := encodeContent(item.DraftContent)
	if err != nil {
		return section.Section{}, err
	}
	published, err := encodeContent(item.PublishedContent)
	if err != nil {
		return section.Section{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sections (id, org_id, page_id, component_type, key, draft_content, published_content, sort_order, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sectionColumns,
		item.ID, item.OrgID, item.PageID, item.ComponentType, item.Key, draft, published, item.Order, nullTime(item.PublishedAt),
	)
	created, err := scanSection(row)
	if err != nil {
		return section.Section{}, fmt.Errorf("insert section: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (section.Section, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id=$1`, sectionID)
	item, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return section.Section{}, section.ErrNotFound
	}
	if err != nil {
		return section.Section{}, fmt.Errorf("get section: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListSectionsForPage(ctx context.Context, pageID string) ([]section.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections
		WHERE page_id=$1
		ORDER BY sort_order ASC, key ASC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]section.Section, 0)
	for rows.Next() {
		item, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

// PutSection writes both content slots. With expectedVersion > 0 the write
// only applies if the row is still at that version; otherwise it returns
// section.ErrConflict. The stored version is bumped on every write.
func (s *PostgresStore) PutSection(ctx context.Context, item section.Section, expectedVersion int64) (section.Section, error) {
	draft, err := encodeContent(item.DraftContent)
	if err != nil {
		return section.Section{}, err
	}
	published, err := encodeContent(item.PublishedContent)
	if err != nil {
		return section.Section{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE sections
		SET draft_content=$2, published_content=$3, published_at=$4, version=version+1, updated_at=NOW()
		WHERE id=$1 AND ($5::BIGINT <= 0 OR version=$5)
		RETURNING `+sectionColumns,
		item.ID, draft, published, nullTime(item.PublishedAt), expectedVersion,
	)
	updated, err := scanSection(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return section.Section{}, fmt.Errorf("put section: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sections WHERE id=$1)`, item.ID).Scan(&exists); err != nil {
		return section.Section{}, fmt.Errorf("check section: %w", err)
	}
	if !exists {
		return section.Section{}, section.ErrNotFound
	}
	return section.Section{}, section.ErrConflict
}

func (s *PostgresStore) SavePreviewToken(ctx context.Context, record preview.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preview_tokens (token_hash, org_id, page_id, section_id, issued_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.TokenHash, record.OrgID, record.PageID, nilIfEmpty(record.SectionID), record.IssuedBy, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("save preview token: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupPreviewToken(ctx context.Context, tokenHash string) (preview.Record, error) {
	var (
		record    preview.Record
		sectionID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, org_id, page_id, section_id, issued_by, expires_at, created_at
		FROM preview_tokens
		WHERE token_hash=$1
	`, tokenHash).Scan(
		&record.TokenHash,
		&record.OrgID,
		&record.PageID,
		&sectionID,
		&record.IssuedBy,
		&record.ExpiresAt,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return preview.Record{}, preview.ErrTokenNotFound
	}
	if err != nil {
		return preview.Record{}, fmt.Errorf("lookup preview token: %w", err)
	}
	record.SectionID = sectionID.String
	return record, nil
}

// DeletePreviewTokensExpiredBefore removes rows whose expiry is older than
// cutoff and reports how many were dropped.
func (s *PostgresStore) DeletePreviewTokensExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM preview_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired preview tokens: %w", err)
	}
	return result.RowsAffected()
}

func encodeContent(content section.Content) (any, error) {
	raw, err := section.MarshalContent(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return string(raw), nil
}

func nullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
