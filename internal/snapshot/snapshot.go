// Package snapshot writes published section content to object storage so the
// site renderer can serve it without touching the database.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"folio/api/internal/ordered"
	"folio/api/internal/section"
)

const writeTimeout = 15 * time.Second

// ObjectStore is the subset of *minio.Client used here.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Document is the object body written for each published section.
type Document struct {
	ID            string          `json:"id"`
	OrgID         string          `json:"orgId"`
	PageID        string          `json:"pageId"`
	Key           string          `json:"key"`
	ComponentType string          `json:"componentType"`
	Order         int             `json:"order"`
	Version       int64           `json:"version"`
	Content       section.Content `json:"content"`
	PublishedAt   *time.Time      `json:"publishedAt,omitempty"`
}

type Writer struct {
	store  ObjectStore
	bucket string
	log    zerolog.Logger
	writes ordered.Writes
}

// Connect builds a minio client and makes sure the bucket exists.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Writer, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("snapshot bucket created")
	}
	return NewWriter(client, cfg.Bucket, log), nil
}

func NewWriter(store ObjectStore, bucket string, log zerolog.Logger) *Writer {
	return &Writer{store: store, bucket: bucket, log: log}
}

// ObjectName is orgs/{org}/pages/{page}/sections/{key}.json.
func ObjectName(item section.Section) string {
	return path.Join("orgs", item.OrgID, "pages", item.PageID, "sections", item.Key+".json")
}

// Put writes the published content of item. Sections that were never
// published have nothing to write.
func (w *Writer) Put(ctx context.Context, item section.Section) error {
	if item.PublishedContent == nil {
		return nil
	}
	body, err := json.Marshal(Document{
		ID:            item.ID,
		OrgID:         item.OrgID,
		PageID:        item.PageID,
		Key:           item.Key,
		ComponentType: item.ComponentType,
		Order:         item.Order,
		Version:       item.Version,
		Content:       item.PublishedContent,
		PublishedAt:   item.PublishedAt,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	name := ObjectName(item)
	_, err = w.store.PutObject(ctx, w.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "no-cache",
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", name, err)
	}
	return nil
}

// SectionPublished writes the snapshot in the background. The write outlives
// the request that triggered it. Writes for one object run in version order,
// and a write older than one already scheduled is dropped.
func (w *Writer) SectionPublished(ctx context.Context, item section.Section) {
	detached := context.WithoutCancel(ctx)
	w.writes.Go(ObjectName(item), item.Version, func() {
		writeCtx, cancel := context.WithTimeout(detached, writeTimeout)
		defer cancel()
		if err := w.Put(writeCtx, item); err != nil {
			w.log.Warn().Err(err).Str("section_id", item.ID).Int64("version", item.Version).Msg("snapshot write failed")
		}
	})
}

// SectionDiscarded leaves the snapshot alone: a discard never changes
// published content, and never-published sections have no object.
func (w *Writer) SectionDiscarded(context.Context, section.Section) {}

// Wait blocks until background writes finish.
func (w *Writer) Wait() {
	w.writes.Wait()
}
