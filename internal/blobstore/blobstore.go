// Package blobstore stores case document artifacts in a gocloud bucket.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
)

const deleteTimeout = 10 * time.Second

// Store is the blob collaborator used by the services.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (model.Document, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Bucket implements Store on top of a gocloud bucket.
type Bucket struct {
	bucket *blob.Bucket
	log    *zap.Logger
}

// Open opens the bucket at url (file://, mem://, s3://) and checks it is reachable.
func Open(ctx context.Context, url string, log *zap.Logger) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	ok, err := b.IsAccessible(ctx)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("check bucket %s: %w", url, err)
	}
	if !ok {
		_ = b.Close()
		return nil, fmt.Errorf("bucket %s is not accessible", url)
	}
	return New(b, log), nil
}

// New wraps an already open bucket.
func New(b *blob.Bucket, log *zap.Logger) *Bucket {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bucket{bucket: b, log: log.Named("blobstore")}
}

// Key returns a fresh object key for an artifact of kind on case id.
// Every upload gets its own key so a replaced artifact can be deleted after the new one commits.
func Key(caseID uuid.UUID, kind model.DocumentKind) string {
	return path.Join("cases", caseID.String(), string(kind), uuid.Must(uuid.NewV4()).String())
}

// Put writes data under key and returns the artifact reference.
func (s *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) (model.Document, error) {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return model.Document{}, fmt.Errorf("open writer %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return model.Document{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return model.Document{}, fmt.Errorf("close writer %s: %w", key, err)
	}
	return model.Document{BlobPath: key, ContentType: contentType, Size: int64(len(data))}, nil
}

// Get reads the object at key.
func (s *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Delete removes the object at key. A missing object reports errs.ErrNotFound.
func (s *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := s.bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return errs.ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the bucket.
func (s *Bucket) Close() error { return s.bucket.Close() }

// BestEffortDelete removes key and only logs failures. A missing object is not a failure.
func BestEffortDelete(ctx context.Context, st Store, log *zap.Logger, key string) {
	if key == "" {
		return
	}
	if err := st.Delete(ctx, key); err != nil && !errors.Is(err, errs.ErrNotFound) {
		log.Warn("orphaned blob not deleted", zap.String("blob_path", key), zap.Error(err))
	}
}
