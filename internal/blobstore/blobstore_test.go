package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gocloud.dev/blob/memblob"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

func TestBucket_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(memblob.OpenBucket(nil), nil)
	defer s.Close()

	key := Key(uuid.Must(uuid.NewV4()), policy.DocIdentity)
	require.True(t, strings.HasPrefix(key, "cases/"))
	require.Contains(t, key, "/ID/")

	doc, err := s.Put(ctx, key, []byte("scan"), "image/png")
	require.NoError(t, err)
	require.Equal(t, key, doc.BlobPath)
	require.Equal(t, int64(4), doc.Size)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("scan"), got)

	require.NoError(t, s.Delete(ctx, key))
	require.ErrorIs(t, s.Delete(ctx, key), errs.ErrNotFound)
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOpen_MemURL(t *testing.T) {
	s, err := Open(context.Background(), "mem://", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestKey_Unique(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	require.NotEqual(t, Key(id, policy.DocIdentity), Key(id, policy.DocIdentity))
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, string, []byte, string) (model.Document, error) {
	return model.Document{}, f.err
}
func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Delete(context.Context, string) error        { return f.err }

func TestBestEffortDelete_LogsOnlyRealFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	BestEffortDelete(context.Background(), failingStore{err: errs.ErrNotFound}, log, "k")
	BestEffortDelete(context.Background(), failingStore{err: errors.New("io")}, log, "")
	require.Equal(t, 0, logs.Len())

	BestEffortDelete(context.Background(), failingStore{err: errors.New("io")}, log, "k")
	require.Equal(t, 1, logs.Len())
}
