package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// setupTestRemote connects to POSTGRES_TEST_CONNECTION or skips
func setupTestRemote(t *testing.T) *Remote {
	t.Helper()
	connStr := os.Getenv("POSTGRES_TEST_CONNECTION")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_CONNECTION not set")
	}
	config := DefaultConfig(connStr)
	config.Logger = logging.Discard()
	config.MaxOpenConns = 5
	r, err := New(config)
	require.NoError(t, err)
	_, err = r.db.Exec(`TRUNCATE documents, document_tombstones`)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		permanent bool
	}{
		{name: "unique violation", err: &pq.Error{Code: "23505"}, permanent: true},
		{name: "invalid json", err: &pq.Error{Code: "22P02"}, permanent: true},
		{name: "undefined table", err: &pq.Error{Code: "42P01"}, permanent: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, retryable: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, retryable: true},
		{name: "unknown", err: errors.New("io timeout"), retryable: true},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap(tt.err, "postgres.Test")
			assert.Equal(t, tt.retryable, queueErrors.IsRetryable(err))
			assert.Equal(t, tt.permanent, queueErrors.IsPermanent(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	nf := wrap(queuekit.ErrNotFound, "postgres.Get")
	assert.ErrorIs(t, nf, queuekit.ErrNotFound)
	assert.False(t, queueErrors.IsRetryable(nf))
}

func TestMaskConnectionString(t *testing.T) {
	assert.Equal(t, "host=db password=*** user=app", maskConnectionString("host=db password=hunter2 user=app"))
	assert.Equal(t, "postgres://app:***@db/queue", maskConnectionString("postgres://app:hunter2@db/queue"))
	assert.Equal(t, "postgres://db/queue", maskConnectionString("postgres://db/queue"))
}

func TestParseNotification(t *testing.T) {
	n, err := parseNotification(`{"collection":"notes","id":"a","version":3,"op":"UPDATE"}`)
	require.NoError(t, err)
	assert.Equal(t, ChangeNotification{Collection: "notes", ID: "a", Version: 3, Op: "UPDATE"}, n)

	_, err = parseNotification(`{"collection":"notes"}`)
	assert.Error(t, err)
	_, err = parseNotification(`not json`)
	assert.Error(t, err)
}

func TestInvalidateCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.WithLogger(logging.Discard()))
	c.Set(ctx, cache.Signature("notes", "a", nil), []byte("x"))
	c.Set(ctx, cache.Signature("notes", "b", nil), []byte("y"))

	InvalidateCache(c)(ChangeNotification{Collection: "notes", ID: "a", Op: "UPDATE"})

	_, ok := c.Get(cache.Signature("notes", "a", nil))
	assert.False(t, ok)
	_, ok = c.Get(cache.Signature("notes", "b", nil))
	assert.True(t, ok)
}

func TestRemote_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	r := setupTestRemote(t)

	doc, err := r.Create(ctx, "notes", "a", map[string]any{"title": "one"})
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)

	_, err = r.Create(ctx, "notes", "a", nil)
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	doc, err = r.Update(ctx, "notes", "a", map[string]any{"title": "two"}, "1")
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)

	_, err = r.Update(ctx, "notes", "a", map[string]any{"title": "stale"}, "1")
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	_, err = r.Update(ctx, "notes", "missing", nil, "")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)

	got, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Data["title"])

	require.NoError(t, r.Delete(ctx, "notes", "a"))
	assert.ErrorIs(t, r.Delete(ctx, "notes", "a"), queuekit.ErrNotFound)
}

func TestRemote_RecreateNeverReusesVersion(t *testing.T) {
	ctx := context.Background()
	r := setupTestRemote(t)

	_, err := r.Create(ctx, "notes", "a", map[string]any{"title": "old"})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "notes", "a"))

	doc, err := r.Create(ctx, "notes", "a", map[string]any{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)

	_, err = r.Update(ctx, "notes", "a", map[string]any{"title": "stale"}, "1")
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch, "a version of the deleted document must not match")

	_, err = r.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpDelete, Collection: "notes", DocumentID: "a"},
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "a"},
	})
	require.NoError(t, err)
	got, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Version)
}

func TestRemote_CommitRollsBack(t *testing.T) {
	ctx := context.Background()
	r := setupTestRemote(t)

	_, err := r.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "x", Data: map[string]any{"n": 1}},
		{Type: queuekit.OpUpdate, Collection: "notes", DocumentID: "missing"},
	})
	assert.ErrorIs(t, err, queuekit.ErrNotFound)

	_, err = r.Get(ctx, "notes", "x")
	assert.ErrorIs(t, err, queuekit.ErrNotFound, "the create must have been rolled back")
}
