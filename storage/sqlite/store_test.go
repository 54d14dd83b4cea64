package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
	"github.com/c0deZ3R0/go-offline-queue/queuekit/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config := DefaultConfig(filepath.Join(t.TempDir(), "queue.db"))
	config.Logger = logging.Discard()
	s, err := New(config)
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) queuekit.Store { return newTestStore(t) })
}

func TestNew_RequiresDataSource(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestConfigDSN(t *testing.T) {
	c := DefaultConfig("file:queue.db")
	assert.Equal(t, "file:queue.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", c.dsn())

	c = &Config{DataSourceName: "file:queue.db?cache=shared"}
	c.setDefaults()
	assert.Equal(t, "file:queue.db?cache=shared&_txlock=immediate&_busy_timeout=5000", c.dsn())
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	config := DefaultConfig(path)
	config.Logger = logging.Discard()
	s, err := New(config)
	require.NoError(t, err)
	require.NoError(t, s.SaveItem(ctx, storetest.NewItem("a")))
	require.NoError(t, s.SaveItem(ctx, storetest.NewItem("b")))
	require.NoError(t, s.Close())

	s, err = New(config)
	require.NoError(t, err)
	defer s.Close()

	items, err := s.ListItems(ctx, queuekit.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)
	assert.Equal(t, "t-a", items[0].Data["title"])
}

func TestStore_UpgradesQueueTableWithoutClaims(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE queue (
        seq          INTEGER PRIMARY KEY AUTOINCREMENT,
        id           TEXT NOT NULL UNIQUE,
        type         TEXT NOT NULL,
        collection   TEXT NOT NULL,
        document_id  TEXT NOT NULL DEFAULT '',
        data         TEXT,
        operations   TEXT,
        priority     TEXT NOT NULL,
        status       TEXT NOT NULL,
        retry_count  INTEGER NOT NULL DEFAULT 0,
        max_retries  INTEGER NOT NULL DEFAULT 3,
        error        TEXT NOT NULL DEFAULT '',
        timestamp    INTEGER NOT NULL,
        updated_at   INTEGER NOT NULL,
        user_id      TEXT NOT NULL DEFAULT '',
        team_id      TEXT NOT NULL DEFAULT '',
        metadata     TEXT
    )`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	config := DefaultConfig(path)
	config.Logger = logging.Discard()
	s, err := New(config)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveItem(ctx, storetest.NewItem("a")))
	claimed, err := s.ClaimItem(ctx, "a", queuekit.Claim{Owner: "m1", At: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "m1", claimed.Claim.Owner)
}

func TestStore_ClosedIsRejected(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.GetItem(context.Background(), "a")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestCachePersister(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	future := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveCacheEntry(ctx, cache.Entry{Key: "notes/a", Value: []byte(`{"id":"a"}`), ExpiresAt: future}))
	require.NoError(t, s.SaveCacheEntry(ctx, cache.Entry{Key: "notes/b", Value: []byte(`{"id":"b"}`), ExpiresAt: future}))
	require.NoError(t, s.SaveCacheEntry(ctx, cache.Entry{Key: "notes/old", Value: []byte(`{}`), ExpiresAt: time.Now().Add(-time.Minute)}))

	entries, err := s.LoadCacheEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2, "expired rows are not loaded")

	require.NoError(t, s.DeleteCacheEntry(ctx, "notes/a"))
	require.NoError(t, s.DeleteCacheEntry(ctx, "missing"))
	entries, err = s.LoadCacheEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes/b", entries[0].Key)
	assert.Equal(t, []byte(`{"id":"b"}`), entries[0].Value)

	n, err := s.PurgeExpiredCache(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.ClearCacheEntries(ctx))
	entries, err = s.LoadCacheEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCacheRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	c := cache.New(cache.WithPersister(s), cache.WithLogger(logging.Discard()))
	c.Set(ctx, "notes/a", []byte("payload"))

	restored := cache.New(cache.WithPersister(s), cache.WithLogger(logging.Discard()))
	require.NoError(t, restored.Restore(ctx))
	v, ok := restored.Get("notes/a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}
