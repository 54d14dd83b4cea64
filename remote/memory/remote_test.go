package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	r := New()

	doc, err := r.Create(ctx, "notes", "a", map[string]any{"title": "one"})
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)

	_, err = r.Create(ctx, "notes", "a", map[string]any{"title": "dup"})
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	doc, err = r.Update(ctx, "notes", "a", map[string]any{"title": "two"}, "1")
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)

	_, err = r.Update(ctx, "notes", "a", map[string]any{"title": "stale"}, "1")
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	doc, err = r.Update(ctx, "notes", "a", map[string]any{"title": "forced"}, "")
	require.NoError(t, err)
	assert.Equal(t, "3", doc.Version)

	got, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "forced", got.Data["title"])
	assert.Equal(t, 3, r.Writes())
}

func TestCreateAssignsID(t *testing.T) {
	r := New()
	doc, err := r.Create(context.Background(), "notes", "", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 1, r.Len("notes"))
}

func TestMissingDocuments(t *testing.T) {
	ctx := context.Background()
	r := New()

	_, err := r.Get(ctx, "notes", "x")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
	_, err = r.Update(ctx, "notes", "x", nil, "")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "notes", "x"), queuekit.ErrNotFound)
}

func TestReturnedDataIsCopied(t *testing.T) {
	ctx := context.Background()
	r := New()
	data := map[string]any{"title": "one"}
	_, err := r.Create(ctx, "notes", "a", data)
	require.NoError(t, err)
	data["title"] = "mutated"

	got, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	got.Data["title"] = "mutated again"

	again, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "one", again.Data["title"])
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.Put("notes", "keep", map[string]any{"v": 1})

	_, err := r.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "new", Data: map[string]any{"v": 2}},
		{Type: queuekit.OpUpdate, Collection: "notes", DocumentID: "missing", Data: map[string]any{"v": 3}},
	})
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
	assert.Equal(t, 1, r.Len("notes"), "failed batch must leave no trace")

	docs, err := r.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "new", Data: map[string]any{"v": 2}},
		{Type: queuekit.OpUpdate, Collection: "notes", DocumentID: "keep", Data: map[string]any{"v": 4}},
		{Type: queuekit.OpDelete, Collection: "notes", DocumentID: "gone"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "1", docs[0].Version)
	assert.Equal(t, "2", docs[1].Version)
	assert.Nil(t, docs[2])
	assert.Equal(t, 2, r.Len("notes"))
}

func TestFailNext(t *testing.T) {
	ctx := context.Background()
	r := New()
	boom := errors.New("connection reset")
	r.FailNext(MethodCreate, 2, boom)

	_, err := r.Create(ctx, "notes", "a", nil)
	assert.ErrorIs(t, err, boom)
	_, err = r.Create(ctx, "notes", "a", nil)
	assert.ErrorIs(t, err, boom)
	_, err = r.Create(ctx, "notes", "a", nil)
	assert.NoError(t, err)

	assert.Equal(t, 3, r.Calls(MethodCreate))
	assert.Equal(t, 1, r.Writes())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Get(ctx, "notes", "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecreateNeverReusesVersion(t *testing.T) {
	ctx := context.Background()
	r := New()

	_, err := r.Create(ctx, "notes", "a", map[string]any{"title": "old"})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "notes", "a"))
	assert.Equal(t, 0, r.Len("notes"))

	_, err = r.Get(ctx, "notes", "a")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
	_, err = r.Update(ctx, "notes", "a", nil, "")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)

	doc, err := r.Create(ctx, "notes", "a", map[string]any{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)
	assert.Equal(t, 1, r.Len("notes"))

	_, err = r.Update(ctx, "notes", "a", map[string]any{"title": "stale"}, "1")
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	_, err = r.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpDelete, Collection: "notes", DocumentID: "a"},
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "a"},
	})
	require.NoError(t, err)
	got, err := r.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Version)
}
