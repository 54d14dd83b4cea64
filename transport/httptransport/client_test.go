package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
	"github.com/c0deZ3R0/go-offline-queue/remote/memory"
)

func newTestServer(t *testing.T, remote queuekit.Remote, opts ...ServerOption) *httptest.Server {
	t.Helper()
	opts = append([]ServerOption{WithServerLogger(logging.Discard())}, opts...)
	srv := httptest.NewServer(NewHandler(remote, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithClientLogger(logging.Discard()), WithRateLimit(0, 0)}, opts...)
	return NewClient(srv.URL, srv.Client(), opts...)
}

func TestClient_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, memory.New())
	c := newTestClient(srv)

	doc, err := c.Create(ctx, "notes", "a", map[string]any{"title": "one"})
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, "1", doc.Version)

	got, err := c.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Data["title"])

	doc, err = c.Update(ctx, "notes", "a", map[string]any{"title": "two"}, "1")
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)

	_, err = c.Update(ctx, "notes", "a", map[string]any{"title": "stale"}, "1")
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)
	assert.False(t, queueErrors.IsRetryable(err))

	doc, err = c.Update(ctx, "notes", "a", map[string]any{"title": "forced"}, "")
	require.NoError(t, err)
	assert.Equal(t, "3", doc.Version)

	require.NoError(t, c.Delete(ctx, "notes", "a"))
	_, err = c.Get(ctx, "notes", "a")
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "notes", "a"), queuekit.ErrNotFound)
}

func TestClient_CreateConflictsOnExistingID(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	remote.Put("notes", "a", map[string]any{"title": "server"})
	c := newTestClient(newTestServer(t, remote))

	_, err := c.Create(ctx, "notes", "a", map[string]any{"title": "client"})
	assert.ErrorIs(t, err, queuekit.ErrVersionMismatch)

	doc, err := c.Create(ctx, "notes", "", map[string]any{"title": "fresh"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
}

func TestClient_Commit(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	c := newTestClient(newTestServer(t, remote))

	docs, err := c.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "a", Data: map[string]any{"n": 1}},
		{Type: queuekit.OpCreate, Collection: "notes", DocumentID: "b", Data: map[string]any{"n": 2}},
		{Type: queuekit.OpDelete, Collection: "notes", DocumentID: "zzz"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ID)
	assert.Nil(t, docs[2])
	assert.Equal(t, 2, remote.Len("notes"))

	_, err = c.Commit(ctx, []queuekit.Operation{
		{Type: queuekit.OpUpdate, Collection: "notes", DocumentID: "missing"},
	})
	assert.ErrorIs(t, err, queuekit.ErrNotFound)
}

func TestClient_TransientRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	remote.FailNext(memory.MethodCreate, 1, errors.New("database unavailable"))
	c := newTestClient(newTestServer(t, remote))

	_, err := c.Create(ctx, "notes", "a", nil)
	require.Error(t, err)
	assert.True(t, queueErrors.IsRetryable(err))
	assert.True(t, queueErrors.HasCode(err, queueErrors.ErrCodeNetworkFailure))
	assert.Contains(t, err.Error(), "database unavailable")

	_, err = c.Create(ctx, "notes", "a", nil)
	assert.NoError(t, err)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		permanent bool
		sentinel  error
	}{
		{status: http.StatusBadRequest, permanent: true},
		{status: http.StatusUnprocessableEntity, permanent: true},
		{status: http.StatusUnauthorized, permanent: true},
		{status: http.StatusNotFound, sentinel: queuekit.ErrNotFound},
		{status: http.StatusConflict, sentinel: queuekit.ErrVersionMismatch},
		{status: http.StatusPreconditionFailed, sentinel: queuekit.ErrVersionMismatch},
		{status: http.StatusTooManyRequests, retryable: true},
		{status: http.StatusInternalServerError, retryable: true},
		{status: http.StatusBadGateway, retryable: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Get(context.Background(), "notes", "a")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.retryable, queueErrors.IsRetryable(err))
			assert.Equal(t, tt.permanent, queueErrors.IsPermanent(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestClient_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, WithClientLogger(logging.Discard()), WithClientTimeout(time.Second))
	_, err := c.Get(context.Background(), "notes", "a")
	require.Error(t, err)
	assert.True(t, queueErrors.IsRetryable(err))
}

func TestClient_CompressedRequests(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	var encodings []string
	handler := NewHandler(remote, WithServerLogger(logging.Discard()))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodings = append(encodings, r.Header.Get("Content-Encoding"))
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv, WithGzipMinBytes(16))
	big := strings.Repeat("x", 4096)
	_, err := c.Create(ctx, "notes", "a", map[string]any{"body": big})
	require.NoError(t, err)

	got, err := c.Get(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, big, got.Data["body"])
	assert.Equal(t, []string{"gzip", ""}, encodings)
}

func TestHandler_RejectsOversizeBodies(t *testing.T) {
	srv := newTestServer(t, memory.New(), WithMaxDecompressedSize(64))
	c := newTestClient(srv)

	_, err := c.Create(context.Background(), "notes", "a", map[string]any{"body": strings.Repeat("x", 256)})
	require.Error(t, err)
	assert.True(t, queueErrors.IsPermanent(err))
	assert.Contains(t, err.Error(), "413")
}

func TestHandler_Token(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, memory.New(), WithServerToken("s3cret"))

	anon := newTestClient(srv)
	require.NoError(t, anon.Healthy(ctx), "healthz stays open")
	_, err := anon.Create(ctx, "notes", "a", nil)
	require.Error(t, err)
	assert.True(t, queueErrors.IsPermanent(err))

	authed := newTestClient(srv, WithToken("s3cret"))
	_, err = authed.Create(ctx, "notes", "a", nil)
	assert.NoError(t, err)
}

func TestHandler_BadJSON(t *testing.T) {
	srv := newTestServer(t, memory.New())
	resp, err := srv.Client().Post(srv.URL+"/collections/notes/documents", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := srv.Client().Post(srv.URL+"/commit", "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp2.StatusCode)
}

func TestClient_RateLimited(t *testing.T) {
	srv := newTestServer(t, memory.New())
	c := NewClient(srv.URL, srv.Client(), WithClientLogger(logging.Discard()), WithRateLimit(1, 1))

	require.NoError(t, c.Healthy(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Healthy(ctx)
	require.Error(t, err)
	assert.True(t, queueErrors.IsRetryable(err))
}

func TestParseIfMatch(t *testing.T) {
	assert.Equal(t, "3", parseIfMatch(`"3"`))
	assert.Equal(t, "3", parseIfMatch(`W/"3"`))
	assert.Equal(t, "3", parseIfMatch(`3`))
	assert.Equal(t, "", parseIfMatch(""))
}
