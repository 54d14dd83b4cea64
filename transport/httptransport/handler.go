package httptransport

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// Handler serves a queuekit.Remote over HTTP:
//
//	GET    /healthz
//	GET    /collections/{collection}/documents/{id}
//	POST   /collections/{collection}/documents
//	PUT    /collections/{collection}/documents/{id}   (optional If-Match)
//	DELETE /collections/{collection}/documents/{id}
//	POST   /commit
type Handler struct {
	remote  queuekit.Remote
	options *ServerOptions
	logger  *slog.Logger
	router  chi.Router
}

// NewHandler creates the HTTP handler for remote
func NewHandler(remote queuekit.Remote, opts ...ServerOption) *Handler {
	options := applyServerOptions(opts...)
	h := &Handler{
		remote:  remote,
		options: options,
		logger:  logging.For(options.Logger, component),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	if options.RequestTimeout > 0 {
		r.Use(middleware.Timeout(options.RequestTimeout))
	}

	r.Get("/healthz", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Route("/collections/{collection}/documents", func(r chi.Router) {
			r.Post("/", h.handleCreate)
			r.Get("/{id}", h.handleGet)
			r.Put("/{id}", h.handleUpdate)
			r.Delete("/{id}", h.handleDelete)
		})
		r.Post("/commit", h.handleCommit)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	if h.options.Token == "" {
		return next
	}
	want := []byte("Bearer " + h.options.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			respondWithError(w, r, http.StatusUnauthorized, "missing or invalid token", h.options)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, r, http.StatusOK, healthResponse{Status: "ok"}, h.options)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.remote.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithRemoteError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(doc.Version))
	respondWithJSON(w, r, http.StatusOK, doc, h.options)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.remote.Create(r.Context(), chi.URLParam(r, "collection"), req.ID, req.Data)
	if err != nil {
		h.respondWithRemoteError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(doc.Version))
	respondWithJSON(w, r, http.StatusCreated, doc, h.options)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	expected := parseIfMatch(r.Header.Get("If-Match"))
	if expected == "*" {
		expected = ""
	}
	doc, err := h.remote.Update(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Data, expected)
	if err != nil {
		h.respondWithRemoteError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(doc.Version))
	respondWithJSON(w, r, http.StatusOK, doc, h.options)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.remote.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		h.respondWithRemoteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 {
		respondWithError(w, r, http.StatusBadRequest, "commit needs at least one operation", h.options)
		return
	}
	docs, err := h.remote.Commit(r.Context(), req.Operations)
	if err != nil {
		h.respondWithRemoteError(w, r, err)
		return
	}
	respondWithJSON(w, r, http.StatusOK, commitResponse{Documents: docs}, h.options)
}

// decode reads a JSON body within the configured limits. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	reader, cleanup, err := createSafeRequestReader(w, r, h.options)
	if err != nil {
		respondWithError(w, r, statusForBodyError(err), err.Error(), h.options)
		return false
	}
	defer cleanup()

	if err := json.NewDecoder(reader).Decode(v); err != nil {
		respondWithError(w, r, statusForBodyError(err), "invalid request body: "+err.Error(), h.options)
		return false
	}
	return true
}

// respondWithRemoteError maps a Remote error back to the status the Client
// classifies it from
func (h *Handler) respondWithRemoteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, queuekit.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queuekit.ErrVersionMismatch):
		status = http.StatusPreconditionFailed
		if r.Method == http.MethodPost {
			status = http.StatusConflict
		}
	case queueErrors.IsPermanent(err), queueErrors.HasCode(err, queueErrors.ErrCodeValidationFailure):
		status = http.StatusUnprocessableEntity
	}
	if status >= 500 {
		h.logger.Warn("remote call failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondWithError(w, r, status, err.Error(), h.options)
}
