package httptransport

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errDecompressedTooLarge is a sentinel error for decompressed size limit violations
var errDecompressedTooLarge = errors.New("decompressed data exceeds maximum size limit")

// errUnsupportedMedia covers content types and encodings the server refuses
var errUnsupportedMedia = errors.New("unsupported media type")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		return 0, errDecompressedTooLarge
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)

	if r.consumed >= r.limit && err == nil {
		// at the limit; one more byte means the body was too large
		var dummy [1]byte
		if _, peekErr := r.reader.Read(dummy[:]); peekErr == nil {
			return n, errDecompressedTooLarge
		}
	}

	return n, err
}

// createSafeRequestReader returns a reader over the request body that enforces both
// the compressed and the decompressed size limits, plus a cleanup func
func createSafeRequestReader(w http.ResponseWriter, r *http.Request, options *ServerOptions) (io.Reader, func(), error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil, func() {}, fmt.Errorf("%w: %s", errUnsupportedMedia, contentType)
	}

	limitedReader := http.MaxBytesReader(w, r.Body, options.MaxRequestSize)

	contentEncoding := strings.TrimSpace(strings.ToLower(r.Header.Get("Content-Encoding")))
	switch contentEncoding {
	case "":
		return &maxDecompressedReader{reader: limitedReader, limit: options.MaxDecompressedSize}, func() {}, nil
	case "gzip":
	default:
		return nil, func() {}, fmt.Errorf("%w: content encoding %s", errUnsupportedMedia, contentEncoding)
	}

	gzReader, err := gzip.NewReader(limitedReader)
	if err != nil {
		return nil, func() {}, fmt.Errorf("invalid gzip data: %w", err)
	}
	decompressed := &maxDecompressedReader{reader: gzReader, limit: options.MaxDecompressedSize}
	return decompressed, func() { gzReader.Close() }, nil
}

// createSafeResponseReader caps the bytes read from a response body. Go's
// transport already decompresses gzip responses it asked for itself.
func createSafeResponseReader(resp *http.Response, options *ClientOptions) io.Reader {
	return &maxDecompressedReader{reader: resp.Body, limit: options.MaxResponseSize}
}

// compressBody gzips data
func compressBody(data []byte) (*bytes.Buffer, error) {
	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	if _, err := gzipWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return &compressed, nil
}

// statusForBodyError maps body reading failures to HTTP status codes:
// oversize bodies get 413, refused media 415, anything else 400
func statusForBodyError(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, errDecompressedTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
