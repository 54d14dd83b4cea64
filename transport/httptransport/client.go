// Package httptransport speaks the queue's remote document protocol over HTTP.
// Client implements queuekit.Remote against any server that serves Handler.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

const component = "transport/httptransport"

// Client implements the queuekit.Remote interface over HTTP.
//
// Status codes map to the queue's error classes:
//   - 404 wraps queuekit.ErrNotFound
//   - 409 and 412 wrap queuekit.ErrVersionMismatch
//   - 429, 5xx and transport failures are retryable network errors
//   - any other 4xx is a permanent rejection
type Client struct {
	client  *http.Client
	baseURL string
	options *ClientOptions
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ queuekit.Remote = (*Client)(nil)

// NewClient creates a Client for baseURL, e.g. "https://api.example.com/v1".
// A nil http.Client gets one with the configured request timeout.
func NewClient(baseURL string, client *http.Client, opts ...ClientOption) *Client {
	options := applyClientOptions(opts...)
	if client == nil {
		client = &http.Client{Timeout: options.RequestTimeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if options.RateLimit > 0 {
		burst := options.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RateLimit), burst)
	}

	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		options: options,
		limiter: limiter,
		logger:  logging.For(options.Logger, component),
	}
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

func documentPath(collection, id string) string {
	p := "/collections/" + url.PathEscape(collection) + "/documents"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func (c *Client) Get(ctx context.Context, collection, id string) (*queuekit.Document, error) {
	var doc queuekit.Document
	if err := c.do(ctx, "httptransport.Get", http.MethodGet, documentPath(collection, id), nil, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) Create(ctx context.Context, collection, id string, data map[string]any) (*queuekit.Document, error) {
	var doc queuekit.Document
	body := createRequest{ID: id, Data: data}
	if err := c.do(ctx, "httptransport.Create", http.MethodPost, documentPath(collection, ""), nil, body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, data map[string]any, expectedVersion string) (*queuekit.Document, error) {
	var header http.Header
	if expectedVersion != "" {
		header = http.Header{"If-Match": []string{etag(expectedVersion)}}
	}
	var doc queuekit.Document
	if err := c.do(ctx, "httptransport.Update", http.MethodPut, documentPath(collection, id), header, updateRequest{Data: data}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, "httptransport.Delete", http.MethodDelete, documentPath(collection, id), nil, nil, nil)
}

func (c *Client) Commit(ctx context.Context, ops []queuekit.Operation) ([]*queuekit.Document, error) {
	var resp commitResponse
	if err := c.do(ctx, "httptransport.Commit", http.MethodPost, "/commit", nil, commitRequest{Operations: ops}, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// Healthy reports whether GET /healthz answers 2xx
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, "httptransport.Healthy", http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, header http.Header, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return queueErrors.WrapOpComponent(queueErrors.NewNetworkError(queueErrors.OpRemote, fmt.Errorf("rate limiter: %w", err)), op, component)
	}

	var body io.Reader
	contentEncoding := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return queueErrors.WrapOpComponentKind(fmt.Errorf("failed to marshal request: %w", err), op, component, queueErrors.KindPermanent)
		}
		body = bytes.NewReader(data)
		if c.options.CompressionEnabled && len(data) >= c.options.GzipMinBytes {
			compressed, err := compressBody(data)
			if err != nil {
				return queueErrors.WrapOpComponent(err, op, component)
			}
			body = compressed
			contentEncoding = "gzip"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return queueErrors.WrapOpComponentKind(fmt.Errorf("failed to create request: %w", err), op, component, queueErrors.KindPermanent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	if c.options.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return queueErrors.WrapOpComponent(queueErrors.NewNetworkError(queueErrors.OpRemote, fmt.Errorf("network error: %w", err)), op, component)
	}
	defer resp.Body.Close()

	reader := createSafeResponseReader(resp, c.options)
	c.logger.Debug("remote call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return queueErrors.WrapOpComponent(statusError(resp.StatusCode, reader), op, component)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		// a garbled body from a healthy server is worth another try
		return queueErrors.WrapOpComponent(queueErrors.NewNetworkError(queueErrors.OpRemote, fmt.Errorf("failed to decode response: %w", err)), op, component)
	}
	return nil
}

// statusError builds the classified error for a non-2xx response
func statusError(status int, body io.Reader) error {
	msg := http.StatusText(status)
	var er errorResponse
	if raw, _ := io.ReadAll(io.LimitReader(body, 64*1024)); len(raw) > 0 {
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			msg = er.Error
		}
	}
	cause := fmt.Errorf("server error (status %d): %s", status, msg)

	switch {
	case status == http.StatusNotFound:
		return queueErrors.NewNotFoundError(queueErrors.OpRemote, "remote", fmt.Errorf("%w: %w", queuekit.ErrNotFound, cause))
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return queueErrors.NewConflictError(queueErrors.OpRemote, fmt.Errorf("%w: %w", queuekit.ErrVersionMismatch, cause))
	case status == http.StatusTooManyRequests, status >= 500:
		return queueErrors.NewNetworkError(queueErrors.OpRemote, cause)
	default:
		return queueErrors.NewRejectedError(queueErrors.OpRemote, cause)
	}
}
