package httptransport

import (
	"log/slog"
	"time"
)

// ClientOptions configures a Client
type ClientOptions struct {
	// CompressionEnabled gzips request bodies of at least GzipMinBytes
	CompressionEnabled bool
	GzipMinBytes       int

	// MaxResponseSize caps the bytes read from a response, after decompression
	MaxResponseSize int64

	// RequestTimeout bounds a single HTTP round trip
	RequestTimeout time.Duration

	// RateLimit is the sustained requests per second; zero disables throttling
	RateLimit float64
	Burst     int

	// Token is sent as a bearer token when set
	Token string

	Logger *slog.Logger
}

// DefaultClientOptions returns the client defaults
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		CompressionEnabled: true,
		GzipMinBytes:       1024,
		MaxResponseSize:    10 * 1024 * 1024,
		RequestTimeout:     30 * time.Second,
		RateLimit:          10,
		Burst:              5,
	}
}

// ClientOption is a function that configures a ClientOptions struct
type ClientOption func(*ClientOptions)

// WithClientCompression enables or disables request compression
func WithClientCompression(enabled bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.CompressionEnabled = enabled
	}
}

// WithGzipMinBytes sets the smallest request body that gets compressed
func WithGzipMinBytes(n int) ClientOption {
	return func(opts *ClientOptions) {
		opts.GzipMinBytes = n
	}
}

// WithMaxResponseSize sets the maximum allowed size of response bodies
func WithMaxResponseSize(size int64) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxResponseSize = size
	}
}

// WithClientTimeout sets the timeout for all requests
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.RequestTimeout = timeout
	}
}

// WithRateLimit throttles the client to rps requests per second
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(opts *ClientOptions) {
		opts.RateLimit = rps
		opts.Burst = burst
	}
}

// WithToken sets the bearer token
func WithToken(token string) ClientOption {
	return func(opts *ClientOptions) {
		opts.Token = token
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// ServerOptions configures the Handler
type ServerOptions struct {
	MaxRequestSize       int64
	MaxDecompressedSize  int64
	CompressionEnabled   bool
	CompressionThreshold int64
	RequestTimeout       time.Duration

	// Token, when set, must be presented as a bearer token on every route
	// except /healthz
	Token string

	Logger *slog.Logger
}

// DefaultServerOptions returns the server defaults
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		MaxRequestSize:       10 * 1024 * 1024,
		MaxDecompressedSize:  20 * 1024 * 1024,
		CompressionEnabled:   true,
		CompressionThreshold: 1024,
		RequestTimeout:       30 * time.Second,
	}
}

// ServerOption is a function that configures a ServerOptions struct
type ServerOption func(*ServerOptions)

// WithMaxRequestSize sets the maximum allowed size of incoming request bodies
func WithMaxRequestSize(size int64) ServerOption {
	return func(opts *ServerOptions) {
		opts.MaxRequestSize = size
	}
}

// WithMaxDecompressedSize sets the maximum allowed size of decompressed request bodies
func WithMaxDecompressedSize(size int64) ServerOption {
	return func(opts *ServerOptions) {
		opts.MaxDecompressedSize = size
	}
}

// WithCompression enables or disables response compression
func WithCompression(enabled bool) ServerOption {
	return func(opts *ServerOptions) {
		opts.CompressionEnabled = enabled
	}
}

// WithCompressionThreshold sets the minimum size for response compression
func WithCompressionThreshold(size int64) ServerOption {
	return func(opts *ServerOptions) {
		opts.CompressionThreshold = size
	}
}

// WithRequestTimeout sets the maximum duration for request processing
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(opts *ServerOptions) {
		opts.RequestTimeout = timeout
	}
}

// WithServerToken requires a bearer token
func WithServerToken(token string) ServerOption {
	return func(opts *ServerOptions) {
		opts.Token = token
	}
}

// WithServerLogger sets the request logger
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(opts *ServerOptions) {
		opts.Logger = l
	}
}

func applyServerOptions(opts ...ServerOption) *ServerOptions {
	options := DefaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyClientOptions(opts ...ClientOption) *ClientOptions {
	options := DefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
