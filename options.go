package binder

import (
	"log/slog"

	"github.com/meigma/binder/internal/dcx"
)

const (
	// DefaultMaxFileSize is the default maximum decompressed file size (1GB).
	DefaultMaxFileSize = 1 << 30

	// DefaultMaxDecoderMemory is the default maximum zstd decoder memory (256MB).
	DefaultMaxDecoderMemory = 256 << 20
)

// config holds settings shared by readers and writers.
type config struct {
	logger           *slog.Logger
	maxFileSize      uint64
	maxDecoderMemory uint64
}

// Option configures reading and writing.
type Option func(*config)

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxFileSize limits the stored and decompressed size of a single file.
// Set to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(c *config) {
		c.maxFileSize = limit
	}
}

// WithMaxDecoderMemory limits the memory a zstd decoder may allocate.
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(c *config) {
		c.maxDecoderMemory = limit
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		maxFileSize:      DefaultMaxFileSize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *config) codec() *dcx.Codec {
	return dcx.New(
		dcx.WithMaxSize(c.maxFileSize),
		dcx.WithMaxDecoderMemory(c.maxDecoderMemory),
	)
}
