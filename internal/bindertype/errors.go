// Package bindertype defines shared types used across the binder package and
// its internal packages. This avoids circular imports between binder and
// internal/binio or internal/dcx.
package bindertype

import "errors"

// Sentinel errors for binder operations.
var (
	// ErrFormatMismatch is returned when a magic or probe check fails.
	// Callers probing several formats treat it as "not this format".
	ErrFormatMismatch = errors.New("binder: format mismatch")

	// ErrCorruptData is returned when a reserved field, declared size, or
	// hash table geometry does not match what the format requires.
	ErrCorruptData = errors.New("binder: corrupt data")

	// ErrUnsupportedVariant is returned for flag, version, or compression
	// combinations this package does not decode.
	ErrUnsupportedVariant = errors.New("binder: unsupported variant")

	// ErrReservation is returned when a forward-reference placeholder is
	// filled twice, filled without being reserved, or left unfilled.
	ErrReservation = errors.New("binder: reservation misuse")

	// ErrHashBuckets is returned when no prime bucket count exists below the
	// search limit.
	ErrHashBuckets = errors.New("binder: hash bucket count not found")

	// ErrDecompression is returned when decompression fails.
	ErrDecompression = errors.New("binder: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("binder: size overflow")

	// ErrClosed is returned when a reader is used after Close.
	ErrClosed = errors.New("binder: reader closed")
)
