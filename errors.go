package binder

import "github.com/meigma/binder/internal/bindertype"

// Sentinel errors re-exported from internal/bindertype.
var (
	// ErrFormatMismatch is returned when a magic check fails. It is the
	// "not this format" signal for callers probing several formats.
	ErrFormatMismatch = bindertype.ErrFormatMismatch

	// ErrCorruptData is returned when a reserved field, declared record
	// size, hash table geometry, or data range is invalid. Parsing stops at
	// the first such error and no partial container is returned.
	ErrCorruptData = bindertype.ErrCorruptData

	// ErrUnsupportedVariant is returned for flag, version, or compression
	// combinations that cannot be decoded.
	ErrUnsupportedVariant = bindertype.ErrUnsupportedVariant

	// ErrReservation is returned when a write leaves a placeholder unfilled
	// or fills one incorrectly. It indicates a bug, not bad input.
	ErrReservation = bindertype.ErrReservation

	// ErrHashBuckets is returned when no prime bucket count is found below
	// the search limit.
	ErrHashBuckets = bindertype.ErrHashBuckets

	// ErrDecompression is returned when a compressed payload cannot be
	// decoded.
	ErrDecompression = bindertype.ErrDecompression

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = bindertype.ErrSizeOverflow

	// ErrClosed is returned by a Reader after Close.
	ErrClosed = bindertype.ErrClosed
)
