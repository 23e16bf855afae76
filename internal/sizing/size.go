// Package sizing provides safe size arithmetic and conversions for on-disk
// offsets and lengths.
package sizing

import (
	"io"
	"math"
)

// ToInt converts an int64 read from a stream to int, returning overflowErr if
// it is negative or does not fit.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || uint64(size) > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// AddInt64 adds two non-negative int64 values, returning (result, false) on
// overflow or negative input.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// InRange reports whether [off, off+n) lies within a source of the given size.
func InRange(off, n, size int64) bool {
	end, ok := AddInt64(off, n)
	return ok && end <= size
}

// Align rounds pos up to the next multiple of align. align must be a power
// of two.
func Align(pos, align int64) int64 {
	return (pos + align - 1) &^ (align - 1)
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
// A maxSize of 0 disables the limit.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize == 0 {
		return io.ReadAll(r)
	}
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
