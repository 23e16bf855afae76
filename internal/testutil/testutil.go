// Package testutil provides byte sources and fixture helpers shared by the
// binder tests.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data []byte
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// CountingByteSource wraps a byte source and counts reads and bytes read.
type CountingByteSource struct {
	src interface {
		io.ReaderAt
		Size() int64
	}
	reads atomic.Int64
	bytes atomic.Int64
}

// NewCountingByteSource wraps data in a counting source.
func NewCountingByteSource(data []byte) *CountingByteSource {
	return &CountingByteSource{src: NewMockByteSource(data)}
}

// ReadAt forwards to the wrapped source and records the request.
func (c *CountingByteSource) ReadAt(p []byte, off int64) (int, error) {
	c.reads.Add(1)
	n, err := c.src.ReadAt(p, off)
	c.bytes.Add(int64(n))
	return n, err
}

// Size returns the size of the wrapped source.
func (c *CountingByteSource) Size() int64 { return c.src.Size() }

// Reads returns the number of ReadAt calls.
func (c *CountingByteSource) Reads() int64 { return c.reads.Load() }

// BytesRead returns the total number of bytes returned by ReadAt.
func (c *CountingByteSource) BytesRead() int64 { return c.bytes.Load() }

// Reset zeroes the counters.
func (c *CountingByteSource) Reset() {
	c.reads.Store(0)
	c.bytes.Store(0)
}

// WriteFile writes data to name under dir and returns the full path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ListDir returns the names of the entries in dir, failing the test on error.
func ListDir(tb testing.TB, dir string) []string {
	tb.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		tb.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
