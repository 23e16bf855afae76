package binder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink is a destination for one stream of a binder.
//
// Split binders stage both streams before committing either, so a failure
// part way through leaves neither destination modified.
type Sink interface {
	Writer() (Committer, error)
}

// Committer is a staged stream. Exactly one of Commit or Discard must be
// called.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// BufferSink collects a stream in memory.
type BufferSink struct {
	data []byte
}

// Bytes returns the committed stream, or nil before Commit.
func (s *BufferSink) Bytes() []byte { return s.data }

// Writer implements Sink.
func (s *BufferSink) Writer() (Committer, error) {
	return &bufferCommitter{sink: s}, nil
}

type bufferCommitter struct {
	sink *BufferSink
	buf  bytes.Buffer
}

func (c *bufferCommitter) Write(p []byte) (int, error) { return c.buf.Write(p) }

// Commit publishes the buffered stream to the sink.
func (c *bufferCommitter) Commit() error {
	c.sink.data = c.buf.Bytes()
	return nil
}

// Discard drops the buffer.
func (c *bufferCommitter) Discard() error {
	c.buf.Reset()
	return nil
}

// FileSink writes a stream to Path, replacing any existing file atomically.
// Parent directories are created as needed.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink for path.
func NewFileSink(path string) *FileSink { return &FileSink{Path: path} }

// Writer stages the stream in a temp file next to Path.
func (s *FileSink) Writer() (Committer, error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".binder-*")
	if err != nil {
		return nil, err
	}
	return &fileCommitter{tmp: tmp, target: s.Path}, nil
}

type fileCommitter struct {
	tmp    *os.File
	target string
}

func (c *fileCommitter) Write(p []byte) (int, error) { return c.tmp.Write(p) }

// Commit renames the temp file over the target.
func (c *fileCommitter) Commit() error {
	tmpPath := c.tmp.Name()
	if err := c.tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, c.target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Discard removes the temp file.
func (c *fileCommitter) Discard() error {
	tmpPath := c.tmp.Name()
	closeErr := c.tmp.Close()
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return closeErr
	}
	return nil
}

// stage writes data to a new Committer from sink without committing it.
func stage(sink Sink, data []byte) (Committer, error) {
	c, err := sink.Writer()
	if err != nil {
		return nil, err
	}
	if _, err := c.Write(data); err != nil {
		_ = c.Discard() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return c, nil
}

// CommitPair writes a header and data stream pair, committing either only
// after both staged cleanly. It is how split binders are written; callers
// that post-process an encoded pair (for example to DCX-wrap the header)
// use it to keep the same all-or-nothing behavior.
func CommitPair(bhfSink, bdfSink Sink, bhf, bdf []byte) error {
	hc, err := stage(bhfSink, bhf)
	if err != nil {
		return fmt.Errorf("stage header stream: %w", err)
	}
	dc, err := stage(bdfSink, bdf)
	if err != nil {
		_ = hc.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("stage data stream: %w", err)
	}
	if err := hc.Commit(); err != nil {
		_ = dc.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("commit header stream: %w", err)
	}
	if err := dc.Commit(); err != nil {
		return fmt.Errorf("commit data stream: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file then renames it to target.
func writeFileAtomic(target string, data []byte) error {
	c, err := stage(NewFileSink(target), data)
	if err != nil {
		return err
	}
	return c.Commit()
}
