// Package bodystore provides a memory-bounded accumulation buffer that
// spills to a temp file once past a threshold. It backs the ResponseParser's
// body accumulation, adapted from the teacher's pkg/buffer.Buffer (originally
// written to back response/raw bodies for the old byte-in/byte-out Client).
package bodystore

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/duskline/rawhttp/internal/herr"
)

// DefaultMemoryLimit is the default memory threshold before spilling to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Store accumulates bytes in memory, spilling to a temporary file once past
// the configured threshold so a pathological response body cannot exhaust
// process memory.
type Store struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// New creates a Store with the given memory limit (DefaultMemoryLimit if <= 0).
func New(limit int64) *Store {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Store{limit: limit}
}

// Write appends p, spilling to disk once the in-memory buffer would exceed
// the configured limit.
func (s *Store) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, herr.NewIOError("write", "store is closed", nil)
	}

	s.size += int64(len(p))

	if s.file == nil && int64(s.buf.Len()+len(p)) <= s.limit {
		return s.buf.Write(p)
	}

	if s.file == nil {
		tmp, err := os.CreateTemp("", "rawhttp-body-*.tmp")
		if err != nil {
			return 0, herr.NewIOError("write", "creating temp file", err)
		}
		s.file = tmp
		s.path = tmp.Name()
		if s.buf.Len() > 0 {
			if _, err := tmp.Write(s.buf.Bytes()); err != nil {
				s.closeLocked()
				return 0, herr.NewIOError("write", "writing to temp file", err)
			}
		}
		s.buf.Reset()
	}

	n, err := s.file.Write(p)
	if err != nil {
		return n, herr.NewIOError("write", "writing to temp file", err)
	}
	return n, nil
}

// Bytes returns the in-memory payload, or nil if the store has spilled to disk.
func (s *Store) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}
	return s.buf.Bytes()
}

// Size returns the total number of bytes written so far.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Spilled reports whether the store has spilled to disk.
func (s *Store) Spilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// Reader returns a fresh reader over the stored data.
func (s *Store) Reader() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, herr.NewIOError("read", "store is closed", nil)
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return nil, herr.NewIOError("read", "syncing temp file", err)
		}
		f, err := os.Open(s.path)
		if err != nil {
			return nil, herr.NewIOError("read", "opening temp file", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(s.buf.Bytes())), nil
}

// Close releases any backing temp file. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		err := s.file.Close()
		if removeErr := os.Remove(s.path); removeErr != nil && err == nil {
			err = herr.NewIOError("close", "removing temp file", removeErr)
		}
		s.file = nil
		s.path = ""
		return err
	}
	return nil
}
