// Package source provides a read-only byte view over the message being
// encoded or decoded: a memory-mapped file, or a fully buffered stream for
// stdin. Both forms expose one immutable full-buffer view; there is no
// chunked access.
package source

import (
	"fmt"
	"io"
)

// Source is an immutable byte sequence backing one CMS operation. A
// file-backed Source holds a read-only mapping for its lifetime; callers
// must not mutate the underlying file while the Source is open.
type Source struct {
	data   []byte
	closer func() error
}

// FromReader buffers the reader's entire content in memory. Used for stdin,
// where no mapping is possible.
func FromReader(r io.Reader) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input stream: %w", err)
	}
	return &Source{data: data}, nil
}

// Bytes returns the full message content. The returned slice is valid only
// until Close is called.
func (s *Source) Bytes() []byte {
	return s.data
}

// Len returns the message length in bytes.
func (s *Source) Len() int {
	return len(s.data)
}

// Close releases the mapping, if any. Safe to call more than once.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	s.data = nil
	return c()
}
