package events

import (
	"errors"
	"sync"
)

// ErrSinkClosed is returned when publishing to a closed sink.
var ErrSinkClosed = errors.New("events: sink closed")

// DefaultBufferSize is used when NewSink is given a non-positive size.
const DefaultBufferSize = 1024

// Sink accepts entries from many concurrent producers and hands them to a
// single consumer. Entries from one producer arrive in publish order; there is
// no ordering between producers.
type Sink struct {
	ch     chan Entry
	mu     sync.RWMutex
	closed bool
}

// NewSink creates a sink buffering up to size entries.
func NewSink(size int) *Sink {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Sink{ch: make(chan Entry, size)}
}

// Publish appends an entry, blocking while the buffer is full. Publish does not
// take a context: a record for a call that already happened is always kept.
func (s *Sink) Publish(e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.ch <- e
	return nil
}

// Entries returns the channel the consumer ranges over. It is closed by Close.
func (s *Sink) Entries() <-chan Entry {
	return s.ch
}

// Close stops accepting entries. Entries already published stay readable.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
