// Package session implements the interactive session engine: an append-only
// output accumulator, prompt discovery, command completion detection, and the
// retry/reconnect supervisor that wraps command execution. It turns the
// unstructured character stream arriving from a transport into discrete
// command results.
package session

import (
	"strings"
	"sync"
)

// Buffer is the append-only output accumulator. It behaves as a single
// growing string: content is never truncated or reordered, and a position
// observed by a reader never shrinks. All methods are safe for concurrent
// use.
type Buffer struct {
	mu   sync.RWMutex
	data strings.Builder
	sink func(chunk string)
}

// NewBuffer returns an empty accumulator.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetSink installs an optional callback invoked with every appended chunk.
// The fan-out to the sink happens here at the accumulator boundary; the sink
// never sees data out of order. A nil sink disables forwarding.
func (b *Buffer) SetSink(sink func(chunk string)) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// Append adds a chunk to the buffer. Empty chunks are ignored.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}
	b.mu.Lock()
	b.data.WriteString(chunk)
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink(chunk)
	}
}

// Len returns the current total length. Positions handed to Since are
// lengths returned by Len.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Len()
}

// Snapshot returns the full accumulated text.
func (b *Buffer) Snapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.String()
}

// Since returns the text appended after the given position. Positions out of
// range are clamped, so a caller may always recompute Since safely even if
// more data arrived concurrently: the result is never less than what existed
// at call time.
func (b *Buffer) Since(pos int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.data.String()
	if pos < 0 {
		pos = 0
	}
	if pos >= len(s) {
		return ""
	}
	return s[pos:]
}
