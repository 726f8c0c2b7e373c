package history

import "sync"

// DefaultCapacity is the number of readings retained per channel.
const DefaultCapacity = 500

// Buffer is a fixed-capacity ring of readings kept in arrival order.
// When full, appending evicts the single oldest reading.
//
// Buffer is safe for one writer and any number of concurrent readers.
type Buffer struct {
	mu    sync.RWMutex
	ring  []Reading
	start int // index of the oldest reading
	size  int
}

// NewBuffer creates a buffer holding at most capacity readings.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{ring: make([]Reading, capacity)}
}

// Append inserts r as the newest reading.
func (b *Buffer) Append(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := (b.start + b.size) % len(b.ring)
	b.ring[end] = r

	if b.size < len(b.ring) {
		b.size++
		return
	}

	// full: the slot we just wrote was the oldest one
	b.start = (b.start + 1) % len(b.ring)
}

// Snapshot returns a copy of the readings, oldest first. The result is never nil.
func (b *Buffer) Snapshot() []Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Reading, b.size)

	n := copy(out, b.ring[b.start:min(b.start+b.size, len(b.ring))])
	copy(out[n:], b.ring[:b.size-n])

	return out
}

// Last returns the newest reading.
func (b *Buffer) Last() (Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return Reading{}, false
	}

	return b.ring[(b.start+b.size-1)%len(b.ring)], true
}

// Len returns the number of readings held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.size
}

// Cap returns the maximum number of readings held.
func (b *Buffer) Cap() int {
	return len(b.ring)
}
