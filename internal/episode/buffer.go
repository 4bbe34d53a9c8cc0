// Package episode holds the in-memory buffer of freshly recorded episodes
// that the engine accumulates between flushes.
package episode

import "github.com/chirino/souvenir/internal/model"

// Buffer is a bounded, ordered list of episodes awaiting a flush to durable
// storage. It is owned exclusively by one engine and is not safe for
// concurrent use; callers must serialise their own calls.
type Buffer struct {
	items []model.Episode
}

// Push appends ep and reports the buffer's size after the append, so the
// caller can decide whether to trigger an auto-flush.
func (b *Buffer) Push(ep model.Episode) int {
	b.items = append(b.items, ep)
	return len(b.items)
}

// Drain returns the buffered episodes in insertion order and empties the
// buffer. The returned slice is safe to retain; Drain never aliases future
// pushes.
func (b *Buffer) Drain() []model.Episode {
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = nil
	return out
}

// Size reports the number of episodes currently buffered.
func (b *Buffer) Size() int {
	return len(b.items)
}
