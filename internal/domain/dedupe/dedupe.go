// Package dedupe tracks keys already seen during a run, such as personnel
// appearing under several units or assignments already handed to a worker.
package dedupe

import (
	"container/list"
	"context"
	"strings"
	"sync"
)

// Deduper records seen keys to ensure at-most-once handling.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it can be handled again, e.g. after an
	// enqueue failure.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key folds a display value into a comparison key: trimmed, lower-cased and
// with inner whitespace collapsed, so "Doe,  Jane" and "doe, jane" match.
func Key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// inMemoryDeduper keeps keys in a map. When maxSize > 0 the oldest key is
// evicted once the limit is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int
}

// NewInMemoryDeduper creates an in-memory deduper. It is unbounded unless
// WithMaxSize is given.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:  make(map[string]*list.Element),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

// Size returns the current number of keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
