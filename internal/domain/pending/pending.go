// Package pending holds events whose signature is not yet mapped to a primary key.
package pending

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/minerwatch/internal/domain/model"
)

// Default retention bounds.
const (
	DefaultMaxSignatures   = 10000
	DefaultMaxPerSignature = 256
	DefaultTTL             = 10 * time.Minute
)

// Buffer is a bounded, per-signature FIFO of classified events.
// Callers pass signatures already normalized.
type Buffer interface {
	// Add appends ev under sig and returns how many events were dropped
	// to stay within bounds.
	Add(ctx context.Context, sig string, ev model.Event) int

	// Take removes and returns the live events for sig in arrival order,
	// together with the number of expired events discarded on the way.
	Take(ctx context.Context, sig string) ([]model.Event, int)

	// Sweep drops expired events and returns how many were removed.
	Sweep(ctx context.Context) int

	Len() int
	Signatures() int
	Clear()
}

type entry struct {
	ev      model.Event
	addedAt time.Time
}

type bucket struct {
	sig     string
	entries []entry
}

// inMemoryBuffer keeps buckets in a map and their creation order in a list,
// so the oldest signature can be evicted in O(1).
type inMemoryBuffer struct {
	mu              sync.Mutex
	buckets         map[string]*list.Element
	order           *list.List // of *bucket, oldest at front
	maxSignatures   int
	maxPerSignature int
	ttl             time.Duration
	now             func() time.Time
	size            atomic.Int64
}

// NewInMemoryBuffer creates a pending buffer with configuration options.
func NewInMemoryBuffer(opts ...Option) Buffer {
	b := &inMemoryBuffer{
		maxSignatures:   DefaultMaxSignatures,
		maxPerSignature: DefaultMaxPerSignature,
		ttl:             DefaultTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.buckets = make(map[string]*list.Element)
	b.order = list.New()
	return b
}

func (b *inMemoryBuffer) Add(_ context.Context, sig string, ev model.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	el, ok := b.buckets[sig]
	if !ok {
		if b.maxSignatures > 0 {
			for b.order.Len() >= b.maxSignatures {
				dropped += b.evictOldest()
			}
		}
		el = b.order.PushBack(&bucket{sig: sig})
		b.buckets[sig] = el
	}

	bk := el.Value.(*bucket)
	bk.entries = append(bk.entries, entry{ev: ev, addedAt: b.now()})
	b.size.Add(1)

	if b.maxPerSignature > 0 && len(bk.entries) > b.maxPerSignature {
		over := len(bk.entries) - b.maxPerSignature
		bk.entries = append(bk.entries[:0:0], bk.entries[over:]...)
		b.size.Add(int64(-over))
		dropped += over
	}
	return dropped
}

func (b *inMemoryBuffer) Take(_ context.Context, sig string) ([]model.Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.buckets[sig]
	if !ok {
		return nil, 0
	}
	bk := el.Value.(*bucket)
	b.remove(el)

	cutoff, expiring := b.cutoff()
	out := make([]model.Event, 0, len(bk.entries))
	expired := 0
	for _, e := range bk.entries {
		if expiring && e.addedAt.Before(cutoff) {
			expired++
			continue
		}
		out = append(out, e.ev)
	}
	return out, expired
}

func (b *inMemoryBuffer) Sweep(_ context.Context) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff, expiring := b.cutoff()
	if !expiring {
		return 0
	}

	removed := 0
	for el := b.order.Front(); el != nil; {
		next := el.Next()
		bk := el.Value.(*bucket)

		// entries are in arrival order, so the expired ones form a prefix
		n := 0
		for n < len(bk.entries) && bk.entries[n].addedAt.Before(cutoff) {
			n++
		}
		if n == len(bk.entries) {
			removed += n
			b.remove(el)
		} else if n > 0 {
			bk.entries = append(bk.entries[:0:0], bk.entries[n:]...)
			b.size.Add(int64(-n))
			removed += n
		}
		el = next
	}
	return removed
}

// Len returns the number of buffered events.
func (b *inMemoryBuffer) Len() int {
	return int(b.size.Load())
}

// Signatures returns the number of signatures with buffered events.
func (b *inMemoryBuffer) Signatures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

func (b *inMemoryBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[string]*list.Element)
	b.order.Init()
	b.size.Store(0)
}

// evictOldest drops the oldest signature and returns how many events went with it.
// Must be called with b.mu held.
func (b *inMemoryBuffer) evictOldest() int {
	el := b.order.Front()
	if el == nil {
		return 0
	}
	n := len(el.Value.(*bucket).entries)
	b.remove(el)
	return n
}

// remove must be called with b.mu held.
func (b *inMemoryBuffer) remove(el *list.Element) {
	bk := el.Value.(*bucket)
	delete(b.buckets, bk.sig)
	b.order.Remove(el)
	b.size.Add(int64(-len(bk.entries)))
}

func (b *inMemoryBuffer) cutoff() (time.Time, bool) {
	if b.ttl <= 0 {
		return time.Time{}, false
	}
	return b.now().Add(-b.ttl), true
}
