// Package queue hands raw frames from the socket reader to the stream processor.
//
// The queue is a bounded FIFO. A full queue applies backpressure to the reader
// instead of dropping frames, so arrival order and completeness are kept.
package queue

import (
	"context"
	"sync"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Queue provides blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a frame, waiting for space while the queue is full.
	// Returns ErrClosed after Close, or the context error if ctx ends first.
	Enqueue(ctx context.Context, f model.Frame) error

	// Dequeue returns the channel frames are delivered on, in enqueue order.
	// The channel is closed by Close once drained.
	Dequeue() <-chan model.Frame

	// Len returns the current number of queued frames.
	Len() int

	// Close stops accepting frames. Frames already queued stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	frames   chan model.Frame
	capacity int
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.frames = make(chan model.Frame, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a frame to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, f model.Frame) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.frames <- f:
		metrics.UpdateQueueSize(len(q.frames))
		return nil
	default:
	}

	// full: wait for the processor, a shutdown, or the caller
	metrics.RecordQueueBlocked()
	select {
	case q.frames <- f:
		metrics.UpdateQueueSize(len(q.frames))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the frame channel.
func (q *InMemoryQueue) Dequeue() <-chan model.Frame {
	return q.frames
}

// Len returns the current number of queued frames.
func (q *InMemoryQueue) Len() int {
	size := len(q.frames)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	// wake blocked producers before taking the write lock they hold shared
	q.once.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.frames)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
