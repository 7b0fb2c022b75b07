// Package worker drains the frame queue through the classifier into the store.
//
// Exactly one worker runs per stream so frames are applied in arrival order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/minerwatch/internal/adapters/repository"
	"github.com/okian/minerwatch/internal/domain/classify"
	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

// Event and Outcome are what the worker hands to observers.
type (
	Event   = model.Event
	Outcome = repository.Outcome
)

// Discard reasons reported in metrics.
const (
	reasonMalformed       = "malformed"
	reasonMissingIdentity = "missing_identity"
	reasonApply           = "apply_error"
	reasonPanic           = "panic"
)

// Classifier turns a raw frame into an event.
type Classifier interface {
	Classify(ctx context.Context, f model.Frame) (model.Event, error)
}

// Applier resolves and applies an event.
type Applier interface {
	Apply(ctx context.Context, ev model.Event) (repository.Outcome, error)
}

// Queue defines how the worker receives frames.
type Queue interface {
	Dequeue() <-chan model.Frame
	Len() int
}

// Worker processes frames in order.
type Worker interface {
	// Run starts the worker loop until the queue closes or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown waits for queued frames to drain, aborting when ctx ends.
	Shutdown(ctx context.Context) error
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Processed uint64 `json:"processed"`
	Applied   uint64 `json:"applied"`
	Buffered  uint64 `json:"buffered"`
	Ignored   uint64 `json:"ignored"`
	Discarded uint64 `json:"discarded"`
	Panics    uint64 `json:"panics"`
	LastSeq   uint64 `json:"last_seq"`
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	classifier Classifier
	applier    Applier
	name       string
	onEvent    func(Event, Outcome)

	processed atomic.Uint64
	applied   atomic.Uint64
	buffered  atomic.Uint64
	ignored   atomic.Uint64
	discarded atomic.Uint64
	panics    atomic.Uint64
	lastSeq   atomic.Uint64

	// Shutdown control
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, classifier Classifier, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		classifier: classifier,
		applier:    applier,
		name:       "worker",
		onEvent:    func(Event, Outcome) {},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	frames := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			w.process(ctx, f)
			metrics.UpdateQueueSize(w.queue.Len())
		}
	}
}

// Shutdown waits for Run to finish draining.
// The queue must be closed first, otherwise Shutdown waits for ctx.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.stopOnce.Do(func() { close(w.stop) })
		w.logger.Warn(ctx, "shutdown timed out, abandoning queued frames",
			logger.Int("queued", w.queue.Len()),
		)
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the worker counters.
func (w *InMemoryWorker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Applied:   w.applied.Load(),
		Buffered:  w.buffered.Load(),
		Ignored:   w.ignored.Load(),
		Discarded: w.discarded.Load(),
		Panics:    w.panics.Load(),
		LastSeq:   w.lastSeq.Load(),
	}
}

// process handles one frame. A failure here never stops the loop.
func (w *InMemoryWorker) process(ctx context.Context, f model.Frame) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			w.discarded.Add(1)
			metrics.RecordProcessPanic()
			metrics.RecordFrameDiscarded(reasonPanic)
			w.logger.Error(ctx, "recovered panic while processing frame",
				logger.Uint64("seq", f.Seq),
				logger.Any("panic", r),
			)
		}
		w.processed.Add(1)
		w.lastSeq.Store(f.Seq)
		metrics.RecordProcessLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ev, err := w.classifier.Classify(ctx, f)
	if err != nil {
		w.discard(ctx, f, classifyReason(err), err)
		return
	}

	outcome, err := w.applier.Apply(ctx, ev)
	if err != nil {
		w.discard(ctx, f, reasonApply, err)
		return
	}

	switch outcome {
	case repository.OutcomeApplied:
		w.applied.Add(1)
	case repository.OutcomeBuffered:
		w.buffered.Add(1)
	default:
		w.ignored.Add(1)
	}
	w.onEvent(ev, outcome)
}

func (w *InMemoryWorker) discard(ctx context.Context, f model.Frame, reason string, err error) {
	w.discarded.Add(1)
	metrics.RecordFrameDiscarded(reason)
	w.logger.Warn(ctx, "frame discarded",
		logger.Uint64("seq", f.Seq),
		logger.String("reason", reason),
		logger.Int("size", len(f.Data)),
		logger.Error(err),
	)
}

func classifyReason(err error) string {
	switch {
	case errors.Is(err, classify.ErrMalformedFrame):
		return reasonMalformed
	case errors.Is(err, classify.ErrMissingIdentity):
		return reasonMissingIdentity
	default:
		return reasonMalformed
	}
}
