// Package service wires the feed connection, the classifier and the miner
// store into one pipeline and exposes read access for the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/minerwatch/internal/adapters/feed"
	eventqueue "github.com/okian/minerwatch/internal/adapters/mq/queue"
	"github.com/okian/minerwatch/internal/adapters/mq/worker"
	"github.com/okian/minerwatch/internal/adapters/repository"
	"github.com/okian/minerwatch/internal/domain/classify"
	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/internal/domain/pending"
	"github.com/okian/minerwatch/internal/domain/types"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// Service owns the miner store and the ingestion pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.MinerStore
	classifier *classify.Classifier
	frameQueue *eventqueue.InMemoryQueue
	worker     *worker.InMemoryWorker
	feed       *feed.Manager

	// Configuration
	queueSize              int
	feedURL                string
	feedCredential         string
	heartbeatInterval      time.Duration
	heartbeatTimeout       time.Duration
	reconnectMin           time.Duration
	reconnectMax           time.Duration
	activityWindow         time.Duration
	pendingMaxSignatures   int
	pendingMaxPerSignature int
	pendingTTL             time.Duration
	sweepInterval          time.Duration
	onUnrecognized         func(context.Context, model.Tag)

	// State
	started bool
	stopCh  chan struct{}
	bgDone  chan struct{}

	// Logging
	logger logger.Logger
}

// New constructs a Service. The store exists from here on and survives restarts.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:              10000,
		heartbeatInterval:      15 * time.Second,
		heartbeatTimeout:       45 * time.Second,
		reconnectMin:           500 * time.Millisecond,
		reconnectMax:           30 * time.Second,
		activityWindow:         time.Minute,
		pendingMaxSignatures:   pending.DefaultMaxSignatures,
		pendingMaxPerSignature: pending.DefaultMaxPerSignature,
		pendingTTL:             pending.DefaultTTL,
		sweepInterval:          30 * time.Second,
		onUnrecognized:         func(context.Context, model.Tag) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.store = repository.NewMinerStore(
		repository.WithPendingBuffer(pending.NewInMemoryBuffer(
			pending.WithMaxSignatures(s.pendingMaxSignatures),
			pending.WithMaxPerSignature(s.pendingMaxPerSignature),
			pending.WithTTL(s.pendingTTL),
		)),
	)
	s.classifier = classify.New(classify.WithUnrecognizedHook(s.onUnrecognized))
	return s
}

// Start builds the queue, worker and feed connection and starts them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting miner feed service...")

	s.frameQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.worker = worker.NewInMemoryWorker(s.frameQueue, s.classifier, s.store)
	go s.worker.Run(context.WithoutCancel(ctx))

	if s.feedURL != "" {
		s.feed = feed.NewManager(s.feedURL, s.feedCredential, s.handleFrame,
			feed.WithHeartbeat(s.heartbeatInterval, s.heartbeatTimeout),
			feed.WithReconnect(s.reconnectMin, s.reconnectMax),
			feed.WithActivityWindow(s.activityWindow),
		)
		if err := s.feed.Start(ctx); err != nil {
			_ = s.frameQueue.Close()
			s.feed = nil
			return err
		}
	} else {
		s.logger.Warn(ctx, "no feed endpoint configured, accepting frames through Ingest only")
	}

	s.stopCh = make(chan struct{})
	s.bgDone = make(chan struct{})
	go s.background(s.stopCh, s.bgDone)

	s.started = true
	s.logger.Info(ctx, "miner feed service started",
		logger.Int("queueSize", s.queueSize),
		logger.Bool("feed", s.feed != nil),
	)
	return nil
}

// Stop shuts down the feed first, then drains the queue through the worker.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping miner feed service...")

	if s.feed != nil {
		if err := s.feed.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "feed shutdown failed", logger.Error(err))
		}
	}
	_ = s.frameQueue.Close()
	if err := s.worker.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker shutdown failed", logger.Error(err))
	}

	close(s.stopCh)
	<-s.bgDone

	s.started = false
	s.logger.Info(ctx, "miner feed service stopped")
}

// handleFrame is the feed handler. It blocks while the queue is full.
func (s *Service) handleFrame(ctx context.Context, f model.Frame) {
	if err := s.enqueue(ctx, f); err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "frame not queued", logger.Uint64("seq", f.Seq), logger.Error(err))
	}
}

// Ingest submits a raw frame for processing, waiting while the queue is full.
func (s *Service) Ingest(ctx context.Context, f model.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	return s.frameQueue.Enqueue(ctx, f)
}

// enqueue skips the service lock; the feed only runs while the service is started.
func (s *Service) enqueue(ctx context.Context, f model.Frame) error {
	return s.frameQueue.Enqueue(ctx, f)
}

// Lookup returns the miner with the given primary key or signature.
func (s *Service) Lookup(ctx context.Context, id string) (types.MinerView, error) {
	m, err := s.store.Lookup(ctx, id)
	if err != nil {
		return types.MinerView{}, err
	}
	return types.FromMiner(m), nil
}

// Miners returns every tracked miner ordered by primary key.
func (s *Service) Miners(ctx context.Context) []types.MinerView {
	all := s.store.Miners(ctx)
	out := make([]types.MinerView, len(all))
	for i, m := range all {
		out[i] = types.FromMiner(m)
	}
	return out
}

// Clear drops every record, mapping and pending event.
func (s *Service) Clear(ctx context.Context) {
	s.store.Clear(ctx)
}

// Connected reports whether the feed socket is up. False when no feed is configured.
func (s *Service) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed != nil && s.feed.Connected()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":   s.started,
		"queueSize": s.queueSize,
		"miners":    s.store.Count(ctx),
		"pending":   s.store.PendingLen(ctx),
	}

	if s.started {
		stats["queueLength"] = s.frameQueue.Len()
		stats["worker"] = s.worker.Stats()
		if s.feed != nil {
			stats["feed"] = s.feed.Stats()
		}
	}

	return stats
}

// background sweeps expired pending events and refreshes process gauges.
func (s *Service) background(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.store.Sweep(ctx)

			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			metrics.UpdateSystemMemoryUsage(ms.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
