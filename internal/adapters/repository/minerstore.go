package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/internal/domain/pending"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

// MinerStore is the single writer of miner records. It resolves each event to a
// primary key, buffering signature-only events until the key is learned.
//
// Records are indexed by the lower-cased primary key; signatures are indexed
// lower-cased too and, once bound, never move to another key.
type MinerStore struct {
	mu         sync.RWMutex
	miners     map[string]*model.Miner // normalized key -> record
	signatures map[string]string       // normalized signature -> normalized key
	pending    pending.Buffer
	logger     logger.Logger
	onConflict func(sig, boundKey, claimedKey string)
}

var _ Store = (*MinerStore)(nil)

// NewMinerStore creates an empty store.
func NewMinerStore(opts ...Option) *MinerStore {
	s := &MinerStore{
		miners:     make(map[string]*model.Miner),
		signatures: make(map[string]string),
		onConflict: func(string, string, string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pending == nil {
		s.pending = pending.NewInMemoryBuffer()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("store")
	}
	return s
}

// Apply resolves ev and applies its effect.
//
// A key on the event creates or confirms the record, and a new signature on the
// same event is bound to it. Binding a signature replays its buffered events, in
// arrival order, before ev itself. An event with only an unbound signature is
// buffered without touching any record.
func (s *MinerStore) Apply(ctx context.Context, ev model.Event) (Outcome, error) {
	key := model.NormalizeID(ev.Key)
	sig := model.NormalizeID(ev.Signature)
	if key == "" && sig == "" {
		return OutcomeIgnored, ErrMissingIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hasKey := key != ""
	if !hasKey {
		bound, ok := s.signatures[sig]
		if !ok {
			return s.buffer(ctx, sig, ev), nil
		}
		key = bound
	}

	m := s.ensure(key, ev.Key)
	if hasKey && sig != "" {
		s.bind(ctx, m, key, sig, ev)
	}

	s.publishGauges()
	if applyEffect(m, ev) {
		return OutcomeApplied, nil
	}
	return OutcomeIgnored, nil
}

// ensure returns the record for key, creating it if absent. Must hold s.mu.
func (s *MinerStore) ensure(key, display string) *model.Miner {
	if m, ok := s.miners[key]; ok {
		return m
	}
	display = strings.TrimSpace(display)
	if display == "" {
		display = key
	}
	m := &model.Miner{PrimaryKey: display, Status: model.StatusActive}
	s.miners[key] = m
	return m
}

// bind maps sig to key when it is new, replaying anything buffered under it.
// Must hold s.mu.
func (s *MinerStore) bind(ctx context.Context, m *model.Miner, key, sig string, ev model.Event) {
	if bound, ok := s.signatures[sig]; ok {
		if bound != key {
			s.logger.Warn(ctx, "signature remap rejected",
				logger.String("signature", sig),
				logger.String("bound_key", bound),
				logger.String("event_key", key),
				logger.Error(ErrSignatureConflict),
			)
			metrics.RecordSignatureConflict()
			s.onConflict(sig, bound, key)
		}
		return
	}

	s.signatures[sig] = key
	if m.Signature == "" {
		m.Signature = strings.TrimSpace(ev.Signature)
	}

	buffered, expired := s.pending.Take(ctx, sig)
	if expired > 0 {
		metrics.RecordEventsEvicted("ttl", expired)
	}
	for _, b := range buffered {
		applyEffect(m, b)
	}
	if len(buffered) > 0 {
		metrics.RecordEventsReplayed(len(buffered))
		s.logger.Debug(ctx, "replayed buffered events",
			logger.String("signature", sig),
			logger.String("key", key),
			logger.Int("count", len(buffered)),
		)
	}
}

// buffer parks a signature-only event. Must hold s.mu.
func (s *MinerStore) buffer(ctx context.Context, sig string, ev model.Event) Outcome {
	if ev.Kind == model.KindUnrecognized {
		return OutcomeIgnored
	}
	if dropped := s.pending.Add(ctx, sig, ev); dropped > 0 {
		metrics.RecordEventsEvicted("capacity", dropped)
		s.logger.Warn(ctx, "pending buffer full, dropped oldest events",
			logger.String("signature", sig),
			logger.Int("dropped", dropped),
		)
	}
	metrics.RecordEventBuffered()
	metrics.UpdatePendingEvents(s.pending.Len())
	return OutcomeBuffered
}

// publishGauges must hold s.mu.
func (s *MinerStore) publishGauges() {
	metrics.UpdateMinersTotal(len(s.miners))
	metrics.UpdateSignaturesTotal(len(s.signatures))
	metrics.UpdatePendingEvents(s.pending.Len())
}

// Lookup finds a miner by primary key, then by signature.
func (s *MinerStore) Lookup(_ context.Context, id string) (model.Miner, error) {
	norm := model.NormalizeID(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.miners[norm]; ok {
		return *m, nil
	}
	if key, ok := s.signatures[norm]; ok {
		if m, ok := s.miners[key]; ok {
			return *m, nil
		}
	}
	return model.Miner{}, ErrNotFound
}

// Miners returns a copy of every record ordered by normalized primary key.
func (s *MinerStore) Miners(_ context.Context) []model.Miner {
	s.mu.RLock()
	keys := make([]string, 0, len(s.miners))
	for k := range s.miners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.Miner, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.miners[k])
	}
	s.mu.RUnlock()
	return out
}

// Count returns the number of miners tracked.
func (s *MinerStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.miners)
}

// PendingLen returns the number of buffered events.
func (s *MinerStore) PendingLen(_ context.Context) int {
	return s.pending.Len()
}

// Sweep drops expired pending events.
func (s *MinerStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	n := s.pending.Sweep(ctx)
	if n > 0 {
		metrics.RecordEventsEvicted("ttl", n)
		s.logger.Info(ctx, "expired pending events",
			logger.Int("count", n),
			logger.Duration("took", time.Since(start)),
		)
	}
	metrics.UpdatePendingEvents(s.pending.Len())
	return n
}

// Clear resets all records, mappings and buffers in one step.
func (s *MinerStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.miners = make(map[string]*model.Miner)
	s.signatures = make(map[string]string)
	s.pending.Clear()
	s.publishGauges()
	s.logger.Info(ctx, "store cleared")
}
