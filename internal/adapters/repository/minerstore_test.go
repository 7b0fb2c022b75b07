package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/internal/domain/pending"
	"github.com/okian/minerwatch/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
	m.Run()
}

// floatEqual compares two float64 values with a small tolerance for floating-point precision
func floatEqual(a, b float64) bool {
	const tolerance = 1e-10
	return math.Abs(a-b) < tolerance
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type evOpt func(*model.Event)

func withReward(r float64) evOpt {
	return func(e *model.Event) { e.Reward, e.HasReward = r, true }
}

func withBoost(b float64) evOpt {
	return func(e *model.Event) { e.Boost, e.HasBoost = b, true }
}

func withSeq(seq uint64) evOpt {
	return func(e *model.Event) {
		e.Seq = seq
		e.ReceivedAt = t0.Add(time.Duration(seq) * time.Second)
	}
}

func event(key, sig string, kind model.Kind, opts ...evOpt) model.Event {
	e := model.Event{Key: key, Signature: sig, Kind: kind, ReceivedAt: t0}
	for _, o := range opts {
		o(&e)
	}
	return e
}

func mustApply(t *testing.T, s *MinerStore, ev model.Event, want Outcome) {
	t.Helper()
	got, err := s.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected outcome %s, got %s", want, got)
	}
}

func mustLookup(t *testing.T, s *MinerStore, id string) model.Miner {
	t.Helper()
	m, err := s.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("lookup %q: unexpected error: %v", id, err)
	}
	return m
}

func TestMinerStore_Lifecycle(t *testing.T) {
	s := NewMinerStore()

	mustApply(t, s, event("m1", "", model.KindJoin, withReward(10)), OutcomeApplied)
	mustApply(t, s, event("m1", "", model.KindRunning, withReward(7)), OutcomeApplied)

	m := mustLookup(t, s, "m1")
	if !floatEqual(m.UnclaimedRewards, 10) {
		t.Errorf("expected unclaimed 10 after running(7), got %f", m.UnclaimedRewards)
	}
	if m.Status != model.StatusRunning {
		t.Errorf("expected RUNNING, got %s", m.Status)
	}

	mustApply(t, s, event("m1", "", model.KindClaimed), OutcomeApplied)

	m = mustLookup(t, s, "m1")
	if m.UnclaimedRewards != 0 {
		t.Errorf("expected unclaimed 0, got %f", m.UnclaimedRewards)
	}
	if !floatEqual(m.ClaimedRewards, 10) {
		t.Errorf("expected claimed 10, got %f", m.ClaimedRewards)
	}
	if m.Status != model.StatusClaimed {
		t.Errorf("expected CLAIMED, got %s", m.Status)
	}
	if !m.HasRecentClaim {
		t.Error("expected recent claim flag")
	}
}

func TestMinerStore_NewRecordDefaults(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("Miner-X", "", model.KindClaimIntent), OutcomeApplied)

	m := mustLookup(t, s, "miner-x")
	if m.PrimaryKey != "Miner-X" {
		t.Errorf("expected primary key as received, got %q", m.PrimaryKey)
	}
	if m.Status != model.StatusClaiming {
		t.Errorf("expected CLAIMING, got %s", m.Status)
	}

	mustApply(t, s, event("fresh", "", model.KindUnrecognized), OutcomeIgnored)
	m = mustLookup(t, s, "fresh")
	if m.Status != model.StatusActive {
		t.Errorf("expected ACTIVE for a record with no applied effect, got %s", m.Status)
	}
	if !m.LastActiveAt.IsZero() {
		t.Errorf("expected zero last active time, got %v", m.LastActiveAt)
	}
}

func TestMinerStore_RunningKeepsMaximum(t *testing.T) {
	s := NewMinerStore()
	rewards := []float64{3, 9, 4, 9.5, 0, 1}
	best := 0.0
	for i, r := range rewards {
		kind := model.KindRunning
		if i%2 == 1 {
			kind = model.KindMining
		}
		mustApply(t, s, event("k", "", kind, withReward(r)), OutcomeApplied)
		best = math.Max(best, r)

		m := mustLookup(t, s, "k")
		if !floatEqual(m.UnclaimedRewards, best) {
			t.Fatalf("step %d: expected unclaimed %f, got %f", i, best, m.UnclaimedRewards)
		}
	}
	if m := mustLookup(t, s, "k"); m.Status != model.StatusRunning {
		t.Errorf("expected RUNNING after last running event, got %s", m.Status)
	}
}

func TestMinerStore_ClaimWithReward(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("k", "", model.KindJoin, withReward(10)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindClaimed, withReward(4)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindJoin, withReward(2)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindClaimed, withReward(0)), OutcomeApplied)

	m := mustLookup(t, s, "k")
	if !floatEqual(m.ClaimedRewards, 6) {
		t.Errorf("expected claimed 4 + fallback 2, got %f", m.ClaimedRewards)
	}
	if m.UnclaimedRewards != 0 {
		t.Errorf("expected unclaimed 0, got %f", m.UnclaimedRewards)
	}
}

func TestMinerStore_HashCountMonotonic(t *testing.T) {
	s := NewMinerStore()
	kinds := []model.Kind{
		model.KindHashValidation, model.KindJoin, model.KindPeerJoin, model.KindExpired,
		model.KindHashValidation, model.KindClaimed, model.KindUnrecognized, model.KindSlashed,
	}
	var prev uint64
	for i, k := range kinds {
		_, _ = s.Apply(context.Background(), event("k", "", k, withReward(1)))
		m := mustLookup(t, s, "k")
		if m.HashCount < prev {
			t.Fatalf("step %d: hash count went from %d to %d", i, prev, m.HashCount)
		}
		prev = m.HashCount
	}
	if prev != 3 {
		t.Errorf("expected hash count 3, got %d", prev)
	}
	if m := mustLookup(t, s, "k"); m.Status != model.StatusSlashed || m.UnclaimedRewards != 0 {
		t.Errorf("expected SLASHED with no unclaimed rewards, got %s / %f", m.Status, m.UnclaimedRewards)
	}
}

func TestMinerStore_WorkStatuses(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("k", "", model.KindHashValidation), OutcomeApplied)
	if m := mustLookup(t, s, "k"); m.Status != model.StatusWorking {
		t.Errorf("expected WORKING, got %s", m.Status)
	}
	mustApply(t, s, event("k", "", model.KindPeerJoin), OutcomeApplied)
	if m := mustLookup(t, s, "k"); m.Status != model.StatusJoining {
		t.Errorf("expected JOINING, got %s", m.Status)
	}
}

func TestMinerStore_NegativeRewardClamped(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("k", "", model.KindJoin, withReward(-5)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindClaimed, withReward(-1)), OutcomeApplied)

	m := mustLookup(t, s, "k")
	if m.UnclaimedRewards < 0 || m.ClaimedRewards < 0 {
		t.Errorf("balances must stay non-negative, got %f / %f", m.UnclaimedRewards, m.ClaimedRewards)
	}
}

func TestMinerStore_NonFiniteValuesIgnored(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("k", "", model.KindJoin, withReward(2), withBoost(1.25), withSeq(1)), OutcomeApplied)

	for i, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		mustApply(t, s, event("k", "", model.KindRunning, withReward(v), withBoost(v), withSeq(uint64(i+2))), OutcomeApplied)

		m := mustLookup(t, s, "k")
		if math.IsInf(m.UnclaimedRewards, 0) || math.IsNaN(m.UnclaimedRewards) {
			t.Fatalf("unclaimed must stay finite after reward %v, got %f", v, m.UnclaimedRewards)
		}
		if m.LastBoost != 1.25 {
			t.Fatalf("boost %v must not replace last boost, got %f", v, m.LastBoost)
		}
	}
}

func TestMinerStore_BoostAndActivity(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("k", "", model.KindMining, withReward(1), withBoost(1.5), withSeq(3)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindMining, withSeq(5)), OutcomeApplied)
	mustApply(t, s, event("k", "", model.KindUnrecognized, withBoost(9), withSeq(9)), OutcomeIgnored)

	m := mustLookup(t, s, "k")
	if m.LastBoost != 1.5 {
		t.Errorf("expected last boost 1.5, got %f", m.LastBoost)
	}
	if !m.LastActiveAt.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("expected last active at seq 5, got %v", m.LastActiveAt)
	}
}

func TestMinerStore_SignatureBinding(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("A", "s1", model.KindJoin, withReward(1)), OutcomeApplied)
	mustApply(t, s, event("", "s1", model.KindRunning, withReward(5)), OutcomeApplied)

	byKey := mustLookup(t, s, "a")
	bySig := mustLookup(t, s, "S1")
	if byKey != bySig {
		t.Errorf("expected identical records, got %+v and %+v", byKey, bySig)
	}
	if !floatEqual(byKey.UnclaimedRewards, 5) {
		t.Errorf("expected unclaimed 5, got %f", byKey.UnclaimedRewards)
	}
	if byKey.Signature != "s1" {
		t.Errorf("expected signature s1, got %q", byKey.Signature)
	}
	if c := s.Count(context.Background()); c != 1 {
		t.Errorf("expected 1 record, got %d", c)
	}
}

func TestMinerStore_PendingReplay(t *testing.T) {
	s := NewMinerStore()
	ctx := context.Background()

	mustApply(t, s, event("", "sig-9", model.KindJoin, withReward(4), withSeq(1)), OutcomeBuffered)
	mustApply(t, s, event("", "sig-9", model.KindRunning, withReward(6), withSeq(2)), OutcomeBuffered)
	mustApply(t, s, event("", "sig-9", model.KindHashValidation, withSeq(3)), OutcomeBuffered)

	if _, err := s.Lookup(ctx, "sig-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before the key is known, got %v", err)
	}
	if c := s.Count(ctx); c != 0 {
		t.Fatalf("buffered events must not create records, got %d", c)
	}
	if n := s.PendingLen(ctx); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}

	mustApply(t, s, event("M9", "sig-9", model.KindMining, withReward(2), withSeq(4)), OutcomeApplied)

	m := mustLookup(t, s, "sig-9")
	if m.PrimaryKey != "M9" {
		t.Errorf("expected M9, got %q", m.PrimaryKey)
	}
	// join(4) -> running max(4,6) -> hash -> mining max(6,2)
	if !floatEqual(m.UnclaimedRewards, 6) {
		t.Errorf("expected unclaimed 6, got %f", m.UnclaimedRewards)
	}
	if m.HashCount != 1 {
		t.Errorf("expected hash count 1, got %d", m.HashCount)
	}
	if m.Status != model.StatusMining {
		t.Errorf("expected the establishing event applied last, got %s", m.Status)
	}
	if n := s.PendingLen(ctx); n != 0 {
		t.Errorf("expected empty pending buffer, got %d", n)
	}

	// a later key event with the same signature must not replay anything again
	mustApply(t, s, event("M9", "sig-9", model.KindRunning, withSeq(5)), OutcomeApplied)
	if m := mustLookup(t, s, "M9"); m.HashCount != 1 {
		t.Errorf("expected no second replay, hash count %d", m.HashCount)
	}
}

func TestMinerStore_PendingReplayOrder(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("", "s", model.KindJoin, withReward(3)), OutcomeBuffered)
	mustApply(t, s, event("", "s", model.KindClaimed), OutcomeBuffered)
	mustApply(t, s, event("", "s", model.KindJoin, withReward(8)), OutcomeBuffered)
	mustApply(t, s, event("k", "s", model.KindUnrecognized), OutcomeIgnored)

	m := mustLookup(t, s, "k")
	if !floatEqual(m.ClaimedRewards, 3) || !floatEqual(m.UnclaimedRewards, 8) {
		t.Errorf("replay out of order: claimed %f unclaimed %f", m.ClaimedRewards, m.UnclaimedRewards)
	}
	if m.Status != model.StatusJoining {
		t.Errorf("expected JOINING, got %s", m.Status)
	}
}

func TestMinerStore_UnrecognizedSignatureOnlyIgnored(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("", "s", model.KindUnrecognized), OutcomeIgnored)
	if n := s.PendingLen(context.Background()); n != 0 {
		t.Errorf("expected nothing buffered, got %d", n)
	}
}

func TestMinerStore_SignatureConflict(t *testing.T) {
	var conflicts []string
	s := NewMinerStore(WithConflictHook(func(sig, bound, claimed string) {
		conflicts = append(conflicts, fmt.Sprintf("%s:%s->%s", sig, bound, claimed))
	}))

	mustApply(t, s, event("A", "s1", model.KindJoin, withReward(1)), OutcomeApplied)
	mustApply(t, s, event("B", "s1", model.KindJoin, withReward(2)), OutcomeApplied)

	if len(conflicts) != 1 || conflicts[0] != "s1:a->b" {
		t.Fatalf("expected one conflict, got %v", conflicts)
	}
	if m := mustLookup(t, s, "s1"); m.PrimaryKey != "A" {
		t.Errorf("signature must stay bound to A, got %q", m.PrimaryKey)
	}
	if m := mustLookup(t, s, "B"); !floatEqual(m.UnclaimedRewards, 2) || m.Signature != "" {
		t.Errorf("event must still apply to B without taking the signature, got %+v", m)
	}
}

func TestMinerStore_SecondSignature(t *testing.T) {
	s := NewMinerStore()
	mustApply(t, s, event("A", "s1", model.KindJoin), OutcomeApplied)
	mustApply(t, s, event("", "s2", model.KindRunning, withReward(4)), OutcomeBuffered)
	mustApply(t, s, event("A", "s2", model.KindHashValidation), OutcomeApplied)

	m := mustLookup(t, s, "s2")
	if m.PrimaryKey != "A" || m.Signature != "s1" {
		t.Errorf("expected first signature kept on A, got %+v", m)
	}
	if !floatEqual(m.UnclaimedRewards, 4) {
		t.Errorf("expected replayed running reward, got %f", m.UnclaimedRewards)
	}
}

func TestMinerStore_MissingIdentity(t *testing.T) {
	s := NewMinerStore()
	out, err := s.Apply(context.Background(), event(" ", "", model.KindJoin))
	if !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("expected ErrMissingIdentity, got %v", err)
	}
	if out != OutcomeIgnored {
		t.Errorf("expected ignored, got %s", out)
	}
}

func TestMinerStore_MinersAndClear(t *testing.T) {
	s := NewMinerStore()
	ctx := context.Background()
	for _, k := range []string{"charlie", "Alpha", "bravo"} {
		mustApply(t, s, event(k, "sig-"+k, model.KindJoin), OutcomeApplied)
	}
	mustApply(t, s, event("", "orphan", model.KindJoin), OutcomeBuffered)

	all := s.Miners(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 miners, got %d", len(all))
	}
	if all[0].PrimaryKey != "Alpha" || all[1].PrimaryKey != "bravo" || all[2].PrimaryKey != "charlie" {
		t.Errorf("expected sorted by key, got %s %s %s", all[0].PrimaryKey, all[1].PrimaryKey, all[2].PrimaryKey)
	}

	// returned records are copies
	all[0].ClaimedRewards = 99
	if m := mustLookup(t, s, "alpha"); m.ClaimedRewards != 0 {
		t.Error("Miners must return copies")
	}

	s.Clear(ctx)
	if c := s.Count(ctx); c != 0 {
		t.Errorf("expected 0 after clear, got %d", c)
	}
	if n := s.PendingLen(ctx); n != 0 {
		t.Errorf("expected no pending after clear, got %d", n)
	}
	if _, err := s.Lookup(ctx, "sig-alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected mappings cleared, got %v", err)
	}
}

func TestMinerStore_SweepExpiresPending(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	s := NewMinerStore(WithPendingBuffer(pending.NewInMemoryBuffer(
		pending.WithTTL(time.Minute),
		pending.WithClock(clock),
	)))
	ctx := context.Background()

	mustApply(t, s, event("", "s", model.KindJoin, withReward(5)), OutcomeBuffered)
	now = now.Add(2 * time.Minute)

	if n := s.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	mustApply(t, s, event("k", "s", model.KindRunning, withReward(1)), OutcomeApplied)
	if m := mustLookup(t, s, "k"); m.UnclaimedRewards != 1 {
		t.Errorf("expired event must not be replayed, got unclaimed %f", m.UnclaimedRewards)
	}
}

func TestMinerStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMinerStore()
	numGoroutines := 10
	numUpdates := 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				key := fmt.Sprintf("miner%d", id)
				if _, err := s.Apply(ctx, event(key, "", model.KindHashValidation)); err != nil {
					t.Errorf("goroutine %d: unexpected error: %v", id, err)
				}
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_, _ = s.Lookup(ctx, fmt.Sprintf("miner%d", id))
				_ = s.Miners(ctx)
			}
		}(i)
	}
	wg.Wait()

	if count := s.Count(ctx); count != numGoroutines {
		t.Errorf("expected count %d, got %d", numGoroutines, count)
	}
	for i := 0; i < numGoroutines; i++ {
		if m := mustLookup(t, s, fmt.Sprintf("miner%d", i)); m.HashCount != uint64(numUpdates) {
			t.Errorf("miner%d: expected hash count %d, got %d", i, numUpdates, m.HashCount)
		}
	}
}

func BenchmarkMinerStore_Apply(b *testing.B) {
	ctx := context.Background()
	s := NewMinerStore()
	const numMiners = 10_000

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("miner_%d", i%numMiners)
		_, _ = s.Apply(ctx, event(key, "sig_"+key, model.KindRunning, withReward(float64(i%100))))
	}
}

func BenchmarkMinerStore_MixedLoad(b *testing.B) {
	ctx := context.Background()
	s := NewMinerStore()
	const numMiners = 10_000
	for i := 0; i < numMiners; i++ {
		key := fmt.Sprintf("miner_%d", i)
		_, _ = s.Apply(ctx, event(key, "sig_"+key, model.KindJoin, withReward(1)))
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("miner_%d", i%numMiners)
			// 30% writes, 70% lookups by signature
			if i%10 < 3 {
				_, _ = s.Apply(ctx, event(key, "", model.KindHashValidation))
			} else {
				_, _ = s.Lookup(ctx, "sig_"+key)
			}
			i++
		}
	})
}
