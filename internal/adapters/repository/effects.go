package repository

import (
	"math"

	"github.com/okian/minerwatch/internal/domain/model"
)

// effect mutates a miner for one classified event. Effects run under the store's write lock.
type effect func(m *model.Miner, ev model.Event)

// effects is the kind to effect table. Kinds missing here apply nothing.
var effects = map[model.Kind]effect{
	model.KindJoin: func(m *model.Miner, ev model.Event) {
		m.UnclaimedRewards = reward(ev)
		m.Status = model.StatusJoining
	},
	model.KindRunning: func(m *model.Miner, ev model.Event) {
		m.UnclaimedRewards = max(m.UnclaimedRewards, reward(ev))
		m.Status = model.StatusRunning
	},
	model.KindMining: func(m *model.Miner, ev model.Event) {
		m.UnclaimedRewards = max(m.UnclaimedRewards, reward(ev))
		m.Status = model.StatusMining
	},
	model.KindHashValidation: func(m *model.Miner, _ model.Event) {
		m.HashCount++
		m.Status = model.StatusWorking
	},
	model.KindPeerJoin: func(m *model.Miner, _ model.Event) {
		m.HashCount++
		m.Status = model.StatusJoining
	},
	model.KindClaimIntent: func(m *model.Miner, _ model.Event) {
		m.Status = model.StatusClaiming
	},
	model.KindClaimed: func(m *model.Miner, ev model.Event) {
		// an absent or zero reward claims the unclaimed balance
		if r := reward(ev); r > 0 {
			m.ClaimedRewards += r
		} else {
			m.ClaimedRewards += m.UnclaimedRewards
		}
		m.UnclaimedRewards = 0
		m.Status = model.StatusClaimed
		m.HasRecentClaim = true
	},
	model.KindExpired: func(m *model.Miner, _ model.Event) {
		m.UnclaimedRewards = 0
		m.Status = model.StatusExpired
	},
	model.KindSlashed: func(m *model.Miner, _ model.Event) {
		m.UnclaimedRewards = 0
		m.Status = model.StatusSlashed
	},
}

// reward returns the event reward clamped to zero; absent or non-finite counts as zero.
func reward(ev model.Event) float64 {
	if !ev.HasReward || ev.Reward < 0 || math.IsNaN(ev.Reward) || math.IsInf(ev.Reward, 0) {
		return 0
	}
	return ev.Reward
}

// applyEffect runs the effect for ev and reports whether anything was applied.
func applyEffect(m *model.Miner, ev model.Event) bool {
	fn, ok := effects[ev.Kind]
	if !ok {
		return false
	}
	fn(m, ev)
	if ev.HasBoost && !math.IsNaN(ev.Boost) && !math.IsInf(ev.Boost, 0) {
		m.LastBoost = ev.Boost
	}
	m.LastActiveAt = ev.ReceivedAt
	return true
}
