package testfeed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"

	"github.com/okian/minerwatch/pkg/logger"
)

type stepKind int

const (
	stepJoin stepKind = iota
	stepRunning
	stepMining
	stepHash
	stepPeerJoin
	stepClaimIntent
	stepClaimed
	stepExpired
	stepSlashed
)

// Constants for reward generation.
const (
	maxReward      = 100.0
	maxHashes      = 4
	peerJoinChance = 5 // one in n
)

type step struct {
	kind      stepKind
	reward    float64
	hasReward bool
}

type identity int

const (
	withKey identity = iota
	withSig
	withBoth
)

// payload is the wire shape of a generated frame. A struct keeps field order stable.
type payload struct {
	Key     string  `json:"key,omitempty"`
	Sig     string  `json:"sig,omitempty"`
	Reward  any     `json:"reward,omitempty"`
	Boost   float64 `json:"boost,omitempty"`
	Phase   string  `json:"phase,omitempty"`
	State   string  `json:"state,omitempty"`
	Type    string  `json:"type,omitempty"`
	Subtype string  `json:"subtype,omitempty"`
	Work    bool    `json:"work,omitempty"`
	Claim   bool    `json:"claim,omitempty"`
}

type minerScript struct {
	key   string
	sig   string
	steps []step
	ids   []identity
}

// Generate builds a deterministic script for cfg. Frames of different miners
// are interleaved while each miner's own frames keep their order.
func Generate(ctx context.Context, cfg *Config) (*Script, error) {
	if cfg.Miners <= 0 {
		return nil, fmt.Errorf("miners must be positive, got %d", cfg.Miners)
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic test data

	miners := make([]minerScript, cfg.Miners)
	expected := make([]Expected, cfg.Miners)
	for i := range miners {
		ms, err := generateMiner(rng, cfg.SigFirstShare)
		if err != nil {
			return nil, err
		}
		miners[i] = ms
		expected[i] = simulate(ms)
	}

	var frames [][]byte
	cursor := make([]int, len(miners))
	for remaining := len(miners); remaining > 0; {
		remaining = 0
		for i := range miners {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("generation cancelled: %w", ctx.Err())
			}
			ms := &miners[i]
			if cursor[i] >= len(ms.steps) {
				continue
			}
			data, err := encodeStep(rng, ms, cursor[i])
			if err != nil {
				return nil, err
			}
			frames = append(frames, data)
			cursor[i]++
			if cursor[i] < len(ms.steps) {
				remaining++
			}
		}
	}

	frames = injectNoise(rng, cfg, miners, frames)

	logger.Get().Info(ctx, "generated feed script",
		logger.Int("miners", len(miners)),
		logger.Int("frames", len(frames)),
	)
	return &Script{Frames: frames, Expected: expected}, nil
}

func generateMiner(rng *rand.Rand, sigFirstShare float64) (minerScript, error) {
	key, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return minerScript{}, fmt.Errorf("generate key: %w", err)
	}
	sig, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return minerScript{}, fmt.Errorf("generate signature: %w", err)
	}

	ms := minerScript{key: "miner-" + key.String(), sig: "sig-" + sig.String()}
	ms.steps = append(ms.steps,
		step{kind: stepJoin, reward: reward(rng), hasReward: true},
		step{kind: stepRunning, reward: reward(rng), hasReward: true},
		step{kind: stepMining, reward: reward(rng), hasReward: rng.Intn(2) == 0},
	)
	for n := rng.Intn(maxHashes); n > 0; n-- {
		ms.steps = append(ms.steps, step{kind: stepHash})
	}
	if rng.Intn(peerJoinChance) == 0 {
		ms.steps = append(ms.steps, step{kind: stepPeerJoin})
	}
	switch rng.Intn(4) {
	case 0, 1:
		ms.steps = append(ms.steps,
			step{kind: stepClaimIntent},
			step{kind: stepClaimed, reward: reward(rng), hasReward: rng.Intn(2) == 0},
		)
	case 2:
		ms.steps = append(ms.steps, step{kind: stepExpired})
	default:
		ms.steps = append(ms.steps, step{kind: stepSlashed})
	}

	// the first frame that carries the key also carries the signature
	bind := 0
	if rng.Float64() < sigFirstShare {
		bind = 1 + rng.Intn(len(ms.steps)-1)
	}
	ms.ids = make([]identity, len(ms.steps))
	for i := range ms.ids {
		switch {
		case i < bind:
			ms.ids[i] = withSig
		case i == bind:
			ms.ids[i] = withBoth
		default:
			ms.ids[i] = identity(rng.Intn(3))
		}
	}
	return ms, nil
}

func reward(rng *rand.Rand) float64 {
	return math.Round(rng.Float64()*maxReward*100) / 100
}

// simulate applies a miner's steps in order. Buffered signature-only frames are
// replayed before the frame that binds them, so arrival order is apply order.
func simulate(ms minerScript) Expected {
	e := Expected{Key: ms.key, Signature: ms.sig, Status: "ACTIVE"}
	for _, st := range ms.steps {
		r := 0.0
		if st.hasReward && st.reward > 0 {
			r = st.reward
		}
		switch st.kind {
		case stepJoin:
			e.Unclaimed, e.Status = r, "JOINING"
		case stepRunning:
			e.Unclaimed, e.Status = math.Max(e.Unclaimed, r), "RUNNING"
		case stepMining:
			e.Unclaimed, e.Status = math.Max(e.Unclaimed, r), "MINING"
		case stepHash:
			e.HashCount++
			e.Status = "WORKING"
		case stepPeerJoin:
			e.HashCount++
			e.Status = "JOINING"
		case stepClaimIntent:
			e.Status = "CLAIMING"
		case stepClaimed:
			if r > 0 {
				e.Claimed += r
			} else {
				e.Claimed += e.Unclaimed
			}
			e.Unclaimed, e.Status, e.HasRecentClaim = 0, "CLAIMED", true
		case stepExpired:
			e.Unclaimed, e.Status = 0, "EXPIRED"
		case stepSlashed:
			e.Unclaimed, e.Status = 0, "SLASHED"
		}
	}
	return e
}

func encodeStep(rng *rand.Rand, ms *minerScript, i int) ([]byte, error) {
	st := ms.steps[i]
	var p payload

	switch ms.ids[i] {
	case withKey:
		p.Key = ms.key
	case withSig:
		p.Sig = ms.sig
	case withBoth:
		p.Key, p.Sig = ms.key, ms.sig
	}

	if st.hasReward {
		if rng.Intn(2) == 0 {
			p.Reward = st.reward
		} else {
			p.Reward = strconv.FormatFloat(st.reward, 'f', -1, 64)
		}
	}

	switch st.kind {
	case stepJoin:
		p.Phase = "joining"
	case stepRunning:
		p.State = "running"
	case stepMining:
		p.Phase = "mining"
		p.Boost = 1 + float64(rng.Intn(5))/10
	case stepHash:
		p.Work = true
		if rng.Intn(2) == 0 {
			p.Type = "hash_validation"
		} else {
			p.Subtype = "peer_hash_validation"
		}
	case stepPeerJoin:
		p.Work, p.Type = true, "peerjoin"
	case stepClaimIntent:
		p.Claim = true
	case stepClaimed:
		p.Phase = "claiming"
	case stepExpired:
		p.Phase = "expired"
	case stepSlashed:
		if rng.Intn(2) == 0 {
			p.Phase = "slashed"
		} else {
			p.Phase = "slashing"
		}
	}

	data, err := sonnet.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// injectNoise inserts frames the service must discard or ignore without
// changing any miner's final state.
func injectNoise(rng *rand.Rand, cfg *Config, miners []minerScript, frames [][]byte) [][]byte {
	insert := func(data []byte) {
		at := rng.Intn(len(frames) + 1)
		frames = append(frames, nil)
		copy(frames[at+1:], frames[at:])
		frames[at] = data
	}
	for i := 0; i < cfg.Malformed; i++ {
		insert([]byte(`{"key":"broken`))
	}
	for i := 0; i < cfg.Anonymous; i++ {
		insert([]byte(`{"phase":"running","reward":1}`))
	}
	for i := 0; i < cfg.Unknown; i++ {
		ms := miners[rng.Intn(len(miners))]
		data, _ := sonnet.Marshal(payload{Key: ms.key, Phase: "hibernating", Reward: maxReward})
		insert(data)
	}
	return frames
}
