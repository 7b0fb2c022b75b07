// Package model contains domain models passed between layers.
package model

import "time"

// Frame is one raw message read from the feed.
type Frame struct {
	Seq        uint64    // per-process arrival order
	Data       []byte    // raw payload
	ReceivedAt time.Time // receipt timestamp, attached before parsing
}

// Tag is the (validity, phase, subtype) triple derived from a payload.
type Tag struct {
	Validity string
	Phase    string
	Subtype  string
}

// String renders the tag as validity/phase/subtype.
func (t Tag) String() string {
	return t.Validity + "/" + t.Phase + "/" + t.Subtype
}

// Kind is the semantic event type selected by a Tag.
type Kind int

// Event kinds. KindUnrecognized is the fallback for tags no rule matches.
const (
	KindUnrecognized Kind = iota
	KindJoin
	KindRunning
	KindMining
	KindHashValidation
	KindPeerJoin
	KindClaimIntent
	KindClaimed
	KindExpired
	KindSlashed
)

var kindNames = [...]string{
	KindUnrecognized:   "unrecognized",
	KindJoin:           "join",
	KindRunning:        "running",
	KindMining:         "mining",
	KindHashValidation: "hash_validation",
	KindPeerJoin:       "peer_join",
	KindClaimIntent:    "claim_intent",
	KindClaimed:        "claimed",
	KindExpired:        "expired",
	KindSlashed:        "slashed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnrecognized]
	}
	return kindNames[k]
}

// Event is a classified feed message. At least one of Key or Signature is set.
type Event struct {
	Seq        uint64
	Key        string // participant identifier, as received
	Signature  string // secondary identifier, as received
	Reward     float64
	HasReward  bool
	Boost      float64
	HasBoost   bool
	ReceivedAt time.Time
	Tag        Tag
	Kind       Kind
}
