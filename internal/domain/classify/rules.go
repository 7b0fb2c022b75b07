package classify

import (
	"github.com/okian/minerwatch/internal/domain/model"
)

// Wildcard matches any value on a rule axis.
const Wildcard = "*"

// Axis defaults used when the payload carries no marker.
const (
	DefaultValidity = "valid"
	UnknownPhase    = "unknown"
	DefaultSubtype  = "state"
)

// Rule maps a tag pattern to an event kind. Empty axes behave like Wildcard.
type Rule struct {
	Validity string
	Phase    string
	Subtype  string
	Kind     model.Kind
}

func (r Rule) matches(t model.Tag) bool {
	return axisMatches(r.Validity, t.Validity) &&
		axisMatches(r.Phase, t.Phase) &&
		axisMatches(r.Subtype, t.Subtype)
}

func axisMatches(pattern, value string) bool {
	return pattern == "" || pattern == Wildcard || pattern == value
}

// Marker derives the validity axis from the presence of a truthy field.
type Marker struct {
	Field    string
	Validity string
}

// DefaultRules is the tag to kind table. The first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Validity: "valid", Phase: "joining", Subtype: Wildcard, Kind: model.KindJoin},
		{Validity: "valid", Phase: "running", Subtype: Wildcard, Kind: model.KindRunning},
		{Validity: "valid", Phase: "mining", Subtype: Wildcard, Kind: model.KindMining},
		{Validity: "work", Phase: Wildcard, Subtype: "peer_hash_validation", Kind: model.KindHashValidation},
		{Validity: "work", Phase: Wildcard, Subtype: "hash_validation", Kind: model.KindHashValidation},
		{Validity: "work", Phase: Wildcard, Subtype: "peerjoin", Kind: model.KindPeerJoin},
		{Validity: "claim", Phase: UnknownPhase, Subtype: Wildcard, Kind: model.KindClaimIntent},
		{Validity: "claim", Phase: "claiming", Subtype: Wildcard, Kind: model.KindClaimIntent},
		{Validity: "valid", Phase: "claiming", Subtype: Wildcard, Kind: model.KindClaimed},
		{Validity: "valid", Phase: "expired", Subtype: Wildcard, Kind: model.KindExpired},
		{Validity: "valid", Phase: "slashing", Subtype: Wildcard, Kind: model.KindSlashed},
		{Validity: "valid", Phase: "slashed", Subtype: Wildcard, Kind: model.KindSlashed},
	}
}

// DefaultMarkers lists validity marker fields in precedence order.
func DefaultMarkers() []Marker {
	return []Marker{
		{Field: "claim", Validity: "claim"},
		{Field: "work", Validity: "work"},
		{Field: "valid", Validity: "valid"},
		{Field: "invalid", Validity: "invalid"},
	}
}
