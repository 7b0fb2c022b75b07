// Package classify turns raw feed frames into classified events.
//
// A tag is read from the payload on three axes (validity, phase, subtype) and
// mapped to a model.Kind through an ordered rule table. Tags no rule matches
// become model.KindUnrecognized and are reported, never dropped.
package classify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

// Payload field names.
const (
	fieldKey      = "key"
	fieldSig      = "sig"
	fieldReward   = "reward"
	fieldBoost    = "boost"
	fieldValidity = "validity"
	fieldPhase    = "phase"
	fieldState    = "state"
	fieldSubtype  = "subtype"
	fieldType     = "type"
)

// Classifier is stateless apart from its tables and is safe for concurrent use.
type Classifier struct {
	rules          []Rule
	markers        []Marker
	onUnrecognized UnrecognizedFunc
	logger         logger.Logger
}

// New creates a classifier with the default tables.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:          DefaultRules(),
		markers:        DefaultMarkers(),
		onUnrecognized: func(context.Context, model.Tag) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("classifier")
	}
	return c
}

// Classify parses one frame. It returns ErrMalformedFrame or ErrMissingIdentity
// (wrapped) for frames that must be discarded.
func (c *Classifier) Classify(ctx context.Context, f model.Frame) (model.Event, error) {
	var payload map[string]any
	if err := sonnet.Unmarshal(f.Data, &payload); err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if payload == nil {
		return model.Event{}, fmt.Errorf("%w: payload is not an object", ErrMalformedFrame)
	}

	ev := model.Event{
		Seq:        f.Seq,
		Key:        identity(payload[fieldKey]),
		Signature:  identity(payload[fieldSig]),
		ReceivedAt: f.ReceivedAt,
	}
	if ev.Key == "" && ev.Signature == "" {
		return model.Event{}, ErrMissingIdentity
	}

	ev.Reward, ev.HasReward = number(payload[fieldReward])
	ev.Boost, ev.HasBoost = number(payload[fieldBoost])
	ev.Tag = c.tag(payload)
	ev.Kind = c.match(ev.Tag)

	if ev.Kind == model.KindUnrecognized {
		c.logger.Warn(ctx, "unrecognized classification",
			logger.String("tag", ev.Tag.String()),
			logger.Uint64("seq", ev.Seq),
		)
		metrics.RecordEventUnrecognized(ev.Tag.Validity, ev.Tag.Phase)
		c.onUnrecognized(ctx, ev.Tag)
	}
	metrics.RecordEventClassified(ev.Kind.String())

	return ev, nil
}

// Match returns the kind selected for tag by the rule table.
func (c *Classifier) Match(tag model.Tag) model.Kind {
	return c.match(tag)
}

func (c *Classifier) match(tag model.Tag) model.Kind {
	for _, r := range c.rules {
		if r.matches(tag) {
			return r.Kind
		}
	}
	return model.KindUnrecognized
}

func (c *Classifier) tag(p map[string]any) model.Tag {
	t := model.Tag{
		Validity: marker(p[fieldValidity]),
		Phase:    firstMarker(p, fieldPhase, fieldState),
		Subtype:  firstMarker(p, fieldSubtype, fieldType),
	}
	if t.Validity == "" {
		for _, m := range c.markers {
			if truthy(p[m.Field]) {
				t.Validity = m.Validity
				break
			}
		}
	}
	if t.Validity == "" {
		t.Validity = DefaultValidity
	}
	if t.Phase == "" {
		t.Phase = UnknownPhase
	}
	if t.Subtype == "" {
		t.Subtype = DefaultSubtype
	}
	return t
}

func firstMarker(p map[string]any, fields ...string) string {
	for _, f := range fields {
		if v := marker(p[f]); v != "" {
			return v
		}
	}
	return ""
}

func marker(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func identity(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// number reads a JSON number or numeric string. NaN and infinities count as absent.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s != "" && s != "false" && s != "0"
	default:
		// objects and arrays count as present
		return true
	}
}
