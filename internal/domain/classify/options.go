package classify

import (
	"context"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/logger"
)

// UnrecognizedFunc observes tags that matched no rule.
type UnrecognizedFunc func(ctx context.Context, tag model.Tag)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithRules appends rules after the defaults, or ahead of them when prepend is set.
func WithRules(prepend bool, rules ...Rule) Option {
	return func(c *Classifier) {
		if prepend {
			c.rules = append(append([]Rule{}, rules...), c.rules...)
			return
		}
		c.rules = append(c.rules, rules...)
	}
}

// WithMarkers replaces the validity marker table.
func WithMarkers(markers ...Marker) Option {
	return func(c *Classifier) {
		if len(markers) > 0 {
			c.markers = markers
		}
	}
}

// WithUnrecognizedHook registers the observer for unrecognized tags.
func WithUnrecognizedHook(fn UnrecognizedFunc) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.onUnrecognized = fn
		}
	}
}

// WithLogger sets a custom logger for the classifier.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}
