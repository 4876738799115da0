// Package gate decides whether a scored batch may be promoted.
package gate

import (
	"github.com/okian/bikeflow/internal/domain/scoring"
)

// DefaultPoorShareThreshold is the largest POOR share admitted by default.
const DefaultPoorShareThreshold = 0.20

// Option configures a QualityGate.
type Option func(*QualityGate)

// WithThreshold sets the threshold used when no per-source override matches.
func WithThreshold(threshold float64) Option {
	return func(g *QualityGate) {
		if threshold >= 0 && threshold <= 1 {
			g.threshold = threshold
		}
	}
}

// WithSourceThresholds sets per-source thresholds.
func WithSourceThresholds(overrides map[string]float64) Option {
	return func(g *QualityGate) {
		for src, v := range overrides {
			if v >= 0 && v <= 1 {
				g.overrides[src] = v
			}
		}
	}
}

// QualityGate admits a batch when its POOR share is at or below the threshold.
// It is a pure function of already computed metrics.
type QualityGate struct {
	threshold float64
	overrides map[string]float64
}

// New creates a gate with the default policy.
func New(opts ...Option) *QualityGate {
	g := &QualityGate{
		threshold: DefaultPoorShareThreshold,
		overrides: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Threshold returns the threshold applied to batches of the given source.
func (g *QualityGate) Threshold(sourceType string) float64 {
	if v, ok := g.overrides[sourceType]; ok {
		return v
	}
	return g.threshold
}

// Admit reports whether the batch may be promoted.
func (g *QualityGate) Admit(m scoring.Metrics) bool {
	return m.PoorShare <= g.Threshold(m.SourceType)
}
