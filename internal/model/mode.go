package model

import "strings"

// AggregationMode selects the per-cell reduction applied to Z values.
type AggregationMode string

const (
	ModeMean   AggregationMode = "mean"
	ModeMedian AggregationMode = "median"
	ModeMode   AggregationMode = "mode"
)

// AggregationModes lists every accepted mode in display order.
var AggregationModes = []AggregationMode{ModeMean, ModeMedian, ModeMode}

// ParseAggregationMode accepts exactly mean, median, or mode (case and
// surrounding whitespace are ignored). Anything else is a configuration error.
func ParseAggregationMode(s string) (AggregationMode, error) {
	m := AggregationMode(strings.ToLower(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Validate rejects modes outside the supported set.
func (m AggregationMode) Validate() error {
	switch m {
	case ModeMean, ModeMedian, ModeMode:
		return nil
	default:
		return Errorf(KindConfig, "aggregation mode", "unsupported mode %q (want mean, median or mode)", string(m))
	}
}

func (m AggregationMode) String() string { return string(m) }
