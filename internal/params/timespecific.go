package params

import (
	"errors"
	"fmt"
)

const (
	// Keys of the time-specific value encoding used in rule values.
	keyDefaultValue = "tp_default_value"
	keyValues       = "tp_values"
)

// ErrInvalidTimespecificValue is returned for a malformed tp_values encoding.
var ErrInvalidTimespecificValue = errors.New("invalid time-specific value")

// ActiveFunc reports whether a time period is active at the moment being
// evaluated.
type ActiveFunc func(timePeriod string) bool

// AlwaysActive treats every time period as active.
func AlwaysActive(string) bool { return true }

// NeverActive treats every time period as inactive.
func NeverActive(string) bool { return false }

// TimePeriodValue overrides a layer's default while TimePeriod is active.
type TimePeriodValue struct {
	TimePeriod string     `json:"timePeriod"`
	Value      Parameters `json:"value"`
}

// TimespecificParameterSet is one parameter layer: an unconditional default
// plus ordered time period overrides.
type TimespecificParameterSet struct {
	Default          Parameters        `json:"default"`
	TimePeriodValues []TimePeriodValue `json:"timePeriodValues,omitempty"`
}

// NewSet builds a layer.
func NewSet(def Parameters, overrides ...TimePeriodValue) TimespecificParameterSet {
	var tpv []TimePeriodValue
	if len(overrides) > 0 {
		tpv = make([]TimePeriodValue, len(overrides))
		copy(tpv, overrides)
	}
	return TimespecificParameterSet{Default: def, TimePeriodValues: tpv}
}

// SetFromParameters builds a layer without time period overrides.
func SetFromParameters(p Parameters) TimespecificParameterSet {
	return NewSet(p)
}

// SetFromValue builds a layer from a raw rule value. A dict of the form
// {"tp_default_value": v, "tp_values": [[period, v], ...]} becomes a layer
// with overrides; anything else becomes a plain default.
func SetFromValue(v any) (TimespecificParameterSet, error) {
	p, err := FromAny(v)
	if err != nil {
		return TimespecificParameterSet{}, err
	}
	if !p.IsDict() {
		return SetFromParameters(p), nil
	}
	rawDefault, hasDefault := p.Get(keyDefaultValue)
	rawValues, hasValues := p.Get(keyValues)
	if !hasDefault || !hasValues {
		return SetFromParameters(p), nil
	}

	def, err := FromAny(rawDefault)
	if err != nil {
		return TimespecificParameterSet{}, err
	}
	entries, ok := rawValues.([]any)
	if !ok {
		return TimespecificParameterSet{}, fmt.Errorf("%w: tp_values must be a list", ErrInvalidTimespecificValue)
	}

	overrides := make([]TimePeriodValue, 0, len(entries))
	for i, entry := range entries {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			return TimespecificParameterSet{}, fmt.Errorf("%w: tp_values[%d] must be a [period, value] pair", ErrInvalidTimespecificValue, i)
		}
		period, ok := pair[0].(string)
		if !ok || period == "" {
			return TimespecificParameterSet{}, fmt.Errorf("%w: tp_values[%d] has no time period", ErrInvalidTimespecificValue, i)
		}
		value, err := FromAny(pair[1])
		if err != nil {
			return TimespecificParameterSet{}, err
		}
		overrides = append(overrides, TimePeriodValue{TimePeriod: period, Value: value})
	}
	return NewSet(def, overrides...), nil
}

// IsConstant reports whether the layer has no time period overrides.
func (s TimespecificParameterSet) IsConstant() bool {
	return len(s.TimePeriodValues) == 0
}

// Evaluate picks the layer's value. The first override whose period is active
// wins; for dict values, later active overrides and then the default fill in
// keys the winner does not set. Without an active override the default is
// returned.
func (s TimespecificParameterSet) Evaluate(isActive ActiveFunc) Parameters {
	var result Parameters
	selected := false
	for _, tpv := range s.TimePeriodValues {
		if !isActive(tpv.TimePeriod) {
			continue
		}
		if !selected {
			result = tpv.Value
			selected = true
			if !result.IsDict() {
				return result
			}
			continue
		}
		result = result.MergeMissing(tpv.Value)
	}
	if !selected {
		return s.Default
	}
	return result.MergeMissing(s.Default)
}

// TimespecificParameters is an ordered sequence of layers, most authoritative
// first. The order is fixed at construction.
type TimespecificParameters struct {
	entries []TimespecificParameterSet
}

// NewTimespecific builds the layer sequence.
func NewTimespecific(sets ...TimespecificParameterSet) TimespecificParameters {
	if len(sets) == 0 {
		return TimespecificParameters{}
	}
	entries := make([]TimespecificParameterSet, len(sets))
	copy(entries, sets)
	return TimespecificParameters{entries: entries}
}

// Entries returns a copy of the layers.
func (t TimespecificParameters) Entries() []TimespecificParameterSet {
	if len(t.entries) == 0 {
		return nil
	}
	cp := make([]TimespecificParameterSet, len(t.entries))
	copy(cp, t.entries)
	return cp
}

// Len returns the number of layers.
func (t TimespecificParameters) Len() int { return len(t.entries) }

// IsEmpty reports whether there are no layers.
func (t TimespecificParameters) IsEmpty() bool { return len(t.entries) == 0 }

// IsConstant reports whether no layer depends on a time period.
func (t TimespecificParameters) IsConstant() bool {
	for _, e := range t.entries {
		if !e.IsConstant() {
			return false
		}
	}
	return true
}

// Evaluate resolves the layers against the active time periods. The first
// layer yielding a value is authoritative. A dict result collects missing keys
// from later dict layers; a scalar result is returned as-is. The boolean is
// false when no layer yields anything.
func (t TimespecificParameters) Evaluate(isActive ActiveFunc) (Parameters, bool) {
	var result Parameters
	found := false
	for _, entry := range t.entries {
		value := entry.Evaluate(isActive)
		if value.IsNone() {
			continue
		}
		if !found {
			if !value.IsDict() {
				return value, true
			}
			result = value
			found = true
			continue
		}
		result = result.MergeMissing(value)
	}
	return result, found
}

// EvaluateOr resolves the layers and falls back to def when nothing applies.
func (t TimespecificParameters) EvaluateOr(isActive ActiveFunc, def Parameters) Parameters {
	if p, ok := t.Evaluate(isActive); ok {
		return p
	}
	return def
}
