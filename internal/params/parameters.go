// Package params models check parameters and their time-specific layering.
package params

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind tells which shape a Parameters value has.
type Kind int

const (
	// KindNone means no parameters at all.
	KindNone Kind = iota
	// KindDict is a mapping from parameter name to value.
	KindDict
	// KindScalar is a legacy tuple of values.
	KindScalar
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDict:
		return "dict"
	case KindScalar:
		return "scalar"
	default:
		return "none"
	}
}

// Parameters is a tagged union of the parameter shapes a check can carry.
// The zero value is KindNone.
type Parameters struct {
	kind   Kind
	dict   map[string]any
	scalar []any
}

// None returns empty (absent) parameters.
func None() Parameters {
	return Parameters{}
}

// Dict wraps a mapping. A nil map yields an empty dict, not None.
func Dict(m map[string]any) Parameters {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Parameters{kind: KindDict, dict: cp}
}

// Scalar wraps a legacy tuple.
func Scalar(values ...any) Parameters {
	cp := make([]any, len(values))
	copy(cp, values)
	return Parameters{kind: KindScalar, scalar: cp}
}

// FromAny converts a decoded YAML/JSON value into Parameters.
func FromAny(v any) (Parameters, error) {
	switch t := v.(type) {
	case nil:
		return None(), nil
	case Parameters:
		return t, nil
	case map[string]any:
		return Dict(t), nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = val
		}
		return Dict(m), nil
	case []any:
		return Scalar(t...), nil
	default:
		return Scalar(t), nil
	}
}

// Kind returns the shape of p.
func (p Parameters) Kind() Kind { return p.kind }

// IsNone reports whether p carries no parameters.
func (p Parameters) IsNone() bool { return p.kind == KindNone }

// IsDict reports whether p is dict-shaped.
func (p Parameters) IsDict() bool { return p.kind == KindDict }

// Map returns a copy of the dict values, or nil if p is not a dict.
func (p Parameters) Map() map[string]any {
	if p.kind != KindDict {
		return nil
	}
	cp := make(map[string]any, len(p.dict))
	for k, v := range p.dict {
		cp[k] = v
	}
	return cp
}

// Values returns a copy of the scalar tuple, or nil if p is not scalar.
func (p Parameters) Values() []any {
	if p.kind != KindScalar {
		return nil
	}
	cp := make([]any, len(p.scalar))
	copy(cp, p.scalar)
	return cp
}

// Get returns a dict value by key.
func (p Parameters) Get(key string) (any, bool) {
	if p.kind != KindDict {
		return nil, false
	}
	v, ok := p.dict[key]
	return v, ok
}

// Keys returns the sorted dict keys.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p.dict))
	for k := range p.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeMissing returns p with the keys of other that p does not define.
// Only dict/dict pairs merge; in every other case p is returned unchanged.
func (p Parameters) MergeMissing(other Parameters) Parameters {
	if p.kind != KindDict || other.kind != KindDict {
		return p
	}
	merged := p.Map()
	for k, v := range other.dict {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return Parameters{kind: KindDict, dict: merged}
}

// Update returns p with every key of other set over it, the way discovered
// parameters are laid over plugin defaults. A None on either side yields the
// other side; a scalar other replaces p.
func (p Parameters) Update(other Parameters) Parameters {
	switch {
	case other.kind == KindNone:
		return p
	case p.kind == KindNone:
		return other
	case p.kind == KindDict && other.kind == KindDict:
		merged := p.Map()
		for k, v := range other.dict {
			merged[k] = v
		}
		return Parameters{kind: KindDict, dict: merged}
	default:
		return other
	}
}

// Any returns the plain Go value: map[string]any, []any or nil.
func (p Parameters) Any() any {
	switch p.kind {
	case KindDict:
		return p.Map()
	case KindScalar:
		return p.Values()
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (p Parameters) String() string {
	return fmt.Sprintf("%s%v", p.kind, p.Any())
}

// MarshalJSON encodes dicts as objects, scalars as arrays and None as null.
func (p Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
