package checktable

import (
	"errors"
	"fmt"

	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/service"
)

// ErrInvalidStaticCheck is returned for a static_checks rule value that is
// not a (plugin, item, parameters) triple.
var ErrInvalidStaticCheck = errors.New("invalid static check")

// StaticCheck is the value of a static_checks rule: one enforced service.
type StaticCheck struct {
	CheckGroup string
	Plugin     string
	Item       string
	Parameters any
}

// ID returns the enforced service's ID with a normalised plugin name.
func (sc StaticCheck) ID() service.ID {
	return service.ID{Plugin: plugin.NormalizeName(sc.Plugin), Item: sc.Item}
}

// ParseStaticCheck converts a rule value into a StaticCheck. It accepts a
// StaticCheck or a [plugin, item, parameters] list; item may be nil and
// parameters may be omitted.
func ParseStaticCheck(v any) (StaticCheck, error) {
	switch t := v.(type) {
	case StaticCheck:
		if t.Plugin == "" {
			return StaticCheck{}, fmt.Errorf("%w: empty plugin name", ErrInvalidStaticCheck)
		}
		return t, nil

	case *StaticCheck:
		if t == nil {
			return StaticCheck{}, fmt.Errorf("%w: nil value", ErrInvalidStaticCheck)
		}
		return ParseStaticCheck(*t)

	case []any:
		if len(t) < 2 || len(t) > 3 {
			return StaticCheck{}, fmt.Errorf("%w: expected 2 or 3 elements, got %d", ErrInvalidStaticCheck, len(t))
		}
		name, ok := t[0].(string)
		if !ok || name == "" {
			return StaticCheck{}, fmt.Errorf("%w: plugin name must be a non-empty string", ErrInvalidStaticCheck)
		}
		sc := StaticCheck{Plugin: name}
		switch item := t[1].(type) {
		case nil:
		case string:
			sc.Item = item
		default:
			return StaticCheck{}, fmt.Errorf("%w: item of %s must be a string", ErrInvalidStaticCheck, name)
		}
		if len(t) == 3 {
			sc.Parameters = t[2]
		}
		return sc, nil

	default:
		return StaticCheck{}, fmt.Errorf("%w: unsupported value type %T", ErrInvalidStaticCheck, v)
	}
}
