package ruleset

import (
	"fmt"
)

// Evaluator combines the matching rules of a ruleset according to its
// policy. It is safe for concurrent use.
type Evaluator struct {
	matcher *Matcher
}

// NewEvaluator creates an evaluator with its own matcher.
func NewEvaluator() *Evaluator {
	return &Evaluator{matcher: NewMatcher()}
}

// NewEvaluatorWithMatcher creates an evaluator sharing a matcher and its
// pattern cache.
func NewEvaluatorWithMatcher(m *Matcher) *Evaluator {
	return &Evaluator{matcher: m}
}

// Matcher returns the matcher instance.
func (e *Evaluator) Matcher() *Matcher {
	return e.matcher
}

// RuleEvaluation records how one rule was evaluated against a target.
type RuleEvaluation struct {
	Index  int
	RuleID string
	Result *MatchResult
	Value  any
}

// First returns the value of the first matching rule.
func (e *Evaluator) First(rs Ruleset, target Target) (any, bool, error) {
	for i, rule := range rs.Rules {
		if rule.Disabled {
			continue
		}
		ok, err := e.matcher.Matches(rule, target)
		if err != nil {
			return nil, false, ruleError(rs, i, rule, err)
		}
		if ok {
			return rule.Value, true, nil
		}
	}
	return nil, false, nil
}

// All returns the values of every matching rule in rule order.
func (e *Evaluator) All(rs Ruleset, target Target) ([]any, error) {
	var values []any
	for i, rule := range rs.Rules {
		if rule.Disabled {
			continue
		}
		ok, err := e.matcher.Matches(rule, target)
		if err != nil {
			return nil, ruleError(rs, i, rule, err)
		}
		if ok {
			values = append(values, rule.Value)
		}
	}
	return values, nil
}

// DictMerge unions the dict values of every matching rule. Keys set by
// earlier rules are never overwritten; non-dict values are skipped. The
// boolean is false when no dict rule matched.
func (e *Evaluator) DictMerge(rs Ruleset, target Target) (map[string]any, bool, error) {
	values, err := e.All(rs, target)
	if err != nil {
		return nil, false, err
	}

	var merged map[string]any
	for _, v := range values {
		dict, ok := asDict(v)
		if !ok {
			continue
		}
		if merged == nil {
			merged = make(map[string]any, len(dict))
		}
		for k, val := range dict {
			if _, exists := merged[k]; !exists {
				merged[k] = val
			}
		}
	}
	return merged, merged != nil, nil
}

// Evaluate dispatches on the ruleset's policy and returns the resulting
// values: at most one for first and dict-merge, every match for all.
func (e *Evaluator) Evaluate(rs Ruleset, target Target) ([]any, error) {
	policy, err := ParsePolicy(string(rs.Policy))
	if err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", rs.Name, err)
	}

	switch policy {
	case PolicyAll:
		return e.All(rs, target)

	case PolicyDictMerge:
		merged, ok, err := e.DictMerge(rs, target)
		if err != nil || !ok {
			return nil, err
		}
		return []any{merged}, nil

	default:
		v, ok, err := e.First(rs, target)
		if err != nil || !ok {
			return nil, err
		}
		return []any{v}, nil
	}
}

// AnyTrue evaluates a boolean ruleset and reports whether any matching rule
// carries a true value.
func (e *Evaluator) AnyTrue(rs Ruleset, target Target) (bool, error) {
	for i, rule := range rs.Rules {
		if rule.Disabled || !isTrue(rule.Value) {
			continue
		}
		ok, err := e.matcher.Matches(rule, target)
		if err != nil {
			return false, ruleError(rs, i, rule, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Explain evaluates every rule of a ruleset against target and reports each
// result, including disabled and non-matching rules.
func (e *Evaluator) Explain(rs Ruleset, target Target) ([]RuleEvaluation, error) {
	evaluations := make([]RuleEvaluation, 0, len(rs.Rules))
	for i, rule := range rs.Rules {
		result, err := e.matcher.Match(rule, target)
		if err != nil {
			return nil, ruleError(rs, i, rule, err)
		}
		eval := RuleEvaluation{Index: i, RuleID: rule.ID, Result: result}
		if result.Matched {
			eval.Value = rule.Value
		}
		evaluations = append(evaluations, eval)
	}
	return evaluations, nil
}

func ruleError(rs Ruleset, index int, rule Rule, err error) error {
	if rule.ID != "" {
		return fmt.Errorf("ruleset %s rule %d (%s): %w", rs.Name, index, rule.ID, err)
	}
	return fmt.Errorf("ruleset %s rule %d: %w", rs.Name, index, err)
}

// dictValue is implemented by values that expose a dict view.
type dictValue interface {
	IsDict() bool
	Map() map[string]any
}

func asDict(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case dictValue:
		if t.IsDict() {
			return t.Map(), true
		}
	}
	return nil, false
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
