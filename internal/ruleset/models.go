// Package ruleset provides rule conditions, rule matching and ruleset
// evaluation policies.
package ruleset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kneutral-org/checkconfig/internal/host"
)

var (
	// ErrInvalidPattern is returned when a service or host name pattern does
	// not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrUnknownPolicy is returned for a match policy that is not supported.
	ErrUnknownPolicy = errors.New("unknown match policy")
	// ErrInvalidRule is returned when a rule is malformed.
	ErrInvalidRule = errors.New("invalid rule")
)

// Policy selects how matching rules of a ruleset are combined.
type Policy string

const (
	// PolicyFirst stops at the first matching rule.
	PolicyFirst Policy = "first"
	// PolicyAll collects every matching rule's value in order.
	PolicyAll Policy = "all"
	// PolicyDictMerge unions the dict values of all matching rules; earlier
	// rules shadow later ones.
	PolicyDictMerge Policy = "dict-merge"
)

// ParsePolicy parses a policy name. An empty name means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyAll:
		return PolicyAll, nil
	case PolicyDictMerge, "dict_merge", "merge":
		return PolicyDictMerge, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// TagPredicate constrains the value of one tag group.
type TagPredicate struct {
	// OneOf lists accepted tag values. Empty matches any present tag.
	OneOf []string
	// Negate inverts the predicate.
	Negate bool
}

// TagIs matches hosts whose tag equals value.
func TagIs(value string) TagPredicate {
	return TagPredicate{OneOf: []string{value}}
}

// TagIsNot matches hosts whose tag differs from value or is missing.
func TagIsNot(value string) TagPredicate {
	return TagPredicate{OneOf: []string{value}, Negate: true}
}

// TagIn matches hosts whose tag is one of values.
func TagIn(values ...string) TagPredicate {
	return TagPredicate{OneOf: values}
}

// Condition is the tagged match structure of a rule. Nil or empty fields do
// not constrain their dimension.
type Condition struct {
	HostNames       []string
	HostNamesNegate bool
	HostTags        map[string]TagPredicate
	HostLabels      map[string]string
	// Services are regular expressions anchored at the start of the subject.
	// Any of them matching satisfies the dimension.
	Services       []string
	ServicesNegate bool
}

// HasServiceCondition reports whether the condition constrains the service.
func (c Condition) HasServiceCondition() bool {
	return len(c.Services) > 0
}

// Rule is one entry of a ruleset.
type Rule struct {
	ID        string
	Condition Condition
	Value     any
	Disabled  bool
	Comment   string
}

// Ruleset is an ordered list of rules with a match policy. Rule order is the
// primary tie-break.
type Ruleset struct {
	Name   string
	Policy Policy
	Rules  []Rule
}

// Len returns the number of rules.
func (rs Ruleset) Len() int { return len(rs.Rules) }

// Target is what a rule is matched against: a host and, for service
// rulesets, the subject text (service description or item).
type Target struct {
	Host       host.Identity
	Service    string
	HasService bool
}

// ForHost returns a host-only target.
func ForHost(id host.Identity) Target {
	return Target{Host: id}
}

// ForService returns a target for a service subject on a host.
func ForService(id host.Identity, subject string) Target {
	return Target{Host: id, Service: subject, HasService: true}
}

// Collection maps ruleset names to rulesets.
type Collection struct {
	rulesets map[string]Ruleset
}

// NewCollection builds a collection from rulesets. Later rulesets replace
// earlier ones of the same name.
func NewCollection(rulesets ...Ruleset) *Collection {
	c := &Collection{rulesets: make(map[string]Ruleset, len(rulesets))}
	for _, rs := range rulesets {
		c.rulesets[rs.Name] = rs
	}
	return c
}

// Ruleset returns a ruleset by name.
func (c *Collection) Ruleset(name string) (Ruleset, bool) {
	rs, ok := c.rulesets[name]
	return rs, ok
}

// Names returns the names of all rulesets.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.rulesets))
	for name := range c.rulesets {
		names = append(names, name)
	}
	return names
}

// Validate checks every ruleset in the collection.
func (c *Collection) Validate() error {
	for name, rs := range c.rulesets {
		if err := Validate(rs); err != nil {
			return fmt.Errorf("ruleset %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks that a ruleset's policy is known and that every service
// pattern and host name regex compiles.
func Validate(rs Ruleset) error {
	if _, err := ParsePolicy(string(rs.Policy)); err != nil {
		return err
	}
	for i, rule := range rs.Rules {
		for _, name := range rule.Condition.HostNames {
			pattern, ok := strings.CutPrefix(name, hostRegexPrefix)
			if !ok {
				continue
			}
			if _, err := compilePattern(pattern); err != nil {
				return fmt.Errorf("rule %d (%s): host name: %w", i, rule.ID, err)
			}
		}
		for _, pattern := range rule.Condition.Services {
			if _, err := compilePattern(pattern); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
			}
		}
		for group := range rule.Condition.HostTags {
			if group == "" {
				return fmt.Errorf("%w: rule %d (%s) has an empty tag group", ErrInvalidRule, i, rule.ID)
			}
		}
	}
	return nil
}
