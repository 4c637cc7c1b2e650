package ruleset

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// hostRegexPrefix marks a host name condition entry as a regular expression.
const hostRegexPrefix = "~"

// MatchType indicates which dimension decided a match result.
type MatchType string

const (
	// MatchTypeHostName indicates the host name allow-list decided.
	MatchTypeHostName MatchType = "host_name"
	// MatchTypeHostTag indicates a tag predicate decided.
	MatchTypeHostTag MatchType = "host_tag"
	// MatchTypeHostLabel indicates a host label predicate decided.
	MatchTypeHostLabel MatchType = "host_label"
	// MatchTypeService indicates the service pattern list decided.
	MatchTypeService MatchType = "service"
	// MatchTypeDisabled indicates the rule is disabled.
	MatchTypeDisabled MatchType = "disabled"
	// MatchTypeUnconditional indicates no dimension rejected the target.
	MatchTypeUnconditional MatchType = "unconditional"
)

// MatchResult contains the result of matching a target against a rule.
type MatchResult struct {
	Matched   bool
	MatchType MatchType
	Reason    string
}

// Matcher checks whether rules apply to hosts and services. It is safe for
// concurrent use.
type Matcher struct {
	mu sync.RWMutex
	// compiledRegexCache caches compiled patterns by source text
	compiledRegexCache map[string]*regexp.Regexp
}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		compiledRegexCache: make(map[string]*regexp.Regexp),
	}
}

// Matches reports whether rule applies to target.
func (m *Matcher) Matches(rule Rule, target Target) (bool, error) {
	result, err := m.Match(rule, target)
	if err != nil {
		return false, err
	}
	return result.Matched, nil
}

// Match checks rule against target and explains the outcome.
func (m *Matcher) Match(rule Rule, target Target) (*MatchResult, error) {
	if rule.Disabled {
		return &MatchResult{MatchType: MatchTypeDisabled, Reason: "rule is disabled"}, nil
	}

	cond := rule.Condition

	if len(cond.HostNames) > 0 {
		ok, err := m.matchHostNames(cond.HostNames, target.Host.Name)
		if err != nil {
			return nil, err
		}
		if ok == cond.HostNamesNegate {
			return &MatchResult{
				MatchType: MatchTypeHostName,
				Reason:    fmt.Sprintf("host %s not selected by host name condition", target.Host.Name),
			}, nil
		}
	}

	for group, pred := range cond.HostTags {
		value, present := target.Host.Tag(group)
		if !matchTag(pred, value, present) {
			return &MatchResult{
				MatchType: MatchTypeHostTag,
				Reason:    fmt.Sprintf("tag group %s does not satisfy condition", group),
			}, nil
		}
	}

	for name, expected := range cond.HostLabels {
		if value, ok := target.Host.Label(name); !ok || value != expected {
			return &MatchResult{
				MatchType: MatchTypeHostLabel,
				Reason:    fmt.Sprintf("host label %s does not equal %q", name, expected),
			}, nil
		}
	}

	if cond.HasServiceCondition() {
		if !target.HasService {
			return &MatchResult{
				MatchType: MatchTypeService,
				Reason:    "service condition cannot match a host-only target",
			}, nil
		}
		ok, err := m.matchServices(cond.Services, target.Service)
		if err != nil {
			return nil, err
		}
		if ok == cond.ServicesNegate {
			return &MatchResult{
				MatchType: MatchTypeService,
				Reason:    fmt.Sprintf("service %q not selected by service condition", target.Service),
			}, nil
		}
	}

	return &MatchResult{
		Matched:   true,
		MatchType: MatchTypeUnconditional,
		Reason:    "all conditions satisfied",
	}, nil
}

// matchHostNames checks a host name against an allow-list. Entries starting
// with "~" are regular expressions anchored at the start.
func (m *Matcher) matchHostNames(names []string, hostName string) (bool, error) {
	for _, name := range names {
		if pattern, ok := strings.CutPrefix(name, hostRegexPrefix); ok {
			matched, err := m.matchRegex(hostName, pattern)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
			continue
		}
		if name == hostName {
			return true, nil
		}
	}
	return false, nil
}

// matchServices checks a subject against service patterns; any match wins.
func (m *Matcher) matchServices(patterns []string, subject string) (bool, error) {
	for _, pattern := range patterns {
		matched, err := m.matchRegex(subject, pattern)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// matchRegex matches a value against a start-anchored pattern.
func (m *Matcher) matchRegex(value, pattern string) (bool, error) {
	m.mu.RLock()
	re, ok := m.compiledRegexCache[pattern]
	m.mu.RUnlock()
	if ok {
		return re.MatchString(value), nil
	}

	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.compiledRegexCache[pattern] = re
	m.mu.Unlock()

	return re.MatchString(value), nil
}

// CacheSize returns the number of cached compiled patterns.
func (m *Matcher) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.compiledRegexCache)
}

// compilePattern compiles a pattern anchored at the start of the subject.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// matchTag evaluates a tag predicate against a host's tag value.
func matchTag(pred TagPredicate, value string, present bool) bool {
	var ok bool
	if len(pred.OneOf) == 0 {
		ok = present
	} else if present {
		for _, candidate := range pred.OneOf {
			if candidate == value {
				ok = true
				break
			}
		}
	}
	if pred.Negate {
		return !ok
	}
	return ok
}
