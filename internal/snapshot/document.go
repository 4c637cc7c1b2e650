package snapshot

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/params"
)

// Document is the YAML layout of a configuration snapshot.
type Document struct {
	Hosts                []HostDoc                     `yaml:"hosts"`
	Clusters             []ClusterDoc                  `yaml:"clusters"`
	Plugins              []PluginDoc                   `yaml:"plugins"`
	TimePeriods          []TimePeriodDoc               `yaml:"timeperiods"`
	Rulesets             map[string]RulesetDoc         `yaml:"rulesets"`
	StaticChecks         map[string][]RuleDoc          `yaml:"static_checks"`
	CheckgroupParameters map[string]RulesetDoc         `yaml:"checkgroup_parameters"`
	Autochecks           map[string][]autochecks.Entry `yaml:"autochecks"`
}

// HostDoc describes a plain host or cluster node.
type HostDoc struct {
	Name               string            `yaml:"name"`
	Tags               map[string]string `yaml:"tags"`
	Labels             map[string]string `yaml:"labels"`
	ManagementProtocol string            `yaml:"management_protocol"`
}

// ClusterDoc describes a cluster and its nodes in declaration order.
type ClusterDoc struct {
	Name   string            `yaml:"name"`
	Nodes  []string          `yaml:"nodes"`
	Tags   map[string]string `yaml:"tags"`
	Labels map[string]string `yaml:"labels"`
}

// PluginDoc describes a check plugin.
type PluginDoc struct {
	Name              string            `yaml:"name"`
	ServiceName       string            `yaml:"service_name"`
	DefaultParameters params.Parameters `yaml:"default_parameters"`
	CheckRuleset      string            `yaml:"check_ruleset"`
}

// TimePeriodDoc describes a named time period.
type TimePeriodDoc struct {
	Name     string      `yaml:"name"`
	Alias    string      `yaml:"alias"`
	Timezone string      `yaml:"timezone"`
	Windows  []WindowDoc `yaml:"windows"`
	Exclude  []string    `yaml:"exclude"`
}

// WindowDoc is a daily window. Days are weekday names.
type WindowDoc struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

// RulesetDoc is a ruleset with its match policy.
type RulesetDoc struct {
	Policy string    `yaml:"policy"`
	Rules  []RuleDoc `yaml:"rules"`
}

// RuleDoc is one rule.
type RuleDoc struct {
	ID        string       `yaml:"id"`
	Condition ConditionDoc `yaml:"condition"`
	Value     any          `yaml:"value"`
	Disabled  bool         `yaml:"disabled"`
	Comment   string       `yaml:"comment"`
}

// ConditionDoc is the YAML form of a rule condition.
type ConditionDoc struct {
	HostName                 []string          `yaml:"host_name"`
	HostNameNegate           bool              `yaml:"host_name_negate"`
	HostTags                 map[string]TagDoc `yaml:"host_tags"`
	HostLabels               map[string]string `yaml:"host_labels"`
	ServiceDescription       []string          `yaml:"service_description"`
	ServiceDescriptionNegate bool              `yaml:"service_description_negate"`
}

// TagDoc is a tag predicate. It is written either as a plain value or as
// {one_of: [...], negate: bool}.
type TagDoc struct {
	OneOf  []string `yaml:"one_of"`
	Negate bool     `yaml:"negate"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TagDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var value string
		if err := node.Decode(&value); err != nil {
			return err
		}
		*t = TagDoc{OneOf: []string{strings.TrimSpace(value)}}
		return nil
	case yaml.MappingNode:
		type plain TagDoc
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*t = TagDoc(p)
		return nil
	default:
		return fmt.Errorf("line %d: tag condition must be a value or a mapping", node.Line)
	}
}

// normalizeValue converts YAML-decoded rule values into the shapes the
// evaluator expects: string-keyed maps and []any lists.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
