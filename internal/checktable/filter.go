// Package checktable resolves the authoritative table of configured services
// for a host or cluster.
package checktable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilterMode is returned for an unknown filter mode name.
var ErrInvalidFilterMode = errors.New("invalid filter mode")

// FilterMode selects how a node's clustered services are treated.
type FilterMode string

const (
	// FilterExcludeClustered drops services a node hands over to a cluster.
	FilterExcludeClustered FilterMode = "exclude-clustered"
	// FilterIncludeClustered additionally lists, for each cluster of the
	// node, the cluster's services the node would own, with cluster
	// parameters.
	FilterIncludeClustered FilterMode = "include-clustered"
)

// ParseFilterMode parses a filter mode name. An empty name means
// FilterExcludeClustered.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterExcludeClustered, "none", "exclude":
		return FilterExcludeClustered, nil
	case FilterIncludeClustered, "include":
		return FilterIncludeClustered, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilterMode, s)
	}
}

// String returns the mode name.
func (m FilterMode) String() string { return string(m) }

// Valid reports whether m is a known mode.
func (m FilterMode) Valid() bool {
	return m == FilterExcludeClustered || m == FilterIncludeClustered
}
