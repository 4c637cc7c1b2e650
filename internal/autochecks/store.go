// Package autochecks provides read access to the services discovered on each
// host.
package autochecks

import (
	"context"
	"sync"

	"github.com/kneutral-org/checkconfig/internal/params"
	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/service"
)

// Entry is one discovered service of a host.
type Entry struct {
	Plugin        string            `json:"plugin" yaml:"plugin"`
	Item          string            `json:"item,omitempty" yaml:"item"`
	Parameters    params.Parameters `json:"parameters" yaml:"parameters"`
	ServiceLabels map[string]string `json:"service_labels,omitempty" yaml:"service_labels"`
}

// ID returns the entry's service ID with a normalised plugin name.
func (e Entry) ID() service.ID {
	return service.ID{Plugin: plugin.NormalizeName(e.Plugin), Item: e.Item}
}

// Store defines the interface for reading discovered services.
type Store interface {
	// Autochecks returns the discovered services of a host in discovery
	// order. A host without autochecks yields an empty result, not an error.
	Autochecks(ctx context.Context, hostName string) ([]Entry, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

// Set replaces the autochecks of a host.
func (s *MemoryStore) Set(hostName string, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[hostName] = append([]Entry(nil), entries...)
}

// Autochecks implements Store.
func (s *MemoryStore) Autochecks(ctx context.Context, hostName string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[hostName]
	if len(entries) == 0 {
		return nil, nil
	}
	return append([]Entry(nil), entries...), nil
}

// Hosts returns the number of hosts with autochecks (for testing).
func (s *MemoryStore) Hosts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
