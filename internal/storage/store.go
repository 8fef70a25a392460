package storage

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrGroupExists is returned when adding a group that is already present
	ErrGroupExists = errors.New("group already exists")
	// ErrGroupNotFound is returned when removing a group that doesn't exist
	ErrGroupNotFound = errors.New("group not found")
)

// Store defines the interface for a host's group membership set
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Add inserts a group
	// Returns ErrGroupExists if it is already present
	Add(groupID string) error

	// Remove deletes a group
	// Returns ErrGroupNotFound if it is absent
	Remove(groupID string) error

	// Has reports whether a group exists
	Has(groupID string) bool

	// List returns all groups in sorted order
	List() []string

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Groups  int `json:"groups"`  // Number of groups currently present
	Adds    int `json:"adds"`    // Successful Add calls since start
	Removes int `json:"removes"` // Successful Remove calls since start
}

// MemoryStore implements Store with an in-memory set
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	groups  map[string]struct{} // Present groups
	mu      sync.RWMutex        // Protects all fields
	adds    int
	removes int
}

// NewMemoryStore creates a new, empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[string]struct{}),
	}
}

// Add inserts a group
func (m *MemoryStore) Add(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; ok {
		return ErrGroupExists
	}
	m.groups[groupID] = struct{}{}
	m.adds++
	return nil
}

// Remove deletes a group
func (m *MemoryStore) Remove(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; !ok {
		return ErrGroupNotFound
	}
	delete(m.groups, groupID)
	m.removes++
	return nil
}

// Has reports whether a group exists
func (m *MemoryStore) Has(groupID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.groups[groupID]
	return ok
}

// List returns all groups, sorted
func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]string, 0, len(m.groups))
	for g := range m.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return StoreStats{
		Groups:  len(m.groups),
		Adds:    m.adds,
		Removes: m.removes,
	}
}
