// Package storage holds the group membership set kept by a reference host.
//
// # Overview
//
// A host in a groupsync cluster only needs to remember which groups exist.
// Store captures exactly that: add, remove, and membership checks, with
// distinct errors for the two conflicting cases so the HTTP layer can map
// them to status codes:
//
//	Add(existing)    -> ErrGroupExists    -> 409 Conflict
//	Remove(missing)  -> ErrGroupNotFound  -> 404 Not Found
//
// # Implementations
//
// MemoryStore: in-memory set guarded by sync.RWMutex
//   - No persistence, groups are lost on restart
//   - Suitable for demos, local clusters and tests
//
// # Thread Safety
//
// All Store methods may be called concurrently. List returns a fresh,
// sorted slice that callers may modify.
package storage
