package discovery

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the in-memory name table. Registrations are owned by the
// connection that created them and reaped when it closes, so a crashed
// client never leaves a stale name behind.
type Registry struct {
	mu      sync.Mutex
	entries map[string]ownedEntry
}

type ownedEntry struct {
	Entry
	owner uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]ownedEntry)}
}

// Register adds one name. A name held by another live connection is a
// conflict; re-registering on the same connection replaces the entry.
func (r *Registry) Register(owner uint64, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[e.Name]; ok && existing.owner != owner {
		return fmt.Errorf("%w: %s", ErrNameConflict, e.Name)
	}
	r.entries[e.Name] = ownedEntry{Entry: e, owner: owner}
	return nil
}

// Deregister removes one name if the connection owns it.
func (r *Registry) Deregister(owner uint64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[name]
	if !ok || existing.owner != owner {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.entries, name)
	return nil
}

// Lookup resolves one exact name, hidden or not.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e.Entry, ok
}

// Names lists visible registrations. Hidden nodes stay invisible to
// unrelated peers and are omitted.
func (r *Registry) Names() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Hidden {
			continue
		}
		out = append(out, e.Entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReapOwner drops every registration the closing connection held and
// returns how many were dropped.
func (r *Registry) ReapOwner(owner uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	reaped := 0
	for name, e := range r.entries {
		if e.owner == owner {
			delete(r.entries, name)
			reaped++
		}
	}
	return reaped
}

// Count reports live registrations, hidden included.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
