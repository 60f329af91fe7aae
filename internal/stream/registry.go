/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import "sync"

// Registry tracks live sessions by id with a secondary owner index.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Session
	byOwner map[string]map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Session),
		byOwner: make(map[string]map[string]*Session),
	}
}

// Register adds a session.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.ID] = s
	owned := r.byOwner[s.Owner]
	if owned == nil {
		owned = make(map[string]*Session)
		r.byOwner[s.Owner] = owned
	}
	owned[s.ID] = s
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Remove deletes the session for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if owned := r.byOwner[s.Owner]; owned != nil {
		delete(owned, id)
		if len(owned) == 0 {
			delete(r.byOwner, s.Owner)
		}
	}
}

// ListByOwner returns summary snapshots of the owner's sessions.
func (r *Registry) ListByOwner(owner string) []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.byOwner[owner]
	summaries := make([]Summary, 0, len(owned))
	for _, s := range owned {
		summaries = append(summaries, s.Summary())
	}
	return summaries
}

// sessionsByOwner returns the owner's live session pointers.
func (r *Registry) sessionsByOwner(owner string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.byOwner[owner]
	sessions := make([]*Session, 0, len(owned))
	for _, s := range owned {
		sessions = append(sessions, s)
	}
	return sessions
}

// all returns every registered session.
func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	return sessions
}

// CountByOwner returns how many sessions the owner has registered.
func (r *Registry) CountByOwner(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOwner[owner])
}

// Count returns the total number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
