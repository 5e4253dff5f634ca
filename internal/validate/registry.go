package validate

import (
	"sync"
	"time"
)

// resourceState tracks one open resource's current text and fingerprint.
type resourceState struct {
	text        string
	fingerprint string
	version     int
	openedAt    time.Time
}

// Registry tracks the resources the host currently has open. The core holds
// no dependency on any host event system; it only requires the host to
// deliver open/update/close events in order through these entry points.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*resourceState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*resourceState)}
}

// Open registers a resource with its initial text. Reopening an already
// open resource replaces its content.
func (r *Registry) Open(resourceID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[resourceID] = &resourceState{
		text:        text,
		fingerprint: Fingerprint(text),
		version:     1,
		openedAt:    time.Now(),
	}
}

// Update replaces the resource's text after an edit. It reports whether the
// content actually changed; an unchanged write keeps the fingerprint and
// therefore the cached result valid.
func (r *Registry) Update(resourceID, text string) (changed bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, exists := r.resources[resourceID]
	if !exists {
		return false, false
	}
	fp := Fingerprint(text)
	if fp == st.fingerprint {
		return false, true
	}
	st.text = text
	st.fingerprint = fp
	st.version++
	return true, true
}

// Close removes the resource. It reports whether the resource was open.
func (r *Registry) Close(resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[resourceID]; !ok {
		return false
	}
	delete(r.resources, resourceID)
	return true
}

// Text returns the current text of an open resource.
func (r *Registry) Text(resourceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.resources[resourceID]
	if !ok {
		return "", false
	}
	return st.text, true
}

// FingerprintOf returns the current fingerprint of an open resource.
func (r *Registry) FingerprintOf(resourceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.resources[resourceID]
	if !ok {
		return "", false
	}
	return st.fingerprint, true
}

// IsOpen reports whether the resource is currently open.
func (r *Registry) IsOpen(resourceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resources[resourceID]
	return ok
}

// OpenResources returns the IDs of all open resources.
func (r *Registry) OpenResources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.resources))
	for id := range r.resources {
		ids = append(ids, id)
	}
	return ids
}
