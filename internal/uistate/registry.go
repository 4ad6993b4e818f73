// Package uistate is the central event-emitting map from UI-element
// name to visibility/state. Producers (floor, panel, telemetry
// changes) record here; consumers (diagnostics API, dashboards)
// subscribe without coupling to the producers.
package uistate

import (
	"sync"
	"time"
)

// ElementState is one named UI element's recorded state.
// Last write wins per name.
type ElementState struct {
	Name       string    `json:"name"`
	Visible    bool      `json:"visible"`
	LastUpdate time.Time `json:"last_update"`
	Info       string    `json:"info"`
}

// VisibilityFunc observes visibility changes.
type VisibilityFunc func(name string, visible bool)

// StateFunc observes full-state changes.
type StateFunc func(name string, state ElementState)

// Registry holds element states and notifies subscribers on every
// upsert. Instances are injected, never global: tests and hosts
// construct their own.
type Registry struct {
	mu        sync.RWMutex
	states    map[string]ElementState
	visSubs   map[uint64]VisibilityFunc
	stateSubs map[uint64]StateFunc
	nextSub   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		states:    make(map[string]ElementState),
		visSubs:   make(map[uint64]VisibilityFunc),
		stateSubs: make(map[uint64]StateFunc),
	}
}

// SetState upserts the entry for name and publishes both the
// visibility-changed and full-state-changed notifications.
func (r *Registry) SetState(name string, visible bool, info string) {
	r.SetStateAt(name, visible, info, time.Now())
}

// SetStateAt is SetState with an explicit update timestamp.
func (r *Registry) SetStateAt(name string, visible bool, info string, at time.Time) {
	state := ElementState{Name: name, Visible: visible, Info: info, LastUpdate: at}

	r.mu.Lock()
	r.states[name] = state
	visSubs := make([]VisibilityFunc, 0, len(r.visSubs))
	for _, fn := range r.visSubs {
		visSubs = append(visSubs, fn)
	}
	stateSubs := make([]StateFunc, 0, len(r.stateSubs))
	for _, fn := range r.stateSubs {
		stateSubs = append(stateSubs, fn)
	}
	r.mu.Unlock()

	// Subscribers run outside the lock; they may query the registry.
	for _, fn := range visSubs {
		fn(name, visible)
	}
	for _, fn := range stateSubs {
		fn(name, state)
	}
}

// GetState returns the entry for name, if present.
func (r *Registry) GetState(name string) (ElementState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[name]
	return state, ok
}

// GetAll returns a defensive copy of every entry.
func (r *Registry) GetAll() map[string]ElementState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ElementState, len(r.states))
	for name, state := range r.states {
		out[name] = state
	}
	return out
}

// Clear removes the entry for name.
func (r *Registry) Clear(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, name)
}

// ClearAll removes every entry.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]ElementState)
}

// SubscribeVisibility registers fn for visibility notifications and
// returns its unsubscribe func.
func (r *Registry) SubscribeVisibility(fn VisibilityFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.visSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.visSubs, id)
	}
}

// SubscribeState registers fn for full-state notifications and
// returns its unsubscribe func.
func (r *Registry) SubscribeState(fn StateFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.stateSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.stateSubs, id)
	}
}
