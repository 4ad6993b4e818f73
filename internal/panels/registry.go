// Package panels enforces at-most-one-open among overlay panels that
// share a mutual-exclusion group. Two independently constructed UI
// elements in the same group observe one another through the shared
// registry, keyed by group name.
package panels

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// CloseFunc is a panel owner's close hook, fired when the registry
// closes the panel to make room for another or via CloseAll.
type CloseFunc func()

// Hooks observe open/close activity across all groups. Optional.
type Hooks struct {
	OnOpened func(group, panelID string)
	OnClosed func(group, panelID string)
}

type openPanel struct {
	id      string
	onClose CloseFunc
}

// Registry is the shared per-process panel-exclusivity state. It is
// an injected instance with explicit lifecycle, not a package global,
// so tests construct a fresh one per case.
type Registry struct {
	mu    sync.Mutex
	open  map[string]openPanel
	hooks Hooks
}

func NewRegistry(hooks Hooks) *Registry {
	return &Registry{
		open:  make(map[string]openPanel),
		hooks: hooks,
	}
}

// Open makes panelID the open panel of group, closing the incumbent
// first. Opening the already-open panel only refreshes its close hook.
func (r *Registry) Open(group, panelID string, onClose CloseFunc) {
	r.mu.Lock()
	incumbent, had := r.open[group]
	r.open[group] = openPanel{id: panelID, onClose: onClose}
	r.mu.Unlock()

	if had && incumbent.id != panelID {
		r.fireClosed(group, incumbent)
	}
	if !had || incumbent.id != panelID {
		log.Debug().Str("group", group).Str("panel", panelID).Msg("panels.open")
		if r.hooks.OnOpened != nil {
			r.hooks.OnOpened(group, panelID)
		}
	}
}

// Toggle closes panelID if it is the open panel of group, otherwise
// behaves as Open. Returns true when the panel is open afterwards.
func (r *Registry) Toggle(group, panelID string, onClose CloseFunc) bool {
	r.mu.Lock()
	incumbent, had := r.open[group]
	if had && incumbent.id == panelID {
		delete(r.open, group)
		r.mu.Unlock()
		r.fireClosed(group, incumbent)
		return false
	}
	r.open[group] = openPanel{id: panelID, onClose: onClose}
	r.mu.Unlock()

	if had {
		r.fireClosed(group, incumbent)
	}
	log.Debug().Str("group", group).Str("panel", panelID).Msg("panels.open")
	if r.hooks.OnOpened != nil {
		r.hooks.OnOpened(group, panelID)
	}
	return true
}

// CloseAll clears group, firing the incumbent's close hook.
func (r *Registry) CloseAll(group string) {
	r.mu.Lock()
	incumbent, had := r.open[group]
	delete(r.open, group)
	r.mu.Unlock()

	if had {
		r.fireClosed(group, incumbent)
	}
}

// Release removes panelID's claim from every group it holds, without
// firing its close hook: the owner is being destroyed and can no
// longer act on it. Observers are still notified so the group does
// not stay ghost-locked.
func (r *Registry) Release(panelID string) {
	r.mu.Lock()
	var freed []string
	for group, incumbent := range r.open {
		if incumbent.id == panelID {
			delete(r.open, group)
			freed = append(freed, group)
		}
	}
	r.mu.Unlock()

	for _, group := range freed {
		log.Debug().Str("group", group).Str("panel", panelID).Msg("panels.release")
		if r.hooks.OnClosed != nil {
			r.hooks.OnClosed(group, panelID)
		}
	}
}

// OpenPanel returns the open panel id for group, if any.
func (r *Registry) OpenPanel(group string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	incumbent, ok := r.open[group]
	return incumbent.id, ok
}

// IsOpen reports whether panelID is the open panel of group.
func (r *Registry) IsOpen(group, panelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	incumbent, ok := r.open[group]
	return ok && incumbent.id == panelID
}

// Groups returns a snapshot of group -> open panel id.
func (r *Registry) Groups() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.open))
	for group, incumbent := range r.open {
		out[group] = incumbent.id
	}
	return out
}

func (r *Registry) fireClosed(group string, p openPanel) {
	log.Debug().Str("group", group).Str("panel", p.id).Msg("panels.close")
	if p.onClose != nil {
		p.onClose()
	}
	if r.hooks.OnClosed != nil {
		r.hooks.OnClosed(group, p.id)
	}
}
