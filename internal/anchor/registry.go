package anchor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAnchorNotFound = errors.New("anchor: not found")
	ErrInvalidAnchor  = errors.New("anchor: invalid anchor")
	ErrDuplicateID    = errors.New("anchor: duplicate id")
	ErrUnknownParent  = errors.New("anchor: unknown parent")
	ErrAnchorCycle    = errors.New("anchor: parent cycle")
)

// Registry is the write-once lookup of named anchors and their
// parent/child relationship. It is immutable after NewRegistry
// succeeds, so readers need no locking.
type Registry struct {
	byID     map[string]Anchor
	children map[string][]string
	ids      []string
}

// NewRegistry builds the anchor tree from loader-supplied definitions.
// Every non-root anchor must reference a parent defined in the same
// set, and parent links must not form a cycle.
func NewRegistry(defs []Anchor) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: empty definition set", ErrInvalidAnchor)
	}

	byID := make(map[string]Anchor, len(defs))
	for i, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: defs[%d] missing id", ErrInvalidAnchor, i)
		}
		if _, ok := byID[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		def.ID = id
		def.ParentID = strings.TrimSpace(def.ParentID)
		byID[id] = def
	}

	children := make(map[string][]string)
	for _, def := range byID {
		if def.ParentID == "" {
			continue
		}
		if _, ok := byID[def.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownParent, def.ID, def.ParentID)
		}
		children[def.ParentID] = append(children[def.ParentID], def.ID)
	}

	for _, def := range byID {
		if err := checkCycle(byID, def.ID); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, kids := range children {
		sort.Strings(kids)
	}

	return &Registry{byID: byID, children: children, ids: ids}, nil
}

// checkCycle walks parent links from id; the walk must terminate at a
// root within len(byID) hops.
func checkCycle(byID map[string]Anchor, id string) error {
	cur := id
	for range byID {
		def := byID[cur]
		if def.ParentID == "" {
			return nil
		}
		cur = def.ParentID
	}
	return fmt.Errorf("%w: starting at %s", ErrAnchorCycle, id)
}

// Lookup returns the anchor for id, if defined.
func (r *Registry) Lookup(id string) (Anchor, bool) {
	a, ok := r.byID[strings.TrimSpace(id)]
	return a, ok
}

// Resolve returns the anchor for id or ErrAnchorNotFound.
func (r *Registry) Resolve(id string) (Anchor, error) {
	a, ok := r.Lookup(id)
	if !ok {
		return Anchor{}, fmt.Errorf("%w: %q", ErrAnchorNotFound, id)
	}
	return a, nil
}

// Children returns the child ids of id in stable order.
func (r *Registry) Children(id string) []string {
	kids := r.children[strings.TrimSpace(id)]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}

// IDs returns every anchor id in stable order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len reports the number of registered anchors.
func (r *Registry) Len() int {
	return len(r.byID)
}
