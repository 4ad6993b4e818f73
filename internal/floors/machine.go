package floors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/uistate"
	"github.com/atriumlabs/twinctl/internal/viewpoint"
)

var (
	ErrFloorNotBound  = errors.New("floors: floor not bound to an anchor")
	ErrInvalidMachine = errors.New("floors: invalid machine config")
)

// Busyable is anything whose in-flight work should block new
// user-driven floor actions. The machine OR-reduces over all of them.
type Busyable interface {
	IsTransitioning() bool
}

// Config binds floors to anchors and sets transition behavior.
type Config struct {
	// Bindings maps floor slugs (see Floor.Slug) to anchor ids.
	Bindings map[Floor]string
	// HomeAnchorID is where ResetToNoneState sends the viewpoint.
	HomeAnchorID string
	// TransitionDuration applies to every floor move.
	TransitionDuration time.Duration
}

// Machine tracks the selected floor and drives the viewpoint when the
// selection changes. Selections are requests: the floor value changes
// immediately, the camera follows over the transition duration.
type Machine struct {
	mu         sync.Mutex
	vp         *viewpoint.Controller
	states     *uistate.Registry
	bindings   map[Floor]string
	home       string
	duration   time.Duration
	current    Floor
	dependents []Busyable
}

// NewMachine checks the binding table for empty anchor ids. Whether a
// bound id resolves is the viewpoint controller's call at dispatch
// time; SelectFloor reverts the selection if it does not.
func NewMachine(vp *viewpoint.Controller, states *uistate.Registry, cfg Config) (*Machine, error) {
	if vp == nil || states == nil {
		return nil, fmt.Errorf("%w: missing collaborators", ErrInvalidMachine)
	}
	if cfg.HomeAnchorID == "" {
		return nil, fmt.Errorf("%w: missing home anchor", ErrInvalidMachine)
	}
	bindings := make(map[Floor]string, len(cfg.Bindings))
	for floor, anchorID := range cfg.Bindings {
		if anchorID == "" {
			return nil, fmt.Errorf("%w: floor %s bound to empty anchor", ErrInvalidMachine, floor.Slug())
		}
		bindings[floor] = anchorID
	}
	return &Machine{
		vp:       vp,
		states:   states,
		bindings: bindings,
		home:     cfg.HomeAnchorID,
		duration: cfg.TransitionDuration,
		current:  None,
	}, nil
}

// AddDependent registers a sub-system whose busy state folds into
// IsTransitioning.
func (m *Machine) AddDependent(b Busyable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dependents = append(m.dependents, b)
}

// Current returns the selected floor.
func (m *Machine) Current() Floor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SelectFloor selects f. Reselecting the current floor is a no-op and
// dispatches no transition. Otherwise the floor value updates
// immediately, the viewpoint is redirected to the floor's anchor, and
// the UI-state entries for the previous and new floor are marked.
func (m *Machine) SelectFloor(f Floor, now time.Time) error {
	m.mu.Lock()
	if f == m.current {
		m.mu.Unlock()
		return nil
	}
	anchorID, ok := m.bindings[f]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFloorNotBound, f.Slug())
	}
	prev := m.current
	m.current = f
	m.mu.Unlock()

	m.markSelection(prev, f)
	log.Info().Str("from", prev.Slug()).Str("to", f.Slug()).Msg("floors.select")

	selected := f
	if err := m.vp.RequestTransition(anchorID, m.duration, now, func(arrived string) {
		log.Debug().Str("floor", selected.Slug()).Str("anchor", arrived).Msg("floors.arrived")
	}); err != nil {
		// Bindings are validated at construction; an unresolvable
		// anchor here means the selection cannot take effect.
		m.mu.Lock()
		m.current = prev
		m.mu.Unlock()
		m.markSelection(f, prev)
		return err
	}
	return nil
}

// ResetToNoneState forces the selection back to None and sends the
// viewpoint home. Always allowed, even mid-transition: the in-flight
// move is redirected, its arrival callback dropped.
func (m *Machine) ResetToNoneState(now time.Time) error {
	m.mu.Lock()
	prev := m.current
	m.current = None
	m.mu.Unlock()

	if prev != None {
		m.markSelection(prev, None)
	}
	log.Info().Str("from", prev.Slug()).Msg("floors.reset")

	return m.vp.RequestTransition(m.home, m.duration, now, func(arrived string) {
		log.Debug().Str("anchor", arrived).Msg("floors.reset_arrived")
	})
}

// IsTransitioning reports whether the viewpoint or any registered
// dependent is mid-flight. Callers use this to avoid overlapping
// user-driven actions.
func (m *Machine) IsTransitioning() bool {
	if m.vp.IsTransitioning() {
		return true
	}
	m.mu.Lock()
	deps := make([]Busyable, len(m.dependents))
	copy(deps, m.dependents)
	m.mu.Unlock()
	for _, dep := range deps {
		if dep.IsTransitioning() {
			return true
		}
	}
	return false
}

func (m *Machine) markSelection(prev, next Floor) {
	m.states.SetState("floor."+prev.Slug(), false, prev.String())
	m.states.SetState("floor."+next.Slug(), true, next.String())
}
