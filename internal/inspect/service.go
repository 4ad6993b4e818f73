// Package inspect is the interactive inspection orchestrator: it owns
// the tick loop and wires entity selection to viewpoint transitions,
// panel exclusivity, telemetry fetches, and UI-state bookkeeping. The
// rendering host consumes it exclusively through Hooks and accessors.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/anchor"
	"github.com/atriumlabs/twinctl/internal/floors"
	"github.com/atriumlabs/twinctl/internal/panels"
	"github.com/atriumlabs/twinctl/internal/telemetry"
	"github.com/atriumlabs/twinctl/internal/uistate"
	"github.com/atriumlabs/twinctl/internal/viewpoint"
)

var ErrInvalidService = errors.New("inspect: invalid service config")

// Hooks are the render/UI layer's observation points. All fields are
// optional; they run on the orchestration goroutine.
type Hooks struct {
	OnPoseUpdated     func(pose anchor.Pose)
	OnArrive          func(anchorID string)
	OnPanelOpened     func(group, panelID string)
	OnPanelClosed     func(group, panelID string)
	OnTelemetryResult func(entityID string, out telemetry.Outcome)
}

// Config holds orchestrator tunables.
type Config struct {
	TickInterval       time.Duration
	HeartbeatInterval  time.Duration
	TransitionDuration time.Duration
	DetailPanelGroup   string
}

func DefaultConfig() Config {
	return Config{
		TickInterval:       50 * time.Millisecond,
		HeartbeatInterval:  5 * time.Second,
		TransitionDuration: 1500 * time.Millisecond,
		DetailPanelGroup:   "detail-inspection",
	}
}

// Deps are the orchestrator's collaborators, passed in explicitly at
// construction. The service never discovers anything on its own.
type Deps struct {
	Anchors   *anchor.Registry
	Viewpoint *viewpoint.Controller
	Floors    *floors.Machine
	States    *uistate.Registry
	Telemetry *telemetry.Coordinator
}

// Service is the orchestration entry point. A single goroutine (the
// one running Run, or the test driving Tick) advances all state;
// telemetry responses cross over via the coordinator's dispatch queue.
type Service struct {
	cfg    Config
	hooks  Hooks
	reg    *anchor.Registry
	vp     *viewpoint.Controller
	floors *floors.Machine
	panels *panels.Registry
	states *uistate.Registry
	coord  *telemetry.Coordinator

	mu       sync.Mutex
	selected string
	tickNow  time.Time
}

func NewService(cfg Config, deps Deps, hooks Hooks) (*Service, error) {
	if deps.Anchors == nil || deps.Viewpoint == nil || deps.Floors == nil ||
		deps.States == nil || deps.Telemetry == nil {
		return nil, fmt.Errorf("%w: missing collaborators", ErrInvalidService)
	}
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.TransitionDuration < 0 {
		cfg.TransitionDuration = def.TransitionDuration
	}
	if strings.TrimSpace(cfg.DetailPanelGroup) == "" {
		cfg.DetailPanelGroup = def.DetailPanelGroup
	}

	s := &Service{
		cfg:    cfg,
		hooks:  hooks,
		reg:    deps.Anchors,
		vp:     deps.Viewpoint,
		floors: deps.Floors,
		states: deps.States,
		coord:  deps.Telemetry,
	}
	s.panels = panels.NewRegistry(panels.Hooks{
		OnOpened: func(group, panelID string) {
			s.states.SetState("panel."+group, true, panelID)
			if s.hooks.OnPanelOpened != nil {
				s.hooks.OnPanelOpened(group, panelID)
			}
		},
		OnClosed: func(group, panelID string) {
			s.states.SetState("panel."+group, false, panelID)
			if s.hooks.OnPanelClosed != nil {
				s.hooks.OnPanelClosed(group, panelID)
			}
		},
	})
	s.vp.SetPoseHook(func(pose anchor.Pose) {
		if s.hooks.OnPoseUpdated != nil {
			s.hooks.OnPoseUpdated(pose)
		}
	})
	return s, nil
}

// OnEntitySelected is the single entry point for the external
// input/raycast layer: move the viewpoint to the entity's anchor and,
// on arrival, fetch its live data. An unknown anchor is rejected
// synchronously with no state change.
func (s *Service) OnEntitySelected(entityID, anchorID string) error {
	return s.OnEntitySelectedAt(entityID, anchorID, time.Now())
}

// OnEntitySelectedAt is OnEntitySelected with an explicit clock, for
// hosts (and tests) that drive time themselves.
func (s *Service) OnEntitySelectedAt(entityID, anchorID string, now time.Time) error {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidService)
	}

	err := s.vp.RequestTransition(anchorID, s.cfg.TransitionDuration, now, func(arrived string) {
		s.handleArrival(entityID, arrived)
	})
	if err != nil {
		return err
	}

	// A selection change makes the previous entity's in-flight
	// telemetry obsolete even though no new request exists for it yet.
	s.mu.Lock()
	prev := s.selected
	s.selected = entityID
	s.mu.Unlock()
	if prev != "" && prev != entityID {
		s.coord.Abandon(prev)
	}

	s.states.SetStateAt("inspect.selection", true, entityID, now)
	log.Info().Str("entity", entityID).Str("anchor", anchorID).Msg("inspect.selected")
	return nil
}

// handleArrival runs on the orchestration goroutine, synchronously
// with the arrival tick. The request clock is the tick's time, so
// hosts and tests that drive time manually see consistent deadlines.
func (s *Service) handleArrival(entityID, anchorID string) {
	if s.hooks.OnArrive != nil {
		s.hooks.OnArrive(anchorID)
	}
	s.panels.Open(s.cfg.DetailPanelGroup, entityID, nil)

	s.mu.Lock()
	now := s.tickNow
	s.mu.Unlock()
	if now.IsZero() {
		now = time.Now()
	}

	// Movement and data-fetch are decoupled failure domains: a
	// telemetry refusal must not undo the arrival.
	_, err := s.coord.RequestLiveData(entityID, now, func(out telemetry.Outcome) {
		s.deliverTelemetry(out)
	})
	if err != nil {
		log.Warn().Str("entity", entityID).Err(err).Msg("inspect.telemetry_refused")
		s.deliverTelemetry(telemetry.Outcome{EntityID: entityID, Err: err})
	}
}

func (s *Service) deliverTelemetry(out telemetry.Outcome) {
	if out.Err != nil {
		s.states.SetState("telemetry."+out.EntityID, false, out.Err.Error())
	} else {
		s.states.SetState("telemetry."+out.EntityID, true, fmt.Sprintf("%d fields from %s", len(out.Result.Fields), out.Result.DeviceID))
	}
	if s.hooks.OnTelemetryResult != nil {
		s.hooks.OnTelemetryResult(out.EntityID, out)
	}
}

// SelectFloor forwards to the floor state machine.
func (s *Service) SelectFloor(f floors.Floor) error {
	return s.floors.SelectFloor(f, time.Now())
}

// ResetToNoneState hard-interrupts any movement and returns home.
func (s *Service) ResetToNoneState() error {
	return s.floors.ResetToNoneState(time.Now())
}

// IsBusy reports whether any user-driven movement is in flight.
func (s *Service) IsBusy() bool {
	return s.floors.IsTransitioning()
}

// Tick advances one orchestration step at wall-clock now: viewpoint
// movement, telemetry timeout sweep, and queued telemetry deliveries.
func (s *Service) Tick(now time.Time) {
	s.mu.Lock()
	s.tickNow = now
	s.mu.Unlock()

	s.vp.Tick(now)
	s.coord.SweepTimeouts(now)
	s.coord.Dispatch()
}

// Run drives the orchestration loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	log.Info().
		Dur("tick", s.cfg.TickInterval).
		Int("anchors", s.reg.Len()).
		Msg("inspect.run")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("inspect.shutdown")
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		case <-heartbeat.C:
			log.Info().
				Str("floor", s.floors.Current().Slug()).
				Bool("busy", s.IsBusy()).
				Int("telemetry_pending", s.coord.PendingCount()).
				Msg("inspect.heartbeat")
		}
	}
}

// Panels exposes the shared panel-exclusivity registry.
func (s *Service) Panels() *panels.Registry {
	return s.panels
}

// States exposes the UI state registry for diagnostics consumers.
func (s *Service) States() *uistate.Registry {
	return s.states
}

// Floors exposes the floor state machine.
func (s *Service) Floors() *floors.Machine {
	return s.floors
}

// Viewpoint exposes the viewpoint controller for read-only queries.
func (s *Service) Viewpoint() *viewpoint.Controller {
	return s.vp
}

// Anchors exposes the anchor registry.
func (s *Service) Anchors() *anchor.Registry {
	return s.reg
}
