package viewpoint

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/anchor"
	"github.com/atriumlabs/twinctl/internal/observability"
)

// State is the viewpoint lifecycle state.
type State int

const (
	StateIdle State = iota
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// ArriveFunc is invoked exactly once when a transition settles on its
// target anchor. It never fires for a cancelled or redirected
// transition.
type ArriveFunc func(anchorID string)

// PoseFunc receives the interpolated pose on every tick while a
// transition is active.
type PoseFunc func(pose anchor.Pose)

// Config carries construction-time controller options.
type Config struct {
	InitialPose anchor.Pose
	Easing      Easing
}

func DefaultConfig() Config {
	return Config{Easing: EaseInOutCubic}
}

// Controller owns the single process-wide viewpoint and moves it
// between anchors over time. At most one transition is ever in
// flight; requesting a new one redirects from the current
// interpolated pose and silently drops the old arrival callback.
//
// The controller never blocks: movement is advanced by repeated
// Tick calls driven by the orchestration loop.
type Controller struct {
	mu     sync.Mutex
	reg    *anchor.Registry
	easing Easing

	pose     anchor.Pose
	state    State
	targetID string

	startPose  anchor.Pose
	targetPose anchor.Pose
	startedAt  time.Time
	duration   time.Duration

	onArrive ArriveFunc
	onPose   PoseFunc
}

func NewController(reg *anchor.Registry, cfg Config) *Controller {
	easing := cfg.Easing
	if easing == nil {
		easing = EaseInOutCubic
	}
	return &Controller{
		reg:    reg,
		easing: easing,
		pose:   cfg.InitialPose,
		state:  StateIdle,
	}
}

// SetPoseHook installs the per-tick pose observer. Intended to be
// wired once at startup by the orchestrator.
func (c *Controller) SetPoseHook(fn PoseFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPose = fn
}

// RequestTransition validates the target anchor and begins moving the
// viewpoint toward it, redirecting any transition already in flight.
// The redirected transition's arrival callback is discarded before
// any pose mutation, so it can never fire.
func (c *Controller) RequestTransition(targetAnchorID string, d time.Duration, now time.Time, onArrive ArriveFunc) error {
	target, err := c.reg.Resolve(targetAnchorID)
	if err != nil {
		observability.RecordTransition(observability.TransitionRejected)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTransitioning {
		// Redirect: continue from wherever the viewpoint is right
		// now, not from the abandoned target.
		c.pose = c.interpolateLocked(now)
		c.onArrive = nil
		observability.RecordTransition(observability.TransitionRedirected)
		log.Debug().
			Str("old_target", c.targetID).
			Str("new_target", target.ID).
			Msg("viewpoint.redirect")
	} else {
		observability.RecordTransition(observability.TransitionStarted)
	}

	c.state = StateTransitioning
	c.targetID = target.ID
	c.startPose = c.pose
	c.targetPose = target.Pose
	c.startedAt = now
	c.duration = d
	c.onArrive = onArrive
	return nil
}

// Tick advances the active transition to wall-clock now. Arrival is
// detected here: the state flips to idle and the arrival callback
// fires exactly once, synchronously with respect to the tick.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	if c.state != StateTransitioning {
		c.mu.Unlock()
		return
	}

	c.pose = c.interpolateLocked(now)
	pose := c.pose
	poseHook := c.onPose

	var arriveHook ArriveFunc
	var arrivedAt string
	if c.fractionLocked(now) >= 1 {
		arrivedAt = c.targetID
		arriveHook = c.onArrive
		c.onArrive = nil
		c.targetID = ""
		c.state = StateIdle
		observability.RecordTransition(observability.TransitionCompleted)
	}
	c.mu.Unlock()

	// Hooks run outside the lock so they may call back into the
	// controller (e.g. chain a follow-up transition on arrival).
	if poseHook != nil {
		poseHook(pose)
	}
	if arriveHook != nil {
		log.Debug().Str("anchor", arrivedAt).Msg("viewpoint.arrive")
		arriveHook(arrivedAt)
	}
}

// CancelActive stops the in-flight transition, if any, without firing
// its arrival callback. The viewpoint keeps its last interpolated
// pose. Cancellation is an explicit overwrite, not an error.
func (c *Controller) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateTransitioning {
		return
	}
	log.Debug().Str("target", c.targetID).Msg("viewpoint.cancel")
	c.onArrive = nil
	c.targetID = ""
	c.state = StateIdle
	observability.RecordTransition(observability.TransitionCancelled)
}

// IsTransitioning reports whether a transition is in flight.
func (c *Controller) IsTransitioning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateTransitioning
}

// Pose returns the current interpolated pose as of the last tick.
func (c *Controller) Pose() anchor.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// Target returns the in-flight target anchor id, if any.
func (c *Controller) Target() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetID, c.state == StateTransitioning
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) fractionLocked(now time.Time) float64 {
	if c.duration <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(c.startedAt)) / float64(c.duration))
}

func (c *Controller) interpolateLocked(now time.Time) anchor.Pose {
	return anchor.Lerp(c.startPose, c.targetPose, c.easing(c.fractionLocked(now)))
}
