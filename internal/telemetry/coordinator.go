package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/observability"
)

var (
	ErrNotConnected     = errors.New("telemetry: not connected")
	ErrNoEquipmentFound = errors.New("telemetry: no equipment found")
	ErrTimeout          = errors.New("telemetry: request timed out")
	ErrBackend          = errors.New("telemetry: backend error")
	ErrInvalidEntity    = errors.New("telemetry: invalid entity id")
)

// Transport is the persistent message-oriented connection the
// coordinator sends over. Inbound envelopes reach the coordinator via
// HandleEnvelope, wired by the host.
type Transport interface {
	Send(env Envelope) error
	Connected() bool
}

// RequestState is the lifecycle of one telemetry request.
type RequestState int

const (
	StatePending RequestState = iota
	StateCompleted
	StateSuperseded
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateSuperseded:
		return "superseded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is one delivered live-data payload. Ownership transfers to
// the consumer on delivery; the coordinator keeps no reference.
type Result struct {
	EntityID string
	DeviceID string
	// ExtraDeviceIDs lists further discovered devices beyond the one
	// fetched, for consumers that want to drill down.
	ExtraDeviceIDs []string
	Fields         map[string]string
	ReceivedAt     time.Time
}

// Outcome is delivered exactly once per non-superseded request:
// either Result is set or Err is. Superseded requests get no
// notification at all.
type Outcome struct {
	RequestID uint64
	EntityID  string
	Result    *Result
	Err       error
}

// ResultFunc receives a request's terminal outcome. It runs on the
// goroutine that calls Dispatch, i.e. the orchestration loop.
type ResultFunc func(Outcome)

// Config holds coordinator tunables.
type Config struct {
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{RequestTimeout: 10 * time.Second}
}

type pendingRequest struct {
	id       uint64
	entityID string
	fn       ResultFunc
	issuedAt time.Time
	deadline time.Time
	deviceID string
	extras   []string
}

type delivery struct {
	fn  ResultFunc
	out Outcome
}

// Coordinator drives the discovery + live-data fetch pipeline for
// selected entities. Per entity, at most one request is pending:
// issuing a new one supersedes the old, and the old one's eventual
// response is dropped by request-id comparison on arrival.
//
// Terminal outcomes are queued and handed off to the orchestration
// goroutine via Dispatch; callbacks never run on the transport's read
// goroutine.
type Coordinator struct {
	cfg       Config
	transport Transport
	seq       atomic.Uint64

	mu      sync.Mutex
	latest  map[string]uint64
	pending map[uint64]*pendingRequest
	queue   []delivery
}

func NewCoordinator(transport Transport, cfg Config) *Coordinator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Coordinator{
		cfg:       cfg,
		transport: transport,
		latest:    make(map[string]uint64),
		pending:   make(map[uint64]*pendingRequest),
	}
}

// RequestLiveData begins the discovery + fetch pipeline for entityID
// and returns the issued request id. A prior pending request for the
// same entity is immediately superseded with no notification. Fails
// fast with ErrNotConnected when the transport is down; nothing is
// sent and no request is recorded.
func (c *Coordinator) RequestLiveData(entityID string, now time.Time, fn ResultFunc) (uint64, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return 0, ErrInvalidEntity
	}
	if c.transport == nil || !c.transport.Connected() {
		observability.RecordTelemetry(observability.TelemetryRejected)
		return 0, ErrNotConnected
	}

	id := c.seq.Add(1)

	c.mu.Lock()
	if prevID, ok := c.latest[entityID]; ok {
		if _, live := c.pending[prevID]; live {
			delete(c.pending, prevID)
			observability.RecordTelemetry(observability.TelemetrySuperseded)
			log.Debug().
				Uint64("superseded", prevID).
				Uint64("by", id).
				Str("entity", entityID).
				Msg("telemetry.supersede")
		}
	}
	c.latest[entityID] = id
	c.pending[id] = &pendingRequest{
		id:       id,
		entityID: entityID,
		fn:       fn,
		issuedAt: now,
		deadline: now.Add(c.cfg.RequestTimeout),
	}
	c.mu.Unlock()

	env := Envelope{
		Type:     MsgDiscoverEquipment,
		Discover: &DiscoverEquipment{RequestID: id, EntityID: entityID},
	}
	if err := c.transport.Send(env); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		observability.RecordTelemetry(observability.TelemetryRejected)
		return 0, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	log.Debug().Uint64("request", id).Str("entity", entityID).Msg("telemetry.discover")
	return id, nil
}

// HandleEnvelope ingests one inbound envelope from the transport.
// Safe to call from the transport's read goroutine: it only mutates
// coordinator state and queues outcomes, never invokes callbacks.
func (c *Coordinator) HandleEnvelope(env Envelope) {
	switch env.Type {
	case MsgDiscoveryResult:
		c.handleDiscovery(*env.Found)
	case MsgLiveDataResult:
		c.handleLiveData(*env.Live)
	case MsgError:
		c.handleWireError(*env.Err)
	default:
		log.Debug().Str("type", env.Type).Msg("telemetry.ignored_message")
	}
}

func (c *Coordinator) handleDiscovery(res DiscoveryResult) {
	c.mu.Lock()
	pr, ok := c.takeFreshLocked(res.RequestID)
	if !ok {
		c.mu.Unlock()
		return
	}
	if len(res.DeviceIDs) == 0 {
		c.failLocked(pr, fmt.Errorf("%w: entity %q", ErrNoEquipmentFound, pr.entityID))
		observability.RecordTelemetry(observability.TelemetryNoEquipment)
		c.mu.Unlock()
		return
	}
	pr.deviceID = res.DeviceIDs[0]
	pr.extras = append([]string(nil), res.DeviceIDs[1:]...)
	c.mu.Unlock()

	env := Envelope{
		Type:  MsgFetchLiveData,
		Fetch: &FetchLiveData{RequestID: pr.id, DeviceID: pr.deviceID},
	}
	if err := c.transport.Send(env); err != nil {
		c.mu.Lock()
		if again, still := c.takeFreshLocked(pr.id); still {
			c.failLocked(again, fmt.Errorf("%w: %v", ErrNotConnected, err))
			observability.RecordTelemetry(observability.TelemetryFailed)
		}
		c.mu.Unlock()
		return
	}
	log.Debug().Uint64("request", pr.id).Str("device", pr.deviceID).Msg("telemetry.fetch")
}

func (c *Coordinator) handleLiveData(res LiveDataResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr, ok := c.takeFreshLocked(res.RequestID)
	if !ok {
		return
	}
	delete(c.pending, pr.id)
	observability.RecordTelemetry(observability.TelemetryCompleted)
	c.queue = append(c.queue, delivery{
		fn: pr.fn,
		out: Outcome{
			RequestID: pr.id,
			EntityID:  pr.entityID,
			Result: &Result{
				EntityID:       pr.entityID,
				DeviceID:       res.DeviceID,
				ExtraDeviceIDs: pr.extras,
				Fields:         res.Fields,
				ReceivedAt:     time.Now(),
			},
		},
	})
}

func (c *Coordinator) handleWireError(we WireError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr, ok := c.takeFreshLocked(we.RequestID)
	if !ok {
		return
	}
	var err error
	switch we.Code {
	case CodeNoEquipmentFound:
		err = fmt.Errorf("%w: entity %q", ErrNoEquipmentFound, pr.entityID)
		observability.RecordTelemetry(observability.TelemetryNoEquipment)
	default:
		err = fmt.Errorf("%w: %s: %s", ErrBackend, we.Code, we.Message)
		observability.RecordTelemetry(observability.TelemetryFailed)
	}
	c.failLocked(pr, err)
}

// takeFreshLocked returns the pending request for id when it is still
// the latest issued for its entity. Anything else is a stale or
// superseded response and is dropped here, silently.
func (c *Coordinator) takeFreshLocked(id uint64) (*pendingRequest, bool) {
	pr, ok := c.pending[id]
	if !ok || c.latest[pr.entityID] != id {
		observability.RecordStaleDrop()
		log.Debug().Uint64("request", id).Msg("telemetry.stale_drop")
		return nil, false
	}
	return pr, true
}

func (c *Coordinator) failLocked(pr *pendingRequest, err error) {
	delete(c.pending, pr.id)
	c.queue = append(c.queue, delivery{
		fn:  pr.fn,
		out: Outcome{RequestID: pr.id, EntityID: pr.entityID, Err: err},
	})
}

// Abandon silently supersedes the pending request for entityID, if
// any; its eventual response is dropped as stale. Issuing a new
// request for the same entity does this implicitly, but when the
// selection moves to a different entity there is no replacement
// request, so the orchestrator abandons the old one explicitly.
func (c *Coordinator) Abandon(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.latest[strings.TrimSpace(entityID)]
	if !ok {
		return
	}
	if _, live := c.pending[id]; !live {
		return
	}
	delete(c.pending, id)
	observability.RecordTelemetry(observability.TelemetrySuperseded)
	log.Debug().Uint64("request", id).Str("entity", entityID).Msg("telemetry.abandon")
}

// SweepTimeouts fails every pending request whose deadline has passed.
// Driven by the orchestration tick.
func (c *Coordinator) SweepTimeouts(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pr := range c.pending {
		if pr.deadline.After(now) {
			continue
		}
		log.Warn().Uint64("request", pr.id).Str("entity", pr.entityID).Msg("telemetry.timeout")
		observability.RecordTelemetry(observability.TelemetryTimeout)
		c.failLocked(pr, fmt.Errorf("%w: entity %q", ErrTimeout, pr.entityID))
	}
}

// FailAllPending terminates every pending request with err. Called by
// the transport when the connection drops, since responses for them
// can no longer arrive.
func (c *Coordinator) FailAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pr := range c.pending {
		observability.RecordTelemetry(observability.TelemetryFailed)
		c.failLocked(pr, fmt.Errorf("%w: %v", ErrNotConnected, err))
	}
}

// Dispatch invokes queued outcome callbacks on the calling goroutine,
// in request-issuance order. This is the single handoff point between
// the transport's read goroutine and the orchestration thread.
func (c *Coordinator) Dispatch() {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].out.RequestID < batch[j].out.RequestID
	})
	for _, d := range batch {
		if d.fn != nil {
			d.fn(d.out)
		}
	}
}

// PendingCount reports requests still awaiting a response.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LatestRequestID returns the most recent request id issued for
// entityID, if any.
func (c *Coordinator) LatestRequestID(entityID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.latest[strings.TrimSpace(entityID)]
	return id, ok
}
