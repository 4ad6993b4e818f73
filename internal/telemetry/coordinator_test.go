package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atriumlabs/twinctl/internal/testutil/testlog"
)

// fakeTransport records sent envelopes and lets tests script replies.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []Envelope
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true}
}

func (f *fakeTransport) Send(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) sentEnvelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) lastSent(t *testing.T) Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func TestDiscoveryThenFetchThenDelivery(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, Config{RequestTimeout: 10 * time.Second})
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	id, err := c.RequestLiveData("equip-a1", now, func(out Outcome) { outcomes = append(outcomes, out) })
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	disc := tr.lastSent(t)
	if disc.Type != MsgDiscoverEquipment || disc.Discover.EntityID != "equip-a1" || disc.Discover.RequestID != id {
		t.Fatalf("unexpected discovery envelope: %+v", disc)
	}

	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{
		RequestID: id, EntityID: "equip-a1", DeviceIDs: []string{"dev-1", "dev-2"},
	}})

	fetch := tr.lastSent(t)
	if fetch.Type != MsgFetchLiveData || fetch.Fetch.DeviceID != "dev-1" || fetch.Fetch.RequestID != id {
		t.Fatalf("unexpected fetch envelope: %+v", fetch)
	}

	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{
		RequestID: id, DeviceID: "dev-1", Fields: map[string]string{"temp": "21.5"},
	}})

	if len(outcomes) != 0 {
		t.Fatalf("outcome delivered before Dispatch")
	}
	c.Dispatch()

	if len(outcomes) != 1 {
		t.Fatalf("outcomes=%d, want 1", len(outcomes))
	}
	out := outcomes[0]
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.Fields["temp"] != "21.5" || out.Result.DeviceID != "dev-1" {
		t.Fatalf("unexpected result: %+v", out.Result)
	}
	if len(out.Result.ExtraDeviceIDs) != 1 || out.Result.ExtraDeviceIDs[0] != "dev-2" {
		t.Fatalf("extra devices: %v", out.Result.ExtraDeviceIDs)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("pending=%d after completion", c.PendingCount())
	}
}

func TestSupersededResponseIsDropped(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	record := func(out Outcome) { outcomes = append(outcomes, out) }

	idA, err := c.RequestLiveData("room-7", now, record)
	if err != nil {
		t.Fatalf("request a: %v", err)
	}
	idB, err := c.RequestLiveData("room-7", now.Add(time.Millisecond), record)
	if err != nil {
		t.Fatalf("request b: %v", err)
	}
	if idB <= idA {
		t.Fatalf("request ids not monotonic: %d then %d", idA, idB)
	}
	if got, _ := c.LatestRequestID("room-7"); got != idB {
		t.Fatalf("latest=%d, want %d", got, idB)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("pending=%d, want only the latest", c.PendingCount())
	}

	// A's late responses arrive after the supersede: all dropped.
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{
		RequestID: idA, EntityID: "room-7", DeviceIDs: []string{"dev-stale"},
	}})
	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{
		RequestID: idA, DeviceID: "dev-stale", Fields: map[string]string{"temp": "old"},
	}})

	// B completes normally.
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{
		RequestID: idB, EntityID: "room-7", DeviceIDs: []string{"dev-9"},
	}})
	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{
		RequestID: idB, DeviceID: "dev-9", Fields: map[string]string{"temp": "22.0"},
	}})
	c.Dispatch()

	if len(outcomes) != 1 {
		t.Fatalf("outcomes=%d, want exactly 1 (stale dropped, no supersede notice)", len(outcomes))
	}
	if outcomes[0].RequestID != idB || outcomes[0].Result.Fields["temp"] != "22.0" {
		t.Fatalf("delivered wrong outcome: %+v", outcomes[0])
	}

	// The stale fetch for dev-stale must never have been sent.
	for _, env := range tr.sentEnvelopes() {
		if env.Type == MsgFetchLiveData && env.Fetch.DeviceID == "dev-stale" {
			t.Fatalf("fetch sent for superseded discovery")
		}
	}
}

func TestNoEquipmentFound(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	id, err := c.RequestLiveData("empty-room", now, func(out Outcome) { outcomes = append(outcomes, out) })
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{
		RequestID: id, EntityID: "empty-room", DeviceIDs: nil,
	}})
	c.Dispatch()

	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, ErrNoEquipmentFound) {
		t.Fatalf("outcomes=%+v, want ErrNoEquipmentFound", outcomes)
	}
	if outcomes[0].Result != nil {
		t.Fatalf("error outcome carries a result")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("terminal request still pending")
	}
}

func TestWireErrorMapsToTaxonomy(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	id, err := c.RequestLiveData("boiler-3", now, func(out Outcome) { outcomes = append(outcomes, out) })
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	c.HandleEnvelope(Envelope{Type: MsgError, Err: &WireError{
		RequestID: id, Code: CodeNoEquipmentFound, Message: "nothing mapped",
	}})
	c.Dispatch()

	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, ErrNoEquipmentFound) {
		t.Fatalf("outcomes=%+v", outcomes)
	}
}

func TestAbandonDropsPendingSilently(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	id, err := c.RequestLiveData("room-7", now, func(out Outcome) { outcomes = append(outcomes, out) })
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	c.Abandon("room-7")
	if c.PendingCount() != 0 {
		t.Fatalf("pending=%d after abandon", c.PendingCount())
	}

	// The abandoned request's responses arrive late and are dropped.
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{
		RequestID: id, EntityID: "room-7", DeviceIDs: []string{"dev-1"},
	}})
	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{
		RequestID: id, DeviceID: "dev-1", Fields: map[string]string{"temp": "20.1"},
	}})
	c.Dispatch()

	if len(outcomes) != 0 {
		t.Fatalf("abandoned request delivered an outcome: %+v", outcomes)
	}

	// Abandoning an entity with nothing pending is a no-op.
	c.Abandon("room-7")
	c.Abandon("never-requested")
}

func TestTimeoutSweepFailsOnlyExpired(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, Config{RequestTimeout: 5 * time.Second})
	base := time.Unix(1700000000, 0)

	var outcomes []Outcome
	record := func(out Outcome) { outcomes = append(outcomes, out) }

	if _, err := c.RequestLiveData("entity-old", base, record); err != nil {
		t.Fatalf("request old: %v", err)
	}
	if _, err := c.RequestLiveData("entity-new", base.Add(4*time.Second), record); err != nil {
		t.Fatalf("request new: %v", err)
	}

	c.SweepTimeouts(base.Add(6 * time.Second))
	c.Dispatch()

	if len(outcomes) != 1 {
		t.Fatalf("outcomes=%d, want 1 expired", len(outcomes))
	}
	if outcomes[0].EntityID != "entity-old" || !errors.Is(outcomes[0].Err, ErrTimeout) {
		t.Fatalf("wrong outcome: %+v", outcomes[0])
	}
	if c.PendingCount() != 1 {
		t.Fatalf("pending=%d, want the unexpired request", c.PendingCount())
	}
}

func TestNotConnectedFailsFast(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.connected = false
	c := NewCoordinator(tr, DefaultConfig())

	if _, err := c.RequestLiveData("equip-a1", time.Now(), nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("rejected request left pending state")
	}
	if len(tr.sentEnvelopes()) != 0 {
		t.Fatalf("rejected request sent traffic")
	}
}

func TestFailAllPendingOnDisconnect(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var outcomes []Outcome
	record := func(out Outcome) { outcomes = append(outcomes, out) }
	if _, err := c.RequestLiveData("a", now, record); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := c.RequestLiveData("b", now, record); err != nil {
		t.Fatalf("request: %v", err)
	}

	c.FailAllPending(errors.New("read: connection reset"))
	c.Dispatch()

	if len(outcomes) != 2 {
		t.Fatalf("outcomes=%d, want 2", len(outcomes))
	}
	for _, out := range outcomes {
		if !errors.Is(out.Err, ErrNotConnected) {
			t.Fatalf("outcome err=%v", out.Err)
		}
	}
}

func TestDispatchDeliversInIssueOrder(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	c := NewCoordinator(tr, DefaultConfig())
	now := time.Unix(1700000000, 0)

	var order []string
	record := func(out Outcome) { order = append(order, out.EntityID) }

	idA, _ := c.RequestLiveData("a", now, record)
	idB, _ := c.RequestLiveData("b", now, record)

	// Responses arrive out of order.
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{RequestID: idB, EntityID: "b", DeviceIDs: []string{"dev-b"}}})
	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{RequestID: idB, DeviceID: "dev-b", Fields: map[string]string{}}})
	c.HandleEnvelope(Envelope{Type: MsgDiscoveryResult, Found: &DiscoveryResult{RequestID: idA, EntityID: "a", DeviceIDs: []string{"dev-a"}}})
	c.HandleEnvelope(Envelope{Type: MsgLiveDataResult, Live: &LiveDataResult{RequestID: idA, DeviceID: "dev-a", Fields: map[string]string{}}})

	c.Dispatch()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("delivery order=%v, want issue order", order)
	}
}

func TestInvalidEntityRejected(t *testing.T) {
	testlog.Start(t)
	c := NewCoordinator(newFakeTransport(), DefaultConfig())
	if _, err := c.RequestLiveData("   ", time.Now(), nil); !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("expected ErrInvalidEntity, got %v", err)
	}
}
