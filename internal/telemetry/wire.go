package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types carried by the persistent connection. The backend
// echoes the originating request id on every response so stale
// responses can be detected after a supersede.
const (
	MsgHello             = "hello"
	MsgDiscoverEquipment = "discover_equipment"
	MsgDiscoveryResult   = "discovery_result"
	MsgFetchLiveData     = "fetch_live_data"
	MsgLiveDataResult    = "live_data_result"
	MsgError             = "error"
)

// Wire error codes carried by MsgError envelopes.
const (
	CodeNoEquipmentFound = "no_equipment_found"
	CodeInternal         = "internal"
)

const ProtocolVersion = 1

var (
	ErrInvalidEnvelope = errors.New("telemetry: invalid envelope")
	ErrUnknownMessage  = errors.New("telemetry: unknown message type")
)

// Hello is the client -> backend session-start payload.
type Hello struct {
	ClientID        string `json:"client_id"`
	ProtocolVersion int    `json:"protocol_version"`
}

func (h Hello) Validate() error {
	if strings.TrimSpace(h.ClientID) == "" {
		return fmt.Errorf("%w: hello missing client_id", ErrInvalidEnvelope)
	}
	if h.ProtocolVersion <= 0 {
		return fmt.Errorf("%w: hello missing protocol_version", ErrInvalidEnvelope)
	}
	return nil
}

// DiscoverEquipment asks which devices belong to an inspectable entity.
type DiscoverEquipment struct {
	RequestID uint64 `json:"request_id"`
	EntityID  string `json:"entity_id"`
}

func (d DiscoverEquipment) Validate() error {
	if d.RequestID == 0 {
		return fmt.Errorf("%w: discover_equipment missing request_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(d.EntityID) == "" {
		return fmt.Errorf("%w: discover_equipment missing entity_id", ErrInvalidEnvelope)
	}
	return nil
}

// DiscoveryResult lists the devices discovered for an entity. An
// empty device list is valid on the wire; the coordinator surfaces it
// as ErrNoEquipmentFound.
type DiscoveryResult struct {
	RequestID uint64   `json:"request_id"`
	EntityID  string   `json:"entity_id"`
	DeviceIDs []string `json:"device_ids"`
}

func (d DiscoveryResult) Validate() error {
	if d.RequestID == 0 {
		return fmt.Errorf("%w: discovery_result missing request_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(d.EntityID) == "" {
		return fmt.Errorf("%w: discovery_result missing entity_id", ErrInvalidEnvelope)
	}
	return nil
}

// FetchLiveData requests the live field map of one device.
type FetchLiveData struct {
	RequestID uint64 `json:"request_id"`
	DeviceID  string `json:"device_id"`
}

func (f FetchLiveData) Validate() error {
	if f.RequestID == 0 {
		return fmt.Errorf("%w: fetch_live_data missing request_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(f.DeviceID) == "" {
		return fmt.Errorf("%w: fetch_live_data missing device_id", ErrInvalidEnvelope)
	}
	return nil
}

// LiveDataResult carries one device's live field map.
type LiveDataResult struct {
	RequestID uint64            `json:"request_id"`
	DeviceID  string            `json:"device_id"`
	Fields    map[string]string `json:"fields"`
}

func (l LiveDataResult) Validate() error {
	if l.RequestID == 0 {
		return fmt.Errorf("%w: live_data_result missing request_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(l.DeviceID) == "" {
		return fmt.Errorf("%w: live_data_result missing device_id", ErrInvalidEnvelope)
	}
	return nil
}

// WireError is a backend-reported failure for one request.
type WireError struct {
	RequestID uint64 `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e WireError) Validate() error {
	if e.RequestID == 0 {
		return fmt.Errorf("%w: error missing request_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(e.Code) == "" {
		return fmt.Errorf("%w: error missing code", ErrInvalidEnvelope)
	}
	return nil
}

// Envelope is the single top-level wire shape; exactly one payload
// field matching Type is set.
type Envelope struct {
	Type     string             `json:"type"`
	Hello    *Hello             `json:"hello,omitempty"`
	Discover *DiscoverEquipment `json:"discover_equipment,omitempty"`
	Found    *DiscoveryResult   `json:"discovery_result,omitempty"`
	Fetch    *FetchLiveData     `json:"fetch_live_data,omitempty"`
	Live     *LiveDataResult    `json:"live_data_result,omitempty"`
	Err      *WireError         `json:"error,omitempty"`
}

// Validate checks that Type names a known message and its payload is
// present and well-formed.
func (e Envelope) Validate() error {
	switch e.Type {
	case MsgHello:
		if e.Hello == nil {
			return fmt.Errorf("%w: missing hello payload", ErrInvalidEnvelope)
		}
		return e.Hello.Validate()
	case MsgDiscoverEquipment:
		if e.Discover == nil {
			return fmt.Errorf("%w: missing discover_equipment payload", ErrInvalidEnvelope)
		}
		return e.Discover.Validate()
	case MsgDiscoveryResult:
		if e.Found == nil {
			return fmt.Errorf("%w: missing discovery_result payload", ErrInvalidEnvelope)
		}
		return e.Found.Validate()
	case MsgFetchLiveData:
		if e.Fetch == nil {
			return fmt.Errorf("%w: missing fetch_live_data payload", ErrInvalidEnvelope)
		}
		return e.Fetch.Validate()
	case MsgLiveDataResult:
		if e.Live == nil {
			return fmt.Errorf("%w: missing live_data_result payload", ErrInvalidEnvelope)
		}
		return e.Live.Validate()
	case MsgError:
		if e.Err == nil {
			return fmt.Errorf("%w: missing error payload", ErrInvalidEnvelope)
		}
		return e.Err.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, e.Type)
	}
}

func EncodeEnvelope(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
