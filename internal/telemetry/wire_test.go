package telemetry

import (
	"errors"
	"testing"

	"github.com/atriumlabs/twinctl/internal/testutil/testlog"
)

func TestEncodeDecodeDiscoveryEnvelope(t *testing.T) {
	testlog.Start(t)
	data, err := EncodeEnvelope(Envelope{
		Type:     MsgDiscoverEquipment,
		Discover: &DiscoverEquipment{RequestID: 7, EntityID: "equip-a1"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != MsgDiscoverEquipment || env.Discover.RequestID != 7 || env.Discover.EntityID != "equip-a1" {
		t.Fatalf("round trip mangled envelope: %+v", env)
	}
}

func TestEnvelopeValidation(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		env  Envelope
		want error
	}{
		{"unknown type", Envelope{Type: "telepathy"}, ErrUnknownMessage},
		{"missing payload", Envelope{Type: MsgLiveDataResult}, ErrInvalidEnvelope},
		{"zero request id", Envelope{Type: MsgFetchLiveData, Fetch: &FetchLiveData{DeviceID: "dev-1"}}, ErrInvalidEnvelope},
		{"blank device", Envelope{Type: MsgFetchLiveData, Fetch: &FetchLiveData{RequestID: 3, DeviceID: " "}}, ErrInvalidEnvelope},
		{"blank entity", Envelope{Type: MsgDiscoverEquipment, Discover: &DiscoverEquipment{RequestID: 3}}, ErrInvalidEnvelope},
		{"hello missing version", Envelope{Type: MsgHello, Hello: &Hello{ClientID: "c-1"}}, ErrInvalidEnvelope},
		{"error missing code", Envelope{Type: MsgError, Err: &WireError{RequestID: 1}}, ErrInvalidEnvelope},
	}
	for _, tc := range cases {
		if _, err := EncodeEnvelope(tc.env); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeEnvelope([]byte("{not json")); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestDiscoveryResultAllowsEmptyDeviceList(t *testing.T) {
	testlog.Start(t)
	// Zero devices is a valid wire message; the coordinator turns it
	// into ErrNoEquipmentFound.
	_, err := EncodeEnvelope(Envelope{
		Type:  MsgDiscoveryResult,
		Found: &DiscoveryResult{RequestID: 4, EntityID: "room-2"},
	})
	if err != nil {
		t.Fatalf("empty discovery should encode: %v", err)
	}
}
