package anchor

import (
	"errors"
	"testing"

	"github.com/atriumlabs/twinctl/internal/testutil/testlog"
)

func buildingDefs() []Anchor {
	return []Anchor{
		{ID: "root", Pose: Pose{Y: 50}},
		{ID: "floor-a", ParentID: "root", Pose: Pose{Y: 10}},
		{ID: "room-a1", ParentID: "floor-a", Pose: Pose{X: 4, Y: 10}},
		{ID: "equip-a1", ParentID: "room-a1", Pose: Pose{X: 4.5, Y: 9, Z: 2}},
	}
}

func TestRegistryResolveAndChildren(t *testing.T) {
	testlog.Start(t)
	reg, err := NewRegistry(buildingDefs())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("unexpected len=%d", reg.Len())
	}
	a, err := reg.Resolve("equip-a1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.ParentID != "room-a1" {
		t.Fatalf("unexpected parent=%q", a.ParentID)
	}
	if _, err := reg.Resolve("no-such-anchor"); !errors.Is(err, ErrAnchorNotFound) {
		t.Fatalf("expected ErrAnchorNotFound, got %v", err)
	}
	kids := reg.Children("root")
	if len(kids) != 1 || kids[0] != "floor-a" {
		t.Fatalf("unexpected children=%v", kids)
	}
}

func TestRegistryChildrenReturnsCopy(t *testing.T) {
	testlog.Start(t)
	reg, err := NewRegistry(buildingDefs())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	kids := reg.Children("floor-a")
	kids[0] = "mutated"
	if got := reg.Children("floor-a"); got[0] != "room-a1" {
		t.Fatalf("registry leaked internal slice, got %v", got)
	}
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		defs []Anchor
		want error
	}{
		{"empty", nil, ErrInvalidAnchor},
		{"blank id", []Anchor{{ID: "  "}}, ErrInvalidAnchor},
		{"duplicate", []Anchor{{ID: "a"}, {ID: "a"}}, ErrDuplicateID},
		{"unknown parent", []Anchor{{ID: "a", ParentID: "ghost"}}, ErrUnknownParent},
		{"cycle", []Anchor{{ID: "a", ParentID: "b"}, {ID: "b", ParentID: "a"}}, ErrAnchorCycle},
	}
	for _, tc := range cases {
		if _, err := NewRegistry(tc.defs); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLerpEndpoints(t *testing.T) {
	testlog.Start(t)
	a := Pose{X: 1, Y: 2, Z: 3, Yaw: 90, Pitch: -10}
	b := Pose{X: 5, Y: 0, Z: 7, Yaw: 180, Pitch: 10}
	if got := Lerp(a, b, 0); got != a {
		t.Fatalf("t=0 got %+v", got)
	}
	if got := Lerp(a, b, 1); got != b {
		t.Fatalf("t=1 got %+v", got)
	}
	mid := Lerp(a, b, 0.5)
	if mid.X != 3 || mid.Yaw != 135 {
		t.Fatalf("t=0.5 got %+v", mid)
	}
}
