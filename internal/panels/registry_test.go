package panels

import (
	"testing"

	"github.com/atriumlabs/twinctl/internal/testutil/testlog"
)

func TestOpenEnforcesExclusivityPerGroup(t *testing.T) {
	testlog.Start(t)
	var events []string
	r := NewRegistry(Hooks{
		OnOpened: func(group, id string) { events = append(events, "open:"+group+":"+id) },
		OnClosed: func(group, id string) { events = append(events, "close:"+group+":"+id) },
	})

	aClosed := false
	r.Open("alarm", "panel-a", func() { aClosed = true })
	r.Open("alarm", "panel-b", nil)

	if !aClosed {
		t.Fatalf("incumbent close hook did not fire")
	}
	if open, ok := r.OpenPanel("alarm"); !ok || open != "panel-b" {
		t.Fatalf("open=%q ok=%v, want panel-b", open, ok)
	}
	if r.IsOpen("alarm", "panel-a") {
		t.Fatalf("panel-a still reported open")
	}
	want := []string{"open:alarm:panel-a", "close:alarm:panel-a", "open:alarm:panel-b"}
	if len(events) != len(want) {
		t.Fatalf("events=%v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d]=%q, want %q", i, events[i], want[i])
		}
	}
}

func TestGroupsAreIndependent(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry(Hooks{})
	r.Open("alarm-options", "panel-a", nil)
	r.Open("detail-inspection", "panel-b", nil)

	if open, _ := r.OpenPanel("alarm-options"); open != "panel-a" {
		t.Fatalf("alarm-options open=%q", open)
	}
	if open, _ := r.OpenPanel("detail-inspection"); open != "panel-b" {
		t.Fatalf("detail-inspection open=%q", open)
	}
}

func TestToggleTwiceReturnsToClosed(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry(Hooks{})

	if open := r.Toggle("alarm", "panel-a", nil); !open {
		t.Fatalf("first toggle should open")
	}
	if open := r.Toggle("alarm", "panel-a", nil); open {
		t.Fatalf("second toggle should close")
	}
	if _, ok := r.OpenPanel("alarm"); ok {
		t.Fatalf("group not empty after toggle pair")
	}
}

func TestToggleSwitchesIncumbent(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry(Hooks{})
	closed := false
	r.Open("alarm", "panel-a", func() { closed = true })

	if open := r.Toggle("alarm", "panel-b", nil); !open {
		t.Fatalf("toggle to other panel should open it")
	}
	if !closed {
		t.Fatalf("incumbent not closed on toggle switch")
	}
	if open, _ := r.OpenPanel("alarm"); open != "panel-b" {
		t.Fatalf("open=%q", open)
	}
}

func TestCloseAllClearsGroup(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry(Hooks{})
	closed := false
	r.Open("alarm", "panel-a", func() { closed = true })
	r.CloseAll("alarm")

	if !closed {
		t.Fatalf("close hook not fired by CloseAll")
	}
	if _, ok := r.OpenPanel("alarm"); ok {
		t.Fatalf("group still locked")
	}
}

func TestReleaseClearsGhostLockWithoutOwnerHook(t *testing.T) {
	testlog.Start(t)
	var closedNotices []string
	r := NewRegistry(Hooks{
		OnClosed: func(group, id string) { closedNotices = append(closedNotices, group+":"+id) },
	})

	ownerHookFired := false
	r.Open("alarm", "panel-1", func() { ownerHookFired = true })

	// Owner destroyed without closing; registry must not stay locked.
	r.Release("panel-1")

	if _, ok := r.OpenPanel("alarm"); ok {
		t.Fatalf("group ghost-locked after owner removal")
	}
	if ownerHookFired {
		t.Fatalf("destroyed owner's close hook fired")
	}
	if len(closedNotices) != 1 || closedNotices[0] != "alarm:panel-1" {
		t.Fatalf("observer notices=%v", closedNotices)
	}

	// Group is usable again.
	r.Open("alarm", "panel-2", nil)
	if open, _ := r.OpenPanel("alarm"); open != "panel-2" {
		t.Fatalf("open=%q after release", open)
	}
}

func TestReopenSamePanelIsQuiet(t *testing.T) {
	testlog.Start(t)
	opens := 0
	r := NewRegistry(Hooks{OnOpened: func(string, string) { opens++ }})
	r.Open("alarm", "panel-a", nil)
	r.Open("alarm", "panel-a", nil)
	if opens != 1 {
		t.Fatalf("opens=%d, want 1", opens)
	}
}
