package status

import (
	"testing"

	"github.com/lucasdpb/satchel/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Installing},
		{Booting, Offline},
		{Installing, Online},
		{Installing, Offline},
		{Online, Offline},
		{Offline, Replaying},
		{Replaying, Online},
		{Online, Degraded},
		{Degraded, Online},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Replaying); err == nil {
		t.Error("Transition(BOOTING -> REPLAYING) should fail")
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Online)
	<-ch // drain the BOOTING -> ONLINE event

	// Repeated probe success must not re-announce the state.
	if err := m.Transition(Online); err != nil {
		t.Fatalf("Transition(ONLINE -> ONLINE) error = %v", err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for self transition: %v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "net.status_changed" {
		t.Errorf("event kind = %q, want net.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Offline {
		t.Errorf("change = %v -> %v, want BOOTING -> OFFLINE", change.From, change.To)
	}
}

// TestFirstRunLifecycle simulates the complete first-run path:
// BOOTING → INSTALLING → ONLINE
func TestFirstRunLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Installing, Online}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Online {
		t.Errorf("final state = %s, want ONLINE", m.Current())
	}
}

// TestOfflineReplayCycle verifies the reconnect loop:
// ONLINE → OFFLINE → REPLAYING → ONLINE
func TestOfflineReplayCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)

	steps := []State{Offline, Replaying, Online}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Online {
		t.Errorf("final state = %s, want ONLINE", m.Current())
	}
	if m.Offline() {
		t.Error("Offline() = true after returning to ONLINE")
	}
}

// TestOfflineAffordance verifies the persistent offline indicator flag.
func TestOfflineAffordance(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)

	if m.Offline() {
		t.Error("Offline() = true while ONLINE")
	}
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}
	if !m.Offline() {
		t.Error("Offline() = false while OFFLINE")
	}
}

// TestDegradedStoreFailure verifies that a broken local store drops the
// daemon into network-only mode rather than ERROR.
func TestDegradedStoreFailure(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)

	if err := m.Transition(Degraded); err != nil {
		t.Fatalf("ONLINE -> DEGRADED: %v", err)
	}
	if err := m.Transition(Online); err != nil {
		t.Fatalf("DEGRADED -> ONLINE: %v", err)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:    {},
		Installing: {Installing},
		Online:     {Online},
		Offline:    {Offline},
		Replaying:  {Offline, Replaying},
		Degraded:   {Online, Degraded},
		Error:      {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
