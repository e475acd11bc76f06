package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lucasdpb/satchel/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting    State = "BOOTING"
	Installing State = "INSTALLING"
	Online     State = "ONLINE"
	Offline    State = "OFFLINE"
	Replaying  State = "REPLAYING"
	Degraded   State = "DEGRADED"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions. Degraded covers a
// reachable network with an unavailable local store (network-only mode).
var validTransitions = map[State][]State{
	Booting:    {Installing, Online, Offline, Degraded, Error},
	Installing: {Online, Offline, Degraded, Error},
	Online:     {Offline, Replaying, Degraded, Error},
	Offline:    {Online, Replaying, Degraded, Error},
	Replaying:  {Online, Offline, Degraded, Error},
	Degraded:   {Online, Offline, Error},
	Error:      {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Offline reports whether the daemon currently considers the network
// unreachable. This backs the persistent offline affordance.
func (m *Machine) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current == Offline
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "net.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
