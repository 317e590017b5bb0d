// Package state holds the per-match phase machine. Transitions are checked
// against a fixed table; terminal phases are never re-enterable.
package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the lifecycle stage of a single match.
type Phase uint8

const (
	PhaseWaitingForPlayers Phase = iota
	PhasePlaying
	PhaseColorSelection
	PhasePaused
	PhaseCompleted
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForPlayers:
		return "waiting_for_players"
	case PhasePlaying:
		return "playing"
	case PhaseColorSelection:
		return "color_selection"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Terminal reports whether no further transition may leave this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// ErrTransitionNotAllowed is returned when a phase transition is not in the
// allowed table.
var ErrTransitionNotAllowed = errors.New("phase transition not allowed")

var transitions = map[Phase][]Phase{
	PhaseWaitingForPlayers: {PhasePlaying, PhaseCancelled},
	PhasePlaying:           {PhaseColorSelection, PhasePaused, PhaseCompleted, PhaseCancelled},
	PhaseColorSelection:    {PhasePlaying, PhasePaused, PhaseCompleted, PhaseCancelled},
	PhasePaused:            {PhasePlaying, PhaseColorSelection, PhaseCancelled},
	PhaseCompleted:         {},
	PhaseCancelled:         {},
}

// Machine serializes phase reads and transitions for one match.
type Machine struct {
	current Phase
	// resume remembers the phase interrupted by a pause.
	resume Phase
	mutex  sync.RWMutex
}

// NewMachine starts in PhaseWaitingForPlayers.
func NewMachine() *Machine {
	return &Machine{current: PhaseWaitingForPlayers}
}

// Current returns the active phase.
func (m *Machine) Current() Phase {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.current
}

// Transition moves to the requested phase if the table allows it.
func (m *Machine) Transition(to Phase) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, allowed := range transitions[m.current] {
		if allowed == to {
			if to == PhasePaused {
				m.resume = m.current
			}
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, m.current, to)
}

// Resume leaves PhasePaused and restores the interrupted phase.
func (m *Machine) Resume() (Phase, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current != PhasePaused {
		return m.current, fmt.Errorf("%w: resume from %s", ErrTransitionNotAllowed, m.current)
	}
	m.current = m.resume
	return m.current, nil
}
