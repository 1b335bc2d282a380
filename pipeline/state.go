package pipeline

import (
	"fmt"
	"time"
)

// State is a position in the run state machine.
type State string

const (
	Idle       State = "idle"
	Acquiring  State = "acquiring"
	Extracting State = "extracting"
	Rewriting  State = "rewriting"
	Done       State = "done"
	Failed     State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == Done || s == Failed }

// next is the only forward transition out of each non-terminal state.
var next = map[State]State{
	Idle:       Acquiring,
	Acquiring:  Extracting,
	Extracting: Rewriting,
	Rewriting:  Done,
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type machine struct {
	state State
	trace []Transition
	now   func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{state: Idle, now: now}
}

// advance moves to the next state. Failed is reachable from every
// non-terminal state.
func (m *machine) advance(to State) error {
	if m.state.Terminal() {
		return fmt.Errorf("pipeline: transition %s -> %s from terminal state", m.state, to)
	}
	if to != Failed && next[m.state] != to {
		return fmt.Errorf("pipeline: illegal transition %s -> %s", m.state, to)
	}
	m.trace = append(m.trace, Transition{From: m.state, To: to, At: m.now()})
	m.state = to
	return nil
}
