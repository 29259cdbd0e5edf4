package lifecycle

import (
	"fmt"
	"time"
)

// State is a step of one order run.
type State string

const (
	StatePending          State = "PENDING"
	StateValidating       State = "VALIDATING"
	StateValidated        State = "VALIDATED"
	StateStoring          State = "STORING"
	StateStored           State = "STORED"
	StateValidationFailed State = "VALIDATION_FAILED"
	StateStorageFailed    State = "STORAGE_FAILED"
)

var transitions = map[State][]State{
	StatePending:    {StateValidating},
	StateValidating: {StateValidated, StateValidationFailed},
	StateValidated:  {StateStoring},
	StateStoring:    {StateStored, StateStorageFailed},
}

// Terminal reports whether the run ends in s. STORED ends the run by handing the
// order to the fulfillment worker.
func (s State) Terminal() bool {
	_, more := transitions[s]
	return !more
}

// CanAdvance reports whether a run may move from one state to another.
func CanAdvance(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type tracker struct {
	state   State
	history []Transition
	nowFunc func() time.Time
}

func (t *tracker) advance(to State) {
	if !CanAdvance(t.state, to) {
		panic(fmt.Sprintf("lifecycle: illegal transition %s -> %s", t.state, to))
	}
	t.history = append(t.history, Transition{From: t.state, To: to, At: t.nowFunc()})
	t.state = to
}
