package interp

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Lifecycle events of one rule evaluation.
const (
	eventStart   statekit.EventType = "START"
	eventMatch   statekit.EventType = "MATCH"
	eventNoMatch statekit.EventType = "NO_MATCH"
	eventFail    statekit.EventType = "FAIL"
)

// State IDs of one rule evaluation.
var (
	statePending   statekit.StateID = "pending"
	stateSearching statekit.StateID = "searching"
	stateSatisfied statekit.StateID = "satisfied"
	stateExhausted statekit.StateID = "exhausted"
	stateErrored   statekit.StateID = "errored"
)

// ruleMachine tracks one rule evaluation through
// pending -> searching -> {satisfied | exhausted | errored}. Terminal
// states are final; sending further events to a finished machine is a
// programming error surfaced by Send.
type ruleMachine struct {
	interpreter *statekit.Interpreter[struct{}]
}

func newRuleMachine() (*ruleMachine, error) {
	machine, err := statekit.NewMachine[struct{}]("rule-evaluation").
		WithInitial(statePending).
		State(statePending).
		On(eventStart).Target(stateSearching).
		On(eventFail).Target(stateErrored).
		Done().
		State(stateSearching).
		On(eventMatch).Target(stateSatisfied).
		On(eventNoMatch).Target(stateExhausted).
		On(eventFail).Target(stateErrored).
		Done().
		State(stateSatisfied).
		Final().
		Done().
		State(stateExhausted).
		Final().
		Done().
		State(stateErrored).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "interp.newRuleMachine", "failed to build state machine")
	}

	m := &ruleMachine{interpreter: statekit.NewInterpreter(machine)}
	m.interpreter.Start()
	return m, nil
}

func (m *ruleMachine) send(event statekit.EventType) {
	m.interpreter.Send(statekit.Event{Type: event})
}

func (m *ruleMachine) state() statekit.StateID {
	return m.interpreter.State().Value
}

func (m *ruleMachine) done() bool {
	return m.interpreter.Done()
}

// status maps the machine's terminal state to the reported Status.
func (m *ruleMachine) status() Status {
	switch m.state() {
	case stateSatisfied:
		return StatusSatisfied
	case stateExhausted:
		return StatusExhausted
	default:
		return StatusError
	}
}
