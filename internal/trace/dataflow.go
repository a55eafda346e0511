package trace

import (
	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Dataflow is the precedence relation over events: a maps to the set of
// events that causally precede it. The relation is a DAG consistent
// with trace order; edges never point from a later event to an earlier
// one.
type Dataflow struct {
	ancestors map[ID]map[ID]struct{}
}

// NewDataflow creates an empty dataflow graph.
func NewDataflow() *Dataflow {
	return &Dataflow{ancestors: make(map[ID]map[ID]struct{})}
}

// Register adds an event with the given ancestor set. Registering an
// already-registered id merges the ancestor sets.
func (d *Dataflow) Register(id ID, parents map[ID]struct{}) {
	set, ok := d.ancestors[id]
	if !ok {
		set = make(map[ID]struct{}, len(parents))
		d.ancestors[id] = set
	}
	for p := range parents {
		set[p] = struct{}{}
	}
}

// Registered reports whether the event id is known to the graph.
func (d *Dataflow) Registered(id ID) bool {
	_, ok := d.ancestors[id]
	return ok
}

// HasFlow reports whether a causally precedes b. Querying an
// unregistered event identity is a lookup error, not a false result.
func (d *Dataflow) HasFlow(a, b ID) (bool, error) {
	const op = "trace.Dataflow.HasFlow"
	if !d.Registered(a) {
		return false, errors.Lookup(op, "source event is not registered in the dataflow graph").WithDetail("event", int(a))
	}
	set, ok := d.ancestors[b]
	if !ok {
		return false, errors.Lookup(op, "target event is not registered in the dataflow graph").WithDetail("event", int(b))
	}
	_, flows := set[a]
	return flows, nil
}

// Ancestors returns the number of events flowing into id, for
// diagnostics.
func (d *Dataflow) Ancestors(id ID) int {
	return len(d.ancestors[id])
}
