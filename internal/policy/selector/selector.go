// Package selector implements type-directed structural search over the
// trace value tree. A declaration like `(call: ToolCall)` enumerates
// its candidate bindings by selecting every sub-value of the trace
// whose variant discriminant matches the declared type.
package selector

import (
	"fmt"
	"sort"

	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// Match is one candidate found by the selector.
type Match struct {
	// Value is the matched sub-value.
	Value any
	// Index is the top-level trace index the match originated from,
	// -1 when selecting over a plain value.
	Index int
	// Addr is the structural address of the match for localization.
	Addr string
}

// Selector searches nested values for sub-values of a given type. It
// holds the trace so arena ids found inside events can be dereferenced.
type Selector struct {
	tr *trace.Trace
}

// New creates a selector over the given trace (nil is allowed when only
// plain values are searched).
func New(tr *trace.Trace) *Selector {
	return &Selector{tr: tr}
}

// SelectAll enumerates matches of typeName over the whole trace, in
// trace order.
func (s *Selector) SelectAll(typeName string) []Match {
	var out []Match
	if s.tr == nil {
		return out
	}
	for i, ev := range s.tr.Events() {
		out = append(out, s.Select(typeName, ev, i)...)
	}
	return out
}

// Select recursively searches value for sub-values whose type name
// equals typeName, returning matches paired with the originating
// top-level index. Function and type values are skipped: they are not
// matchable and are not descended into. Values of unsupported types do
// not match (they are not an error at this level; the walk simply
// prunes them).
func (s *Selector) Select(typeName string, value any, index int) []Match {
	var out []Match
	s.walk(typeName, value, index, addrOf(value, index), &out)
	return out
}

func addrOf(value any, index int) string {
	if ev, ok := value.(*trace.Event); ok {
		return ev.Address()
	}
	return fmt.Sprintf("%d", index)
}

func (s *Selector) walk(typeName string, value any, index int, addr string, out *[]Match) {
	switch v := value.(type) {
	case nil:
		if typeName == "None" {
			*out = append(*out, Match{Value: nil, Index: index, Addr: addr})
		}

	case *trace.Event:
		if v.TypeName() == typeName {
			*out = append(*out, Match{Value: v, Index: index, Addr: v.Address()})
		}
		s.descendEvent(typeName, v, index, out)

	case *trace.FunctionCall:
		if typeName == "FunctionCall" {
			*out = append(*out, Match{Value: v, Index: index, Addr: addr})
		}
		s.walk(typeName, v.Arguments, index, addr+".arguments", out)

	case trace.ID:
		if s.tr == nil {
			return
		}
		ev, err := s.tr.Node(v)
		if err != nil {
			return
		}
		s.walk(typeName, ev, index, ev.Address(), out)

	case []trace.ID:
		for _, id := range v {
			s.walk(typeName, id, index, addr, out)
		}

	case []any:
		for i, el := range v {
			s.walk(typeName, el, index, fmt.Sprintf("%s.%d", addr, i), out)
		}

	case map[string]any:
		// Deterministic order: walk keys sorted.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.walk(typeName, v[k], index, addr+"."+k, out)
		}

	case string:
		if typeName == "str" {
			*out = append(*out, Match{Value: v, Index: index, Addr: addr})
		}

	case float64:
		if typeName == "number" {
			*out = append(*out, Match{Value: v, Index: index, Addr: addr})
		}

	case int:
		if typeName == "number" {
			*out = append(*out, Match{Value: float64(v), Index: index, Addr: addr})
		}

	case bool:
		if typeName == "bool" {
			*out = append(*out, Match{Value: v, Index: index, Addr: addr})
		}

	default:
		// Functions, type objects, and anything else unsupported:
		// not matchable, not descended into.
	}
}

// descendEvent walks the typed fields of an event variant.
func (s *Selector) descendEvent(typeName string, ev *trace.Event, index int, out *[]Match) {
	switch ev.Kind {
	case trace.KindMessage:
		s.walk(typeName, ev.Msg.Content, index, ev.Address()+".content", out)
		s.walk(typeName, ev.Msg.ToolCalls, index, ev.Address()+".tool_calls", out)
	case trace.KindToolCall:
		s.walk(typeName, &ev.Call.Function, index, ev.Address()+".function", out)
	case trace.KindToolOutput:
		s.walk(typeName, ev.Out.Content, index, ev.Address()+".content", out)
	}
}
