// Package trace models recorded agent runs: ordered sequences of
// messages, tool calls and tool outputs, plus the derived dataflow
// graph used to answer "could event a have influenced event b".
//
// Events live in an arena indexed by ID; back-references between a
// message and the tool calls it issued, and between a tool call and
// the output answering it, are stored as arena indices rather than
// pointers so the graph stays cycle-free.
package trace

import (
	"fmt"
	"sort"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// ID is an arena index identifying one event node within a Trace.
type ID int

// None marks an absent back-reference.
const None ID = -1

// Kind discriminates the event union.
type Kind uint8

const (
	// KindMessage is a conversation message (user, assistant, system).
	KindMessage Kind = iota
	// KindToolCall is a tool invocation issued by a message.
	KindToolCall
	// KindToolOutput is the output answering a tool call.
	KindToolOutput
)

// String returns the variant discriminant used by the selector.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "Message"
	case KindToolCall:
		return "ToolCall"
	case KindToolOutput:
		return "ToolOutput"
	default:
		return "Unknown"
	}
}

// FunctionCall is the function portion of a tool call.
type FunctionCall struct {
	Name      string
	Arguments map[string]any
}

// Attr returns a named attribute of the function call.
func (f *FunctionCall) Attr(name string) (any, error) {
	switch name {
	case "name":
		return f.Name, nil
	case "arguments":
		return f.Arguments, nil
	}
	return nil, errors.Attribute("trace.FunctionCall.Attr", name, []string{"name", "arguments"})
}

// Message is a conversation message.
type Message struct {
	Role    string
	Content string
	// ToolCalls lists the arena ids of tool calls issued by this message.
	ToolCalls []ID
	// Raw preserves the original record for attributes that were not
	// promoted to first-class fields.
	Raw map[string]any
}

// ToolCall is a tool invocation.
type ToolCall struct {
	// CallID is the wire-level id used to pair the call with its output.
	CallID   string
	Type     string
	Function FunctionCall
	// Message is the arena id of the originating message, None if the
	// call appeared as a top-level record.
	Message ID
	// Output is the arena id of the answering tool output, None while
	// unanswered.
	Output ID
	Raw    map[string]any
}

// ToolOutput is the result of a tool call.
type ToolOutput struct {
	Role       string
	Content    string
	ToolCallID string
	// Call is the arena id of the tool call this output answers, None
	// if no call with a matching id was seen.
	Call ID
	Raw  map[string]any
}

// Event is the tagged union over the three event variants. Exactly one
// of Msg, Call, Out is non-nil, matching Kind.
type Event struct {
	Kind Kind
	Msg  *Message
	Call *ToolCall
	Out  *ToolOutput

	id   ID
	addr string
}

// ID returns the event's arena index.
func (e *Event) ID() ID { return e.id }

// Address returns the structural address of the event within the
// original input, e.g. "1" or "1.tool_calls.0".
func (e *Event) Address() string { return e.addr }

// TypeName returns the variant discriminant ("Message", "ToolCall",
// "ToolOutput") the selector matches on.
func (e *Event) TypeName() string { return e.Kind.String() }

// Content returns the textual payload of the event, empty for tool calls.
func (e *Event) Content() string {
	switch e.Kind {
	case KindMessage:
		return e.Msg.Content
	case KindToolOutput:
		return e.Out.Content
	default:
		return ""
	}
}

// raw returns the untyped payload backing the event.
func (e *Event) raw() map[string]any {
	switch e.Kind {
	case KindMessage:
		return e.Msg.Raw
	case KindToolCall:
		return e.Call.Raw
	default:
		return e.Out.Raw
	}
}

// promoted lists the first-class attribute names per variant.
func (e *Event) promoted() []string {
	switch e.Kind {
	case KindMessage:
		return []string{"role", "content", "tool_calls"}
	case KindToolCall:
		return []string{"id", "type", "function"}
	default:
		return []string{"role", "content", "tool_call_id"}
	}
}

// Attr returns a named attribute of the event. First-class fields are
// served from the typed variant; anything else falls back to the
// original untyped payload. Unknown names produce an attribute error
// listing the valid names.
func (e *Event) Attr(name string) (any, error) {
	switch e.Kind {
	case KindMessage:
		switch name {
		case "role":
			return e.Msg.Role, nil
		case "content":
			return e.Msg.Content, nil
		case "tool_calls":
			return e.Msg.ToolCalls, nil
		}
	case KindToolCall:
		switch name {
		case "id":
			return e.Call.CallID, nil
		case "type":
			return e.Call.Type, nil
		case "function":
			return &e.Call.Function, nil
		}
	case KindToolOutput:
		switch name {
		case "role":
			return e.Out.Role, nil
		case "content":
			return e.Out.Content, nil
		case "tool_call_id":
			return e.Out.ToolCallID, nil
		}
	}
	if raw := e.raw(); raw != nil {
		if v, ok := raw[name]; ok {
			return v, nil
		}
	}
	valid := e.promoted()
	for k := range e.raw() {
		valid = append(valid, k)
	}
	sort.Strings(valid)
	return nil, errors.Attribute("trace.Event.Attr", name, valid)
}

// FormatRange renders an address string locating a character range
// within the value at addr, in the "addr:start-end" form used for
// violation highlighting.
func FormatRange(addr string, start, end int) string {
	return fmt.Sprintf("%s:%d-%d", addr, start, end)
}
