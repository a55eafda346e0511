package trace

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Trace is one parsed agent run: the event arena, the ordered top-level
// event list, and the derived dataflow graph. A Trace is built once per
// evaluation and is read-only afterwards.
type Trace struct {
	// TraceID identifies the trace within one process, for logging.
	TraceID string

	nodes  []*Event
	events []ID
	flow   *Dataflow
}

// Len returns the number of top-level events.
func (t *Trace) Len() int { return len(t.events) }

// Events returns the top-level events in trace order.
func (t *Trace) Events() []*Event {
	out := make([]*Event, len(t.events))
	for i, id := range t.events {
		out[i] = t.nodes[id]
	}
	return out
}

// Node returns the event stored at the given arena id.
func (t *Trace) Node(id ID) (*Event, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, errors.Lookup("trace.Trace.Node", "event id out of range").WithDetail("event", int(id))
	}
	return t.nodes[id], nil
}

// Nodes returns every registered event (top-level and nested) in
// registration order, which follows trace order.
func (t *Trace) Nodes() []*Event { return t.nodes }

// Flow exposes the dataflow graph.
func (t *Trace) Flow() *Dataflow { return t.flow }

// HasFlow reports whether event a could have influenced event b.
func (t *Trace) HasFlow(a, b ID) (bool, error) {
	return t.flow.HasFlow(a, b)
}

// ParseJSON decodes and parses raw trace input. The payload is either a
// single list of event records or a list of such lists; dataflow edges
// are only constructed within each list.
func ParseJSON(data []byte) (*Trace, error) {
	const op = "trace.ParseJSON"
	var groups [][]map[string]any
	if err := json.Unmarshal(data, &groups); err == nil {
		return Parse(groups...)
	}
	var single []map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, errors.Wrap(err, errors.KindParse, op, "input is neither a list of records nor a list of lists")
	}
	return Parse(single)
}

// Parse classifies each raw record into a tagged Event, threads the
// Message-ToolCall-ToolOutput back-references, and builds the dataflow
// graph. Records matching none of the three known shapes fail with a
// parse error naming the offending record.
func Parse(groups ...[]map[string]any) (*Trace, error) {
	p := &parser{
		trace: &Trace{
			TraceID: uuid.NewString(),
			flow:    NewDataflow(),
		},
		callsByID: make(map[string]ID),
	}
	record := 0
	for _, group := range groups {
		// Flow is scoped to one top-level list: every event flows into
		// everything after it within the same list.
		seen := make(map[ID]struct{})
		for _, raw := range group {
			if err := p.parseRecord(raw, record, seen); err != nil {
				return nil, err
			}
			record++
		}
	}
	p.resolveOutputs()
	return p.trace, nil
}

type parser struct {
	trace     *Trace
	callsByID map[string]ID
	// lastCall is the arena id of the most recently seen tool call,
	// used when a tool output omits its tool_call_id.
	lastCall ID
	sawCall  bool
}

func (p *parser) register(e *Event, addr string, parents map[ID]struct{}) ID {
	id := ID(len(p.trace.nodes))
	e.id = id
	e.addr = addr
	p.trace.nodes = append(p.trace.nodes, e)
	p.trace.flow.Register(id, parents)
	return id
}

func copySet(in map[ID]struct{}) map[ID]struct{} {
	out := make(map[ID]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func (p *parser) parseRecord(raw map[string]any, record int, seen map[ID]struct{}) error {
	const op = "trace.Parse"
	addr := fmt.Sprintf("%d", record)

	switch {
	case hasKey(raw, "type"):
		call, err := parseToolCall(raw, record)
		if err != nil {
			return err
		}
		call.Message = None
		ev := &Event{Kind: KindToolCall, Call: call}
		id := p.register(ev, addr, copySet(seen))
		p.noteCall(id, call.CallID)
		seen[id] = struct{}{}
		p.trace.events = append(p.trace.events, id)

	case stringField(raw, "role") == "tool":
		out := &ToolOutput{
			Role:    "tool",
			Content: contentField(raw),
			Call:    None,
			Raw:     raw,
		}
		if idv, ok := raw["tool_call_id"].(string); ok {
			out.ToolCallID = idv
		} else if p.sawCall {
			// Inherit the id of the most recently seen tool call.
			out.ToolCallID = p.trace.nodes[p.lastCall].Call.CallID
		}
		ev := &Event{Kind: KindToolOutput, Out: out}
		id := p.register(ev, addr, copySet(seen))
		seen[id] = struct{}{}
		p.trace.events = append(p.trace.events, id)

	case hasKey(raw, "role"):
		msg := &Message{
			Role:    stringField(raw, "role"),
			Content: contentField(raw),
			Raw:     raw,
		}
		ev := &Event{Kind: KindMessage, Msg: msg}
		msgID := p.register(ev, addr, copySet(seen))
		seen[msgID] = struct{}{}

		// Tool calls issued by the message flow from everything that
		// flowed into the message, plus the message itself.
		if rawCalls, ok := raw["tool_calls"].([]any); ok {
			for j, rawCall := range rawCalls {
				cm, ok := rawCall.(map[string]any)
				if !ok {
					return errors.ParseRecord(op, record, fmt.Sprintf("tool_calls[%d] is not an object", j))
				}
				call, err := parseToolCall(cm, record)
				if err != nil {
					return err
				}
				call.Message = msgID
				callEv := &Event{Kind: KindToolCall, Call: call}
				callAddr := fmt.Sprintf("%d.tool_calls.%d", record, j)
				callID := p.register(callEv, callAddr, copySet(seen))
				p.noteCall(callID, call.CallID)
				msg.ToolCalls = append(msg.ToolCalls, callID)
				seen[callID] = struct{}{}
			}
		}
		p.trace.events = append(p.trace.events, msgID)

	default:
		return errors.ParseRecord(op, record, "record matches no known event shape (message, tool call, tool output)")
	}
	return nil
}

func (p *parser) noteCall(id ID, callID string) {
	p.lastCall = id
	p.sawCall = true
	if callID != "" {
		p.callsByID[callID] = id
	}
}

// resolveOutputs links each tool output to the call carrying a matching
// id, in both directions.
func (p *parser) resolveOutputs() {
	for _, ev := range p.trace.nodes {
		if ev.Kind != KindToolOutput || ev.Out.ToolCallID == "" {
			continue
		}
		callID, ok := p.callsByID[ev.Out.ToolCallID]
		if !ok {
			continue
		}
		ev.Out.Call = callID
		p.trace.nodes[callID].Call.Output = ev.id
	}
}

func parseToolCall(raw map[string]any, record int) (*ToolCall, error) {
	const op = "trace.Parse"
	call := &ToolCall{
		Type:   stringField(raw, "type"),
		Output: None,
		Raw:    raw,
	}
	if call.Type == "" {
		call.Type = "function"
	}
	switch idv := raw["id"].(type) {
	case string:
		call.CallID = idv
	case float64:
		call.CallID = fmt.Sprintf("%v", idv)
	case nil:
	default:
		call.CallID = fmt.Sprintf("%v", idv)
	}
	fn, ok := raw["function"].(map[string]any)
	if !ok {
		return nil, errors.ParseRecord(op, record, "tool call has no function object")
	}
	call.Function.Name = stringField(fn, "name")
	call.Function.Arguments = argumentsField(fn["arguments"])
	return call, nil
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// contentField coerces a record's content to text. Non-string content
// (structured content blocks) is kept as its JSON rendering.
func contentField(m map[string]any) string {
	switch v := m["content"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// argumentsField accepts either a decoded object or the serialized JSON
// string some providers emit.
func argumentsField(v any) map[string]any {
	switch args := v.(type) {
	case map[string]any:
		return args
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(args), &decoded); err == nil {
			return decoded
		}
		return map[string]any{"raw": args}
	default:
		return map[string]any{}
	}
}
