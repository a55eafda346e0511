package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

func testTrace(t *testing.T) *trace.Trace {
	t.Helper()
	tr, err := trace.Parse([]map[string]any{
		{"role": "user", "content": "delete everything"},
		{
			"role": "assistant",
			"tool_calls": []any{
				map[string]any{
					"id":       "call_1",
					"function": map[string]any{"name": "delete", "arguments": map[string]any{"path": "/tmp", "force": true}},
				},
			},
		},
		{"role": "tool", "content": "removed", "tool_call_id": "call_1"},
	})
	require.NoError(t, err)
	return tr
}

func TestSelectAllMessages(t *testing.T) {
	sel := New(testTrace(t))

	matches := sel.SelectAll("Message")
	require.Len(t, matches, 2)
	assert.Equal(t, "0", matches[0].Addr)
	assert.Equal(t, "1", matches[1].Addr)
	assert.Equal(t, 0, matches[0].Index)
	assert.Equal(t, 1, matches[1].Index)
}

func TestSelectAllFindsNestedToolCalls(t *testing.T) {
	sel := New(testTrace(t))

	matches := sel.SelectAll("ToolCall")
	require.Len(t, matches, 1)
	assert.Equal(t, "1.tool_calls.0", matches[0].Addr)

	ev, ok := matches[0].Value.(*trace.Event)
	require.True(t, ok)
	assert.Equal(t, "delete", ev.Call.Function.Name)
}

func TestSelectAllToolOutputs(t *testing.T) {
	sel := New(testTrace(t))

	matches := sel.SelectAll("ToolOutput")
	require.Len(t, matches, 1)
	assert.Equal(t, "2", matches[0].Addr)
}

func TestSelectScalars(t *testing.T) {
	sel := New(testTrace(t))

	t.Run("strings inside events", func(t *testing.T) {
		matches := sel.SelectAll("str")
		// Contents are walked into; promoted fields like roles and
		// function names are not.
		var addrs []string
		for _, m := range matches {
			addrs = append(addrs, m.Addr)
		}
		assert.Contains(t, addrs, "0.content")
		assert.Contains(t, addrs, "2.content")
		assert.Contains(t, addrs, "1.tool_calls.0.function.arguments.path")
	})

	t.Run("bool argument", func(t *testing.T) {
		matches := sel.SelectAll("bool")
		require.Len(t, matches, 1)
		assert.Equal(t, "1.tool_calls.0.function.arguments.force", matches[0].Addr)
		assert.Equal(t, true, matches[0].Value)
	})
}

func TestSelectOverPlainValue(t *testing.T) {
	sel := New(nil)

	value := map[string]any{
		"b": "two",
		"a": []any{float64(1), "one", nil},
	}
	matches := sel.Select("number", value, -1)
	require.Len(t, matches, 1)
	assert.Equal(t, float64(1), matches[0].Value)
	assert.Equal(t, "-1.a.0", matches[0].Addr)

	t.Run("deterministic key order", func(t *testing.T) {
		strs := sel.Select("str", value, -1)
		require.Len(t, strs, 2)
		assert.Equal(t, "-1.a.1", strs[0].Addr)
		assert.Equal(t, "-1.b", strs[1].Addr)
	})

	t.Run("none", func(t *testing.T) {
		nones := sel.Select("None", value, -1)
		require.Len(t, nones, 1)
		assert.Equal(t, "-1.a.2", nones[0].Addr)
	})
}

func TestSelectIntPromotedToNumber(t *testing.T) {
	sel := New(nil)
	matches := sel.Select("number", []any{7}, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, float64(7), matches[0].Value)
}

func TestSelectFunctionCall(t *testing.T) {
	sel := New(testTrace(t))
	matches := sel.SelectAll("FunctionCall")
	require.Len(t, matches, 1)
	assert.Equal(t, "1.tool_calls.0.function", matches[0].Addr)
	fc, ok := matches[0].Value.(*trace.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "delete", fc.Name)
}

func TestSelectSkipsUnsupportedValues(t *testing.T) {
	sel := New(nil)
	assert.Empty(t, sel.Select("str", func() {}, 0))
	assert.Empty(t, sel.Select("Message", struct{ X int }{1}, 0))
}
