package interp

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/stdlib"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

func testTrace(t *testing.T) *trace.Trace {
	t.Helper()
	tr, err := trace.Parse([]map[string]any{
		{"role": "user", "content": "please clean up the workspace"},
		{
			"role": "assistant",
			"tool_calls": []any{
				map[string]any{
					"id":       "call_1",
					"function": map[string]any{"name": "delete", "arguments": map[string]any{"path": "/tmp"}},
				},
			},
		},
		{"role": "tool", "content": "removed 4 files", "tool_call_id": "call_1"},
	})
	require.NoError(t, err)
	return tr
}

// evaluate resolves the document against the registry and runs it.
func evaluate(t *testing.T, in *Interpreter, registry *stdlib.Registry, tr *trace.Trace, root *ast.PolicyRoot) *Report {
	t.Helper()
	ast.Resolve(root, registry)
	require.Empty(t, root.Errors, "unexpected validation errors")
	report, err := in.Evaluate(context.Background(), root, tr)
	require.NoError(t, err)
	return report
}

func TestEvaluateRaiseFires(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	root := ast.Doc("p",
		ast.Raise(ast.Str("destructive tool call"),
			ast.Select("call", "ToolCall"),
			ast.Filter(ast.Eq(ast.Member(ast.Member(ast.Ident("call"), "function"), "name"), ast.Str("delete"))),
		),
	)
	report := evaluate(t, in, registry, testTrace(t), root)

	require.Len(t, report.Rules, 1)
	rr := report.Rules[0]
	assert.Equal(t, StatusSatisfied, rr.Status)
	assert.True(t, rr.Fired)
	assert.Equal(t, []string{"1.tool_calls.0"}, rr.Addresses)
	require.Len(t, rr.Violations, 1)
	assert.Equal(t, "destructive tool call", rr.Violations[0].Exception)
}

func TestEvaluateExhausted(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	// A document of bare clauses forms one implicit rule.
	root := ast.Doc("p",
		ast.Select("msg", "Message"),
		ast.Filter(ast.Eq(ast.Member(ast.Ident("msg"), "role"), ast.Str("admin"))),
	)
	report := evaluate(t, in, registry, testTrace(t), root)

	require.Len(t, report.Rules, 1)
	rr := report.Rules[0]
	assert.Equal(t, StatusExhausted, rr.Status)
	assert.False(t, rr.Fired)
	assert.Empty(t, rr.Addresses)
	assert.Empty(t, report.Fired())
}

func TestEvaluateForall(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	root := ast.Doc("p",
		ast.Forall(
			ast.Select("call", "ToolCall"),
			ast.Filter(ast.Ne(ast.Member(ast.Member(ast.Ident("call"), "function"), "name"), ast.Str("delete"))),
		),
	)

	t.Run("counterexample fires with its address", func(t *testing.T) {
		report := evaluate(t, in, registry, testTrace(t), root)
		rr := report.Rules[0]
		assert.True(t, rr.Fired)
		assert.Equal(t, []string{"1.tool_calls.0"}, rr.Addresses)
	})

	t.Run("holds on a clean trace", func(t *testing.T) {
		clean, err := trace.Parse([]map[string]any{
			{"role": "user", "content": "hello"},
			{
				"type":     "function",
				"id":       "c1",
				"function": map[string]any{"name": "search", "arguments": map[string]any{}},
			},
		})
		require.NoError(t, err)
		report := evaluate(t, in, registry, clean, root)
		rr := report.Rules[0]
		assert.False(t, rr.Fired)
		assert.Equal(t, StatusExhausted, rr.Status)
		assert.Equal(t, 1, rr.Count, "one satisfying binding was seen")
	})
}

func TestEvaluateCount(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})
	tr := testTrace(t)

	t.Run("within bounds", func(t *testing.T) {
		root := ast.Doc("p", ast.CountQ(2, -1, ast.Select("m", "Message")))
		rr := evaluate(t, in, registry, tr, root).Rules[0]
		assert.True(t, rr.Fired)
		assert.Equal(t, 2, rr.Count)
		assert.Equal(t, []string{"0", "1"}, rr.Addresses)
	})

	t.Run("below min", func(t *testing.T) {
		root := ast.Doc("p", ast.CountQ(3, -1, ast.Select("m", "Message")))
		rr := evaluate(t, in, registry, tr, root).Rules[0]
		assert.False(t, rr.Fired)
		assert.Equal(t, 2, rr.Count)
	})

	t.Run("above max", func(t *testing.T) {
		root := ast.Doc("p", ast.CountQ(0, 1, ast.Select("m", "Message")))
		rr := evaluate(t, in, registry, tr, root).Rules[0]
		assert.False(t, rr.Fired)
	})
}

func TestEvaluateSharedPrelude(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	// Top-level declarations are visible in every rule.
	root := ast.Doc("p",
		ast.Let("banned", ast.Str("delete")),
		ast.Raise(ast.Str("banned tool"),
			ast.Select("call", "ToolCall"),
			ast.Filter(ast.Eq(ast.Member(ast.Member(ast.Ident("call"), "function"), "name"), ast.Ident("banned"))),
		),
		ast.Raise(ast.Str("never"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Eq(ast.Member(ast.Ident("msg"), "content"), ast.Ident("banned"))),
		),
	)
	report := evaluate(t, in, registry, testTrace(t), root)
	require.Len(t, report.Rules, 2)

	assert.True(t, report.Rules[0].Fired)
	assert.Equal(t, 1, report.Rules[0].Rule)
	assert.False(t, report.Rules[1].Fired)
	assert.Equal(t, 2, report.Rules[1].Rule)
}

func TestEvaluateDataflow(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	root := ast.Doc("p",
		ast.Raise(ast.Str("user input reached a tool"),
			ast.Select("msg", "Message"),
			ast.Select("call", "ToolCall"),
			ast.Filter(ast.Eq(ast.Member(ast.Ident("msg"), "role"), ast.Str("user"))),
			ast.Filter(ast.Flow(ast.Ident("msg"), ast.Ident("call"))),
		),
	)
	rr := evaluate(t, in, registry, testTrace(t), root).Rules[0]
	assert.True(t, rr.Fired)
	assert.Equal(t, []string{"0", "1.tool_calls.0"}, rr.Addresses)
}

func TestEvaluatePredicateLocalization(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	tr, err := trace.Parse([]map[string]any{
		{"role": "user", "content": "contact me at jane@example.com please"},
	})
	require.NoError(t, err)

	root := ast.Doc("p",
		ast.Raise(ast.Str("pii leak"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Call("pii", ast.Member(ast.Ident("msg"), "content"))),
		),
	)
	rr := evaluate(t, in, registry, tr, root).Rules[0]
	require.True(t, rr.Fired)
	assert.Equal(t, []string{"0.content:14-30"}, rr.Addresses)
}

func TestEvaluateCacheablePredicateRunsOnce(t *testing.T) {
	registry := stdlib.Default(nil)
	var calls atomic.Int64
	registry.Register(stdlib.Predicate{
		Name:      "probe",
		Cacheable: true,
		Fn: func(_ context.Context, args []any, _ map[string]any) (stdlib.Result, error) {
			calls.Add(1)
			return stdlib.Result{Truth: true}, nil
		},
	})
	in := New(registry, Options{CollectAll: true})

	// Both messages bind role "user"/"assistant"; equal arguments hit
	// the session cache instead of re-running the predicate.
	tr, err := trace.Parse([]map[string]any{
		{"role": "user", "content": "a"},
		{"role": "user", "content": "b"},
	})
	require.NoError(t, err)

	root := ast.Doc("p",
		ast.Raise(ast.Str("probed"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Call("probe", ast.Member(ast.Ident("msg"), "role"))),
		),
	)
	rr := evaluate(t, in, registry, tr, root).Rules[0]
	assert.True(t, rr.Fired)
	assert.Equal(t, 2, rr.Count)
	assert.Equal(t, int64(1), calls.Load())

	hits, _ := in.Cache().Stats()
	assert.Equal(t, int64(1), hits)
}

func TestEvaluateNonCacheableExcluded(t *testing.T) {
	registry := stdlib.Default(nil)
	var calls atomic.Int64
	registry.Register(stdlib.Predicate{
		Name:      "tick",
		Cacheable: false,
		Fn: func(_ context.Context, _ []any, _ map[string]any) (stdlib.Result, error) {
			calls.Add(1)
			return stdlib.Result{Truth: false}, nil
		},
	})
	in := New(registry, Options{CollectAll: true})

	tr, err := trace.Parse([]map[string]any{
		{"role": "user", "content": "a"},
		{"role": "user", "content": "b"},
	})
	require.NoError(t, err)

	root := ast.Doc("p",
		ast.Raise(ast.Str("side effects only"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Call("tick", ast.Member(ast.Ident("msg"), "content"))),
		),
	)
	rr := evaluate(t, in, registry, tr, root).Rules[0]

	// tick's false truth is excluded, so every binding still matches,
	// and the side effect ran once per attempt.
	assert.True(t, rr.Fired)
	assert.Equal(t, 2, rr.Count)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEvaluateAsyncPredicate(t *testing.T) {
	registry := stdlib.Default(nil)
	registry.Register(stdlib.Predicate{
		Name:      "classify",
		Cacheable: true,
		Async:     true,
		Fn: func(_ context.Context, args []any, _ map[string]any) (stdlib.Result, error) {
			return stdlib.Result{Truth: args[0] == "user"}, nil
		},
	})
	in := New(registry, Options{})

	root := ast.Doc("p",
		ast.Raise(ast.Str("classified"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Call("classify", ast.Member(ast.Ident("msg"), "role"))),
		),
	)
	rr := evaluate(t, in, registry, testTrace(t), root).Rules[0]
	assert.True(t, rr.Fired)
	assert.Equal(t, []string{"0"}, rr.Addresses)
}

func TestEvaluateSomeExpr(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{CollectAll: true})

	root := ast.Doc("p",
		ast.Raise(ast.Str("found"),
			&ast.Declaration{
				Target: ast.Ident("x"),
				Value:  ast.Some(ast.Array(ast.Str("a"), ast.Str("b"), ast.Str("c"))),
			},
			ast.Filter(ast.Ne(ast.Ident("x"), ast.Str("b"))),
		),
	)
	rr := evaluate(t, in, registry, testTrace(t), root).Rules[0]
	assert.True(t, rr.Fired)
	assert.Equal(t, 2, rr.Count, "two of three choices satisfy the filter")
}

func TestEvaluatePolicyFunction(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	root := ast.Doc("p",
		&ast.FunctionDef{
			Name:   "is_tool",
			Params: []string{"m"},
			Body: []ast.Stmt{
				ast.Filter(ast.Eq(ast.Member(ast.Ident("m"), "role"), ast.Str("tool"))),
			},
		},
		ast.Raise(ast.Str("tool output seen"),
			ast.Select("out", "ToolOutput"),
			ast.Filter(ast.Call("is_tool", ast.Ident("out"))),
		),
	)
	rr := evaluate(t, in, registry, testTrace(t), root).Rules[0]
	assert.True(t, rr.Fired)
	assert.Equal(t, []string{"2"}, rr.Addresses)
}

func TestEvaluateUnresolvedRuleErrorsAlone(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{})

	root := ast.Doc("p",
		ast.Raise(ast.Str("valid"),
			ast.Select("msg", "Message"),
			ast.Filter(ast.Eq(ast.Member(ast.Ident("msg"), "role"), ast.Str("user"))),
		),
		ast.Raise(ast.Str("broken"), ast.Filter(ast.Ident("ghost"))),
	)
	ast.Resolve(root, registry)
	require.NotEmpty(t, root.Errors)

	report, err := in.Evaluate(context.Background(), root, testTrace(t))
	require.NoError(t, err)
	require.Len(t, report.Rules, 2)

	assert.True(t, report.Rules[0].Fired)
	assert.Equal(t, StatusError, report.Rules[1].Status)
	require.Error(t, report.Rules[1].Err)
	assert.Contains(t, report.Rules[1].Err.Error(), "ghost")
	require.Len(t, report.Errs(), 1)
}

func TestEvaluateValidatesInputs(t *testing.T) {
	in := New(stdlib.Default(nil), Options{})

	_, err := in.Evaluate(context.Background(), nil, testTrace(t))
	require.Error(t, err)

	_, err = in.Evaluate(context.Background(), ast.Doc("p"), nil)
	require.Error(t, err)
}

func TestEvaluateDeterministic(t *testing.T) {
	registry := stdlib.Default(nil)
	in := New(registry, Options{CollectAll: true})
	tr := testTrace(t)

	root := ast.Doc("p",
		ast.Raise(ast.Str("any message"), ast.Select("msg", "Message")),
	)
	first := evaluate(t, in, registry, tr, root).Rules[0]
	for i := 0; i < 5; i++ {
		again := evaluate(t, in, registry, tr, root).Rules[0]
		assert.Equal(t, first.Addresses, again.Addresses)
		assert.Equal(t, first.Count, again.Count)
	}
	assert.Equal(t, []string{"0", "1"}, first.Addresses)
}

func TestSplitRules(t *testing.T) {
	t.Run("prelude prepended to each rule", func(t *testing.T) {
		root := ast.Doc("p",
			ast.Let("x", ast.Number(1)),
			ast.Raise(ast.Str("a")),
			ast.Forall(),
		)
		rules := splitRules(root)
		require.Len(t, rules, 2)
		assert.Equal(t, 1, rules[0].index)
		assert.NotNil(t, rules[0].raise)
		assert.Len(t, rules[0].body, 1)
		assert.Equal(t, 2, rules[1].index)
		assert.Len(t, rules[1].body, 2)
	})

	t.Run("prelude only forms one implicit rule", func(t *testing.T) {
		root := ast.Doc("p", ast.Let("x", ast.Number(1)))
		rules := splitRules(root)
		require.Len(t, rules, 1)
		assert.Nil(t, rules[0].raise)
	})

	t.Run("imports are skipped", func(t *testing.T) {
		root := ast.Doc("p", &ast.Import{Module: "invariant"})
		assert.Empty(t, splitRules(root))
	})
}
