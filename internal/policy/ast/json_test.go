package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

func TestDecodePolicy(t *testing.T) {
	data := []byte(`{
		"source": "admin-check",
		"rules": [
			{"kind": "raise",
			 "exception": {"kind": "string", "value": "admin spoke"},
			 "body": [
				{"kind": "decl", "target": {"kind": "typed", "name": "msg", "type": "Message"}},
				{"kind": "binary", "op": "==",
				 "left": {"kind": "member", "x": {"kind": "ident", "name": "msg"}, "member": "role"},
				 "right": {"kind": "string", "value": "admin"}}
			 ]}
		]
	}`)

	root, err := DecodePolicy(data)
	require.NoError(t, err)
	assert.Equal(t, "admin-check", root.Source)
	require.Len(t, root.Stmts, 1)

	rule, ok := root.Stmts[0].(*RaisePolicy)
	require.True(t, ok)
	assert.Equal(t, "admin spoke", rule.Exception.(*StringLit).Value)
	require.Len(t, rule.Body, 2)

	decl := rule.Body[0].(*Declaration)
	target := decl.Target.(*TypedIdentifier)
	assert.Equal(t, "msg", target.Name)
	assert.Equal(t, "Message", target.Type)

	// A bare expression at statement position becomes a filter clause.
	filter, ok := rule.Body[1].(*ExprStmt)
	require.True(t, ok)
	bin := filter.X.(*BinaryExpr)
	assert.Equal(t, OpEq, bin.Op)
	assert.Equal(t, "role", bin.Left.(*MemberAccess).Member)
}

func TestDecodePolicyBareArray(t *testing.T) {
	root, err := DecodePolicy([]byte(`[
		{"kind": "decl",
		 "target": {"kind": "ident", "name": "x"},
		 "value": {"kind": "number", "value": 3}}
	]`))
	require.NoError(t, err)
	require.Len(t, root.Stmts, 1)
	decl := root.Stmts[0].(*Declaration)
	assert.True(t, decl.IsConstant())
	assert.Equal(t, float64(3), decl.Value.(*NumberLit).Value)
}

func TestDecodeQuantifiers(t *testing.T) {
	t.Run("forall", func(t *testing.T) {
		root, err := DecodePolicy([]byte(`[
			{"kind": "forall", "body": [
				{"kind": "decl", "target": {"kind": "typed", "name": "c", "type": "ToolCall"}}
			]}
		]`))
		require.NoError(t, err)
		q := root.Stmts[0].(*Quantifier)
		assert.Equal(t, QuantForall, q.Kind)
		assert.Equal(t, -1, q.Max)
	})

	t.Run("count with bounds", func(t *testing.T) {
		root, err := DecodePolicy([]byte(`[
			{"kind": "count", "min": 2, "max": 5, "body": []}
		]`))
		require.NoError(t, err)
		q := root.Stmts[0].(*Quantifier)
		assert.Equal(t, QuantCount, q.Kind)
		assert.Equal(t, 2, q.Min)
		assert.Equal(t, 5, q.Max)
	})

	t.Run("count unbounded above defaults to -1", func(t *testing.T) {
		root, err := DecodePolicy([]byte(`[
			{"kind": "count", "min": 1, "body": []}
		]`))
		require.NoError(t, err)
		q := root.Stmts[0].(*Quantifier)
		assert.Equal(t, 1, q.Min)
		assert.Equal(t, -1, q.Max)
	})
}

func TestDecodeExprKinds(t *testing.T) {
	root, err := DecodePolicy([]byte(`[
		{"kind": "expr", "x": {"kind": "ternary",
			"then": {"kind": "number", "value": 1},
			"cond": {"kind": "bool", "value": true},
			"else": {"kind": "none"}}},
		{"kind": "expr", "x": {"kind": "call", "func": "match",
			"args": [{"kind": "string", "value": "a+", "modifier": "regex"}],
			"kwargs": [{"name": "flags", "value": {"kind": "string", "value": "i"}}]}},
		{"kind": "expr", "x": {"kind": "tool_pattern",
			"tool": {"kind": "string", "value": "search"},
			"args": [{"kind": "object", "entries": [{"key": "q", "value": {"kind": "wildcard"}}]}]}},
		{"kind": "expr", "x": {"kind": "some",
			"candidates": {"kind": "array", "elems": [{"kind": "number", "value": 1}]}}},
		{"kind": "expr", "x": {"kind": "comprehension",
			"elem": {"kind": "ident", "name": "c"},
			"var": "c",
			"iterable": {"kind": "ident", "name": "calls"}}}
	]`))
	require.NoError(t, err)
	require.Len(t, root.Stmts, 5)

	tern := root.Stmts[0].(*ExprStmt).X.(*TernaryExpr)
	assert.IsType(t, &NoneLit{}, tern.Else)

	call := root.Stmts[1].(*ExprStmt).X.(*FunctionCall)
	assert.Equal(t, "match", call.Func.Name)
	assert.Equal(t, StringRegex, call.Args[0].(*StringLit).Modifier)
	require.Len(t, call.Kwargs, 1)
	assert.Equal(t, "flags", call.Kwargs[0].Name)

	pattern := root.Stmts[2].(*ExprStmt).X.(*SemanticPattern)
	assert.Equal(t, "search", pattern.Tool.(*StringLit).Value)

	some := root.Stmts[3].(*ExprStmt).X.(*SomeExpr)
	assert.IsType(t, &ArrayLit{}, some.Candidates)

	comp := root.Stmts[4].(*ExprStmt).X.(*ListComprehension)
	assert.Equal(t, "c", comp.Var)
	assert.Nil(t, comp.Cond)
}

func TestDecodePolicyErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json at all`},
		{"unknown kind", `[{"kind": "wat"}]`},
		{"missing kind", `[{"value": 1}]`},
		{"unknown modifier", `[{"kind": "expr", "x": {"kind": "string", "value": "s", "modifier": "nope"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePolicy([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}
}
