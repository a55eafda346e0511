package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("declared name", func(t *testing.T) {
		root := Doc("p",
			Raise(Str("admin message"),
				Select("msg", "Message"),
				Filter(Eq(Member(Ident("msg"), "role"), Str("admin"))),
			),
		)
		Resolve(root, nil)
		require.True(t, root.Valid(), "errors: %v", root.Errors)

		rule := root.Stmts[0].(*RaisePolicy)
		filter := rule.Body[1].(*ExprStmt)
		ident := filter.X.(*BinaryExpr).Left.(*MemberAccess).X.(*Identifier)
		assert.NotEqual(t, Unresolved, ident.Sym)
		assert.NotEqual(t, Global, ident.Sym)
	})

	t.Run("global fallback", func(t *testing.T) {
		root := Doc("p",
			Raise(Str("pii"),
				Select("msg", "Message"),
				Filter(Call("pii", Member(Ident("msg"), "content"))),
			),
		)
		Resolve(root, GlobalSet{"pii": {}})
		require.True(t, root.Valid(), "errors: %v", root.Errors)

		rule := root.Stmts[0].(*RaisePolicy)
		call := rule.Body[1].(*ExprStmt).X.(*FunctionCall)
		assert.Equal(t, Global, call.Func.Sym)
	})

	t.Run("unresolved identifier", func(t *testing.T) {
		root := Doc("p",
			Raise(Str("x"), Filter(Ident("nowhere"))),
		)
		Resolve(root, nil)
		require.Len(t, root.Errors, 1)
		assert.Contains(t, root.Errors[0].Error(), "nowhere")

		ident := root.Stmts[0].(*RaisePolicy).Body[0].(*ExprStmt).X.(*Identifier)
		assert.Equal(t, Unresolved, ident.Sym)
	})

	t.Run("forward reference within a body", func(t *testing.T) {
		// Declarations bind throughout their body, not just below.
		root := Doc("p",
			Raise(Str("x"),
				Filter(Eq(Ident("threshold"), Number(3))),
				Let("threshold", Number(3)),
			),
		)
		Resolve(root, nil)
		assert.True(t, root.Valid(), "errors: %v", root.Errors)
	})

	t.Run("inner scope shadows outer", func(t *testing.T) {
		root := Doc("p",
			Let("x", Number(1)),
			Raise(Str("shadowed"),
				Let("x", Number(2)),
				Filter(Eq(Ident("x"), Number(2))),
			),
		)
		Resolve(root, nil)
		assert.True(t, root.Valid(), "errors: %v", root.Errors)
	})

	t.Run("cyclic declarations", func(t *testing.T) {
		root := Doc("p",
			Raise(Str("x"),
				Let("a", Ident("b")),
				Let("b", Ident("a")),
			),
		)
		Resolve(root, nil)
		require.NotEmpty(t, root.Errors)
		assert.Contains(t, root.Errors[0].Error(), "cyclic")
	})

	t.Run("comprehension variable", func(t *testing.T) {
		root := Doc("p",
			Let("names", &ListComprehension{
				Elem:     Member(Ident("c"), "function"),
				Var:      "c",
				Iterable: Ident("calls"),
			}),
			Select("calls", "ToolCall"),
		)
		Resolve(root, nil)
		assert.True(t, root.Valid(), "errors: %v", root.Errors)
	})
}

func TestTargetNames(t *testing.T) {
	tests := []struct {
		name string
		decl *Declaration
		want []string
	}{
		{"identifier", Let("x", Number(1)), []string{"x"}},
		{"typed", Select("msg", "Message"), []string{"msg"}},
		{
			"array destructure",
			Destructure(Array(Ident("a"), Wild(), Ident("b")), Ident("v")),
			[]string{"a", "b"},
		},
		{
			"object destructure",
			Destructure(Object(Entry("q", Ident("query"))), Ident("v")),
			[]string{"query"},
		},
		{
			"tool pattern",
			Destructure(ToolPattern(Str("search"), Object(Entry("q", Ident("q")))), nil),
			[]string{"q"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetNames(tt.decl))
		})
	}
}

func TestFreeVars(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want []string
	}{
		{"identifier", Ident("x"), []string{"x"}},
		{"literal", Str("x"), nil},
		{
			"binary sorted",
			Eq(Ident("z"), Ident("a")),
			[]string{"a", "z"},
		},
		{
			"call name excluded",
			Call("pii", Member(Ident("msg"), "content")),
			[]string{"msg"},
		},
		{
			"comprehension binds its variable",
			&ListComprehension{
				Elem:     Member(Ident("c"), "name"),
				Var:      "c",
				Iterable: Ident("calls"),
				Cond:     Ne(Ident("c"), Ident("skip")),
			},
			[]string{"calls", "skip"},
		},
		{
			"ternary",
			Cond(Ident("a"), Ident("b"), Ident("c")),
			[]string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeVars(tt.expr)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStmtsFreeVars(t *testing.T) {
	// A quantifier body exposes only names its own declarations do not bind.
	body := []Stmt{
		Select("call", "ToolCall"),
		Filter(Flow(Ident("msg"), Ident("call"))),
	}
	assert.Equal(t, []string{"msg"}, StmtsFreeVars(body))
}

func TestOrderDeclarations(t *testing.T) {
	t.Run("dependency order", func(t *testing.T) {
		a := Let("a", Ident("b"))
		b := Let("b", Number(1))
		ordered, err := OrderDeclarations([]*Declaration{a, b}, nil)
		require.NoError(t, err)
		assert.Equal(t, []*Declaration{b, a}, ordered)
	})

	t.Run("stable among ready", func(t *testing.T) {
		a := Let("a", Number(1))
		b := Let("b", Number(2))
		c := Let("c", Number(3))
		ordered, err := OrderDeclarations([]*Declaration{a, b, c}, nil)
		require.NoError(t, err)
		assert.Equal(t, []*Declaration{a, b, c}, ordered)
	})

	t.Run("pre-bound names are not dependencies", func(t *testing.T) {
		a := Let("a", Ident("outer"))
		ordered, err := OrderDeclarations([]*Declaration{a}, map[string]struct{}{"outer": {}})
		require.NoError(t, err)
		assert.Len(t, ordered, 1)
	})

	t.Run("cycle", func(t *testing.T) {
		a := Let("a", Ident("b"))
		b := Let("b", Ident("a"))
		_, err := OrderDeclarations([]*Declaration{a, b}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cyclic")
	})
}

func TestScopeLookup(t *testing.T) {
	outer := NewScope(nil)
	outer.Declare(&Symbol{ID: 1, Name: "x"})
	inner := NewScope(outer)
	inner.Declare(&Symbol{ID: 2, Name: "x"})
	inner.Declare(&Symbol{ID: 3, Name: "y"})

	assert.Equal(t, SymbolID(2), inner.Lookup("x").ID, "innermost wins")
	assert.Equal(t, SymbolID(1), outer.Lookup("x").ID)
	assert.Equal(t, SymbolID(3), inner.Lookup("y").ID)
	assert.Nil(t, outer.Lookup("y"))
	assert.Nil(t, inner.LookupLocal("missing"))
}
