package interp

import (
	"sort"

	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
)

// unresolvedIdents returns the names of identifiers within stmts that
// resolution left unresolved, sorted and deduplicated. A rule with any
// such identifier is not evaluated.
func unresolvedIdents(stmts []ast.Stmt) []string {
	found := make(map[string]struct{})
	for _, st := range stmts {
		walkStmt(st, func(n ast.Node) {
			if id, ok := n.(*ast.Identifier); ok && id.Sym == ast.Unresolved {
				found[id.QualifiedName()] = struct{}{}
			}
		})
	}
	if len(found) == 0 {
		return nil
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func walkStmt(st ast.Stmt, fn func(ast.Node)) {
	switch s := st.(type) {
	case nil:
	case *ast.Declaration:
		// Targets introduce names rather than reference them; only the
		// value expression can hold unresolved identifiers.
		fn(s)
		walkExpr(s.Value, fn)
	case *ast.ExprStmt:
		fn(s)
		walkExpr(s.X, fn)
	case *ast.RaisePolicy:
		fn(s)
		walkExpr(s.Exception, fn)
		for _, b := range s.Body {
			walkStmt(b, fn)
		}
	case *ast.Quantifier:
		fn(s)
		for _, b := range s.Body {
			walkStmt(b, fn)
		}
	case *ast.FunctionDef:
		fn(s)
		for _, b := range s.Body {
			walkStmt(b, fn)
		}
	case *ast.Import, *ast.FunctionSignature:
		fn(s)
	}
}

func walkExpr(e ast.Expr, fn func(ast.Node)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *ast.ArrayLit:
		for _, el := range x.Elems {
			walkExpr(el, fn)
		}
	case *ast.ObjectLit:
		for _, entry := range x.Entries {
			walkExpr(entry.Value, fn)
		}
	case *ast.MemberAccess:
		walkExpr(x.X, fn)
	case *ast.KeyAccess:
		walkExpr(x.X, fn)
		walkExpr(x.Key, fn)
	case *ast.BinaryExpr:
		walkExpr(x.Left, fn)
		walkExpr(x.Right, fn)
	case *ast.UnaryExpr:
		walkExpr(x.X, fn)
	case *ast.TernaryExpr:
		walkExpr(x.Then, fn)
		walkExpr(x.Cond, fn)
		walkExpr(x.Else, fn)
	case *ast.FunctionCall:
		walkExpr(x.Func, fn)
		for _, a := range x.Args {
			walkExpr(a, fn)
		}
		for _, kw := range x.Kwargs {
			walkExpr(kw.Value, fn)
		}
	case *ast.SemanticPattern:
		walkExpr(x.Tool, fn)
		for _, a := range x.Args {
			walkExpr(a, fn)
		}
	case *ast.SomeExpr:
		walkExpr(x.Candidates, fn)
	case *ast.ListComprehension:
		walkExpr(x.Iterable, fn)
		walkExpr(x.Elem, fn)
		walkExpr(x.Cond, fn)
	case *ast.Quantifier:
		for _, b := range x.Body {
			walkStmt(b, fn)
		}
	}
}
