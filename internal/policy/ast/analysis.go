package ast

import (
	"sort"
	"strings"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Global is the SymbolID assigned to identifiers that resolve to a
// registered external predicate or stdlib name instead of a policy
// declaration.
const Global SymbolID = -1

// Globals is the registered external namespace identifiers fall back
// to when no enclosing scope declares them.
type Globals interface {
	HasGlobal(name string) bool
}

// GlobalSet is a simple Globals implementation.
type GlobalSet map[string]struct{}

// HasGlobal reports whether the name is registered.
func (g GlobalSet) HasGlobal(name string) bool {
	_, ok := g[name]
	return ok
}

// Resolve runs the two analysis passes over a freshly parsed document:
// declaration collection (registering the names every lexical-scope
// node introduces) and identifier resolution (walking enclosing scopes
// innermost first, falling back to the registered global namespace).
// Unresolved identifiers and cyclic declaration dependencies are
// appended to root.Errors; a rule carrying such errors is not
// evaluated.
func Resolve(root *PolicyRoot, globals Globals) {
	if globals == nil {
		globals = GlobalSet{}
	}
	r := &resolver{root: root, globals: globals, next: 1}
	root.Scope = NewScope(nil)
	r.collectBody(root.Stmts, root.Scope)
	for _, st := range root.Stmts {
		r.resolveStmt(st, root.Scope)
	}
	r.checkCycles(root.Stmts)
}

type resolver struct {
	root    *PolicyRoot
	globals Globals
	next    SymbolID
}

func (r *resolver) declare(scope *Scope, name string, decl Node) {
	if name == "" {
		return
	}
	scope.Declare(&Symbol{ID: r.next, Name: name, Decl: decl})
	r.next++
}

// collectBody registers every name introduced by the statements of one
// lexical scope. Declarations are visible throughout the body (the
// evaluator orders them by dependency, not lexically), so collection
// runs before any resolution.
func (r *resolver) collectBody(stmts []Stmt, scope *Scope) {
	for _, st := range stmts {
		switch s := st.(type) {
		case *Declaration:
			s.Scope = scope
			for _, name := range TargetNames(s) {
				r.declare(scope, name, s)
			}
		case *Import:
			name := s.Alias
			if name == "" {
				name = s.Module
			}
			r.declare(scope, name, s)
		case *FunctionSignature:
			r.declare(scope, s.Name, s)
		case *FunctionDef:
			r.declare(scope, s.Name, s)
		case *RaisePolicy:
			s.Scope = NewScope(scope)
			r.collectBody(s.Body, s.Scope)
		case *Quantifier:
			s.Scope = NewScope(scope)
			r.collectBody(s.Body, s.Scope)
		}
	}
}

func (r *resolver) resolveStmt(st Stmt, scope *Scope) {
	switch s := st.(type) {
	case *Declaration:
		r.resolveExpr(s.Value, scope)
	case *ExprStmt:
		r.resolveExpr(s.X, scope)
	case *RaisePolicy:
		if s.Exception != nil {
			r.resolveExpr(s.Exception, s.Scope)
		}
		for _, inner := range s.Body {
			r.resolveStmt(inner, s.Scope)
		}
	case *Quantifier:
		for _, inner := range s.Body {
			r.resolveStmt(inner, s.Scope)
		}
	case *FunctionDef:
		s.Scope = NewScope(scope)
		for _, p := range s.Params {
			r.declare(s.Scope, p, s)
		}
		r.collectBody(s.Body, s.Scope)
		for _, inner := range s.Body {
			r.resolveStmt(inner, s.Scope)
		}
	case *Import, *FunctionSignature:
		// Names only; nothing to resolve.
	}
}

func (r *resolver) resolveExpr(e Expr, scope *Scope) {
	switch x := e.(type) {
	case nil:
	case *Identifier:
		r.resolveIdent(x, scope)
	case *TypedIdentifier, *Wildcard, *ValueReference,
		*NumberLit, *StringLit, *BoolLit, *NoneLit:
	case *ArrayLit:
		for _, el := range x.Elems {
			r.resolveExpr(el, scope)
		}
	case *ObjectLit:
		for _, entry := range x.Entries {
			r.resolveExpr(entry.Value, scope)
		}
	case *MemberAccess:
		r.resolveExpr(x.X, scope)
	case *KeyAccess:
		r.resolveExpr(x.X, scope)
		r.resolveExpr(x.Key, scope)
	case *BinaryExpr:
		r.resolveExpr(x.Left, scope)
		r.resolveExpr(x.Right, scope)
	case *UnaryExpr:
		r.resolveExpr(x.X, scope)
	case *TernaryExpr:
		r.resolveExpr(x.Then, scope)
		r.resolveExpr(x.Cond, scope)
		r.resolveExpr(x.Else, scope)
	case *FunctionCall:
		r.resolveIdent(x.Func, scope)
		for _, a := range x.Args {
			r.resolveExpr(a, scope)
		}
		for _, kw := range x.Kwargs {
			r.resolveExpr(kw.Value, scope)
		}
	case *SemanticPattern:
		r.resolveExpr(x.Tool, scope)
		for _, a := range x.Args {
			r.resolveExpr(a, scope)
		}
	case *SomeExpr:
		r.resolveExpr(x.Candidates, scope)
	case *ListComprehension:
		r.resolveExpr(x.Iterable, scope)
		x.Scope = NewScope(scope)
		r.declare(x.Scope, x.Var, x)
		r.resolveExpr(x.Elem, x.Scope)
		if x.Cond != nil {
			r.resolveExpr(x.Cond, x.Scope)
		}
	case *Quantifier:
		x.Scope = NewScope(scope)
		r.collectBody(x.Body, x.Scope)
		for _, inner := range x.Body {
			r.resolveStmt(inner, x.Scope)
		}
	}
}

func (r *resolver) resolveIdent(id *Identifier, scope *Scope) {
	if id == nil {
		return
	}
	if sym := scope.Lookup(id.Name); sym != nil {
		id.Sym = sym.ID
		return
	}
	if r.globals.HasGlobal(id.QualifiedName()) || r.globals.HasGlobal(id.Name) {
		id.Sym = Global
		return
	}
	r.root.Errors = append(r.root.Errors,
		errors.Binding("ast.Resolve", "unresolved identifier "+id.QualifiedName()).
			WithDetail("line", id.Pos.Line).
			WithDetail("column", id.Pos.Column))
}

// checkCycles validates that the declarations of every rule body can be
// topologically ordered.
func (r *resolver) checkCycles(stmts []Stmt) {
	var decls []*Declaration
	for _, st := range stmts {
		switch s := st.(type) {
		case *Declaration:
			decls = append(decls, s)
		case *RaisePolicy:
			r.checkCycles(s.Body)
		case *Quantifier:
			r.checkCycles(s.Body)
		case *FunctionDef:
			r.checkCycles(s.Body)
		}
	}
	if len(decls) == 0 {
		return
	}
	if _, err := OrderDeclarations(decls, nil); err != nil {
		r.root.Errors = append(r.root.Errors, err)
	}
}

// TargetNames returns the names a declaration target introduces, in
// source order. Wildcards introduce nothing.
func TargetNames(d *Declaration) []string {
	var names []string
	var walk func(n Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case *Identifier:
			names = append(names, t.Name)
		case *TypedIdentifier:
			names = append(names, t.Name)
		case *ArrayLit:
			for _, el := range t.Elems {
				walk(el)
			}
		case *ObjectLit:
			for _, entry := range t.Entries {
				walk(entry.Value)
			}
		case *SemanticPattern:
			for _, a := range t.Args {
				walk(a)
			}
		}
	}
	walk(d.Target)
	return names
}

// FreeVars returns the set of variable names an expression reads that
// are not bound within the expression itself, sorted for determinism.
// Function-call names are not variables and are excluded.
func FreeVars(e Expr) []string {
	free := make(map[string]struct{})
	exprFreeVars(e, map[string]struct{}{}, free)
	out := make([]string, 0, len(free))
	for name := range free {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StmtsFreeVars returns the free variables of a statement list: the
// names read before any declaration in the list binds them. This is the
// dependency set a quantifier body exposes to its enclosing rule.
func StmtsFreeVars(stmts []Stmt) []string {
	bound := make(map[string]struct{})
	free := make(map[string]struct{})
	stmtsFree(stmts, bound, free)
	out := make([]string, 0, len(free))
	for name := range free {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func stmtsFree(stmts []Stmt, bound, free map[string]struct{}) {
	// Declarations bind throughout the body, forward references
	// included: collect them first.
	inner := make(map[string]struct{}, len(bound))
	for k := range bound {
		inner[k] = struct{}{}
	}
	for _, st := range stmts {
		if d, ok := st.(*Declaration); ok {
			for _, name := range TargetNames(d) {
				inner[name] = struct{}{}
			}
		}
	}
	for _, st := range stmts {
		switch s := st.(type) {
		case *Declaration:
			exprFreeVars(s.Value, inner, free)
		case *ExprStmt:
			exprFreeVars(s.X, inner, free)
		case *RaisePolicy:
			if s.Exception != nil {
				exprFreeVars(s.Exception, inner, free)
			}
			stmtsFree(s.Body, inner, free)
		case *Quantifier:
			stmtsFree(s.Body, inner, free)
		case *FunctionDef:
			fnBound := make(map[string]struct{}, len(inner))
			for k := range inner {
				fnBound[k] = struct{}{}
			}
			for _, p := range s.Params {
				fnBound[p] = struct{}{}
			}
			stmtsFree(s.Body, fnBound, free)
		}
	}
}

func exprFreeVars(e Expr, bound, free map[string]struct{}) {
	switch x := e.(type) {
	case nil:
	case *Identifier:
		if _, ok := bound[x.Name]; !ok {
			free[x.Name] = struct{}{}
		}
	case *TypedIdentifier, *Wildcard, *ValueReference,
		*NumberLit, *StringLit, *BoolLit, *NoneLit:
	case *ArrayLit:
		for _, el := range x.Elems {
			exprFreeVars(el, bound, free)
		}
	case *ObjectLit:
		for _, entry := range x.Entries {
			exprFreeVars(entry.Value, bound, free)
		}
	case *MemberAccess:
		exprFreeVars(x.X, bound, free)
	case *KeyAccess:
		exprFreeVars(x.X, bound, free)
		exprFreeVars(x.Key, bound, free)
	case *BinaryExpr:
		exprFreeVars(x.Left, bound, free)
		exprFreeVars(x.Right, bound, free)
	case *UnaryExpr:
		exprFreeVars(x.X, bound, free)
	case *TernaryExpr:
		exprFreeVars(x.Then, bound, free)
		exprFreeVars(x.Cond, bound, free)
		exprFreeVars(x.Else, bound, free)
	case *FunctionCall:
		for _, a := range x.Args {
			exprFreeVars(a, bound, free)
		}
		for _, kw := range x.Kwargs {
			exprFreeVars(kw.Value, bound, free)
		}
	case *SemanticPattern:
		exprFreeVars(x.Tool, bound, free)
		for _, a := range x.Args {
			exprFreeVars(a, bound, free)
		}
	case *SomeExpr:
		exprFreeVars(x.Candidates, bound, free)
	case *ListComprehension:
		exprFreeVars(x.Iterable, bound, free)
		inner := make(map[string]struct{}, len(bound)+1)
		for k := range bound {
			inner[k] = struct{}{}
		}
		inner[x.Var] = struct{}{}
		exprFreeVars(x.Elem, inner, free)
		if x.Cond != nil {
			exprFreeVars(x.Cond, inner, free)
		}
	case *Quantifier:
		stmtsFree(x.Body, bound, free)
	}
}

// OrderDeclarations topologically orders a rule's declarations so a
// declaration is only attempted once every identifier its value
// expression reads is already bound. pre holds names bound before the
// body runs (enclosing quantifier variables). The order is stable:
// among ready declarations, source order wins. A cyclic dependency is
// a binding error.
func OrderDeclarations(decls []*Declaration, pre map[string]struct{}) ([]*Declaration, error) {
	const op = "ast.OrderDeclarations"

	owner := make(map[string]int, len(decls))
	for i, d := range decls {
		for _, name := range TargetNames(d) {
			owner[name] = i
		}
	}

	deps := make([][]int, len(decls))
	for i, d := range decls {
		seen := make(map[int]struct{})
		for _, name := range FreeVars(d.Value) {
			if pre != nil {
				if _, ok := pre[name]; ok {
					continue
				}
			}
			j, ok := owner[name]
			if !ok || j == i {
				continue
			}
			if _, dup := seen[j]; !dup {
				seen[j] = struct{}{}
				deps[i] = append(deps[i], j)
			}
		}
	}

	done := make([]bool, len(decls))
	ordered := make([]*Declaration, 0, len(decls))
	for len(ordered) < len(decls) {
		progressed := false
		for i, d := range decls {
			if done[i] {
				continue
			}
			ready := true
			for _, j := range deps[i] {
				if !done[j] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				ordered = append(ordered, d)
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for i, d := range decls {
				if !done[i] {
					stuck = append(stuck, strings.Join(TargetNames(d), ","))
				}
			}
			return nil, errors.Binding(op,
				"cyclic dependency between declarations: "+strings.Join(stuck, " <-> "))
		}
	}
	return ordered, nil
}
