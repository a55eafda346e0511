package interp

import (
	"context"
	"fmt"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/selector"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// bindingEnv is a persistent environment frame. Binding extends the
// chain, so backtracking is free and match snapshots stay valid.
type bindingEnv struct {
	parent *bindingEnv
	name   string
	value  any
	addr   string
}

func (e *bindingEnv) bind(name string, value any, addr string) *bindingEnv {
	return &bindingEnv{parent: e, name: name, value: value, addr: addr}
}

func (e *bindingEnv) lookup(name string) (any, string, bool) {
	for f := e; f != nil; f = f.parent {
		if f.name == name {
			return f.value, f.addr, true
		}
	}
	return nil, "", false
}

func (e *bindingEnv) names() map[string]struct{} {
	out := make(map[string]struct{})
	for f := e; f != nil; f = f.parent {
		if f.name != "" {
			out[f.name] = struct{}{}
		}
	}
	return out
}

// search runs the binding search of one rule. It is single-threaded:
// the depth-first enumeration is sequential and deterministic in trace
// order, with predicate invocations as the only suspension points.
type search struct {
	in  *Interpreter
	tr  *trace.Trace
	sel *selector.Selector

	// marks accumulates predicate-reported ranges along the current
	// branch; truncated on backtrack.
	marks []string

	// quantCount is the aggregate statistic of the last quantifier
	// clause evaluated.
	quantCount int
	quantSeen  bool
}

func newSearch(in *Interpreter, tr *trace.Trace) *search {
	return &search{in: in, tr: tr, sel: selector.New(tr)}
}

type ruleOutcome struct {
	fired      bool
	addresses  []string
	count      int
	violations []Violation
}

type match struct {
	env       *bindingEnv
	addresses []string
}

// run evaluates one rule body with existential semantics: the rule
// fires if any complete binding passes every filter. The first
// satisfying binding wins unless the interpreter collects all
// violations.
func (s *search) run(ctx context.Context, r rule) (ruleOutcome, error) {
	var matches []match
	cb := callbacks{
		onMatch: func(env *bindingEnv, addrs []string) (bool, error) {
			matches = append(matches, match{env: env, addresses: addrs})
			return !s.in.collectAll, nil
		},
	}
	if err := s.searchBody(ctx, r.body, nil, cb); err != nil {
		return ruleOutcome{}, err
	}

	out := ruleOutcome{fired: len(matches) > 0, count: len(matches)}
	if s.quantSeen {
		out.count = s.quantCount
	}
	for _, m := range matches {
		out.addresses = appendUnique(out.addresses, m.addresses...)
	}
	if r.raise != nil {
		for _, m := range matches {
			exception := any(nil)
			if r.raise.Exception != nil {
				v, err := s.evalExpr(ctx, r.raise.Exception, m.env)
				if err != nil {
					return ruleOutcome{}, err
				}
				exception = v.v
			}
			out.violations = append(out.violations, Violation{
				Exception: exception,
				Addresses: m.addresses,
			})
		}
	}
	return out, nil
}

// callbacks receive complete satisfying bindings and counterexample
// bindings found by a body search. Returning stop ends the search.
type callbacks struct {
	onMatch   func(env *bindingEnv, addrs []string) (stop bool, err error)
	onCounter func(env *bindingEnv, addrs []string) (stop bool, err error)
}

// clause is a boolean filter of a rule body, scheduled to run at the
// earliest point its declared dependencies are bound.
type clause struct {
	expr  ast.Expr
	quant *ast.Quantifier
	// after is the number of declarations that must be bound before
	// the clause can run.
	after int
}

type bodyState struct {
	decls     []*ast.Declaration
	clauses   []clause
	base      *bindingEnv
	marksBase int
}

// newBodyState partitions a body into ordered declarations and
// scheduled filter clauses. Function definitions are bound into the
// environment up front.
func (s *search) newBodyState(stmts []ast.Stmt, env *bindingEnv) (*bodyState, *bindingEnv, error) {
	var decls []*ast.Declaration
	var raw []clause
	for _, st := range stmts {
		switch t := st.(type) {
		case *ast.Declaration:
			decls = append(decls, t)
		case *ast.ExprStmt:
			raw = append(raw, clause{expr: t.X})
		case *ast.Quantifier:
			raw = append(raw, clause{quant: t})
		case *ast.FunctionDef:
			env = env.bind(t.Name, &funcValue{def: t, env: env}, "")
		case *ast.Import, *ast.FunctionSignature:
		default:
			return nil, nil, errors.Evaluation("interp.search", fmt.Sprintf("unsupported clause %T", st))
		}
	}

	pre := env.names()
	ordered, err := ast.OrderDeclarations(decls, pre)
	if err != nil {
		return nil, nil, err
	}

	// Names each declaration introduces, positionally, so a clause can
	// be scheduled right after its last dependency binds.
	declared := make(map[string]int, len(ordered))
	for i, d := range ordered {
		for _, name := range ast.TargetNames(d) {
			declared[name] = i
		}
	}
	for i := range raw {
		var free []string
		if raw[i].quant != nil {
			free = ast.StmtsFreeVars(raw[i].quant.Body)
		} else {
			free = ast.FreeVars(raw[i].expr)
		}
		after := 0
		for _, name := range free {
			if _, ok := pre[name]; ok {
				continue
			}
			if j, ok := declared[name]; ok && j+1 > after {
				after = j + 1
			}
		}
		raw[i].after = after
	}

	return &bodyState{
		decls:     ordered,
		clauses:   raw,
		base:      env,
		marksBase: len(s.marks),
	}, env, nil
}

// searchBody enumerates bindings for stmts depth-first in trace order,
// reporting complete satisfying bindings and counterexamples through
// cb.
func (s *search) searchBody(ctx context.Context, stmts []ast.Stmt, env *bindingEnv, cb callbacks) error {
	st, env, err := s.newBodyState(stmts, env)
	if err != nil {
		return err
	}
	_, err = s.dfs(ctx, st, 0, env, cb)
	return err
}

func (s *search) dfs(ctx context.Context, st *bodyState, i int, env *bindingEnv, cb callbacks) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, errors.Wrap(err, errors.KindCanceled, "interp.search", "evaluation abandoned")
	}

	// Filters whose dependencies are now fully bound run before the
	// next declaration extends the environment.
	for _, c := range st.clauses {
		if c.after != i {
			continue
		}
		truth, excluded, err := s.evalClause(ctx, c, env)
		if err != nil {
			if errors.IsKind(err, errors.KindLookup) {
				// The candidate does not match; prune the branch.
				return false, nil
			}
			return true, err
		}
		if excluded {
			continue
		}
		if !truth {
			if cb.onCounter != nil {
				return cb.onCounter(env, s.branchAddresses(st, env))
			}
			return false, nil
		}
	}

	if i == len(st.decls) {
		return cb.onMatch(env, s.branchAddresses(st, env))
	}

	cands, err := s.candidates(ctx, st.decls[i], env)
	if err != nil {
		if errors.IsKind(err, errors.KindLookup) {
			return false, nil
		}
		return true, err
	}
	for _, cand := range cands {
		next := env
		for _, pair := range cand {
			next = next.bind(pair.name, pair.value, pair.addr)
		}
		checkpoint := len(s.marks)
		stop, err := s.dfs(ctx, st, i+1, next, cb)
		if err != nil {
			return true, err
		}
		s.marks = s.marks[:checkpoint]
		if stop {
			return true, nil
		}
	}
	return false, nil
}

// evalClause evaluates one filter clause. A clause that consists of a
// non-cacheable predicate call is excluded from the rule's boolean
// semantics. A quantifier clause holds when its combination rule
// fires; its implicated addresses join the branch marks and its
// statistic is retained for the report.
func (s *search) evalClause(ctx context.Context, c clause, env *bindingEnv) (truth, excluded bool, err error) {
	if c.quant != nil {
		outcome, err := s.evalQuantifier(ctx, c.quant, env)
		if err != nil {
			return false, false, err
		}
		s.quantCount = outcome.count
		s.quantSeen = true
		if outcome.fired {
			s.marks = append(s.marks, outcome.addresses...)
		}
		return outcome.fired, false, nil
	}
	v, err := s.evalExpr(ctx, c.expr, env)
	if err != nil {
		return false, false, err
	}
	if v.excluded {
		return false, true, nil
	}
	return truthy(v.v), false, nil
}

type quantOutcome struct {
	fired     bool
	addresses []string
	count     int
}

// evalQuantifier fully enumerates the quantifier body's candidate
// space. forall fires on the first counterexample binding and reports
// its addresses; count fires iff the number of satisfying bindings
// lies within [Min, Max].
func (s *search) evalQuantifier(ctx context.Context, q *ast.Quantifier, env *bindingEnv) (quantOutcome, error) {
	satisfied := 0
	var matched []string
	var counters []string

	cb := callbacks{
		onMatch: func(_ *bindingEnv, addrs []string) (bool, error) {
			satisfied++
			matched = appendUnique(matched, addrs...)
			return false, nil
		},
		onCounter: func(_ *bindingEnv, addrs []string) (bool, error) {
			counters = appendUnique(counters, addrs...)
			// First counterexample is decisive for forall unless all
			// violations are collected; count needs the full space
			// either way.
			return q.Kind == ast.QuantForall && !s.in.collectAll, nil
		},
	}
	if err := s.searchBody(ctx, q.Body, env, cb); err != nil {
		return quantOutcome{}, err
	}

	out := quantOutcome{count: satisfied}
	switch q.Kind {
	case ast.QuantForall:
		out.fired = len(counters) > 0
		out.addresses = counters
	case ast.QuantCount:
		out.fired = satisfied >= q.Min && (q.Max < 0 || satisfied <= q.Max)
		out.addresses = matched
	}
	return out, nil
}

// branchAddresses resolves the addresses implicated by the current
// branch: predicate-reported range marks when present, otherwise the
// addresses of the values bound within this body.
func (s *search) branchAddresses(st *bodyState, env *bindingEnv) []string {
	if len(s.marks) > st.marksBase {
		out := make([]string, len(s.marks)-st.marksBase)
		copy(out, s.marks[st.marksBase:])
		return out
	}
	var out []string
	for f := env; f != nil && f != st.base; f = f.parent {
		if f.addr != "" {
			out = append([]string{f.addr}, out...)
		}
	}
	return out
}

func appendUnique(dst []string, more ...string) []string {
	for _, m := range more {
		dup := false
		for _, d := range dst {
			if d == m {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, m)
		}
	}
	return dst
}
