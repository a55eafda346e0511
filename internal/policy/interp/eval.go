package interp

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// val is an evaluated value together with the structural address it
// originates from, when it has one. excluded marks the truth of a
// non-cacheable predicate call, which never contributes to a rule's
// boolean semantics.
type val struct {
	v        any
	addr     string
	excluded bool
}

// wildcardVal is the runtime value of `*` in patterns; it compares
// equal to anything.
type wildcardVal struct{}

// typeRef is the runtime value of a value-type reference; it compares
// equal to events of that type.
type typeRef string

// funcValue is a policy-defined function closed over its definition
// environment.
type funcValue struct {
	def *ast.FunctionDef
	env *bindingEnv
}

// toolPattern is the runtime value of a semantic tool pattern used in
// comparisons against tool-call events.
type toolPattern struct {
	tool string
	args []map[string]any
}

func (s *search) evalExpr(ctx context.Context, e ast.Expr, env *bindingEnv) (val, error) {
	const op = "interp.evalExpr"
	switch x := e.(type) {
	case *ast.NumberLit:
		return val{v: x.Value}, nil
	case *ast.StringLit:
		return val{v: x.Value}, nil
	case *ast.BoolLit:
		return val{v: x.Value}, nil
	case *ast.NoneLit:
		return val{v: nil}, nil
	case *ast.Wildcard:
		return val{v: wildcardVal{}}, nil
	case *ast.ValueReference:
		return val{v: typeRef(x.TypeName)}, nil

	case *ast.ArrayLit:
		elems := make([]any, 0, len(x.Elems))
		for _, el := range x.Elems {
			v, err := s.evalExpr(ctx, el, env)
			if err != nil {
				return val{}, err
			}
			elems = append(elems, v.v)
		}
		return val{v: elems}, nil

	case *ast.ObjectLit:
		obj := make(map[string]any, len(x.Entries))
		for _, entry := range x.Entries {
			v, err := s.evalExpr(ctx, entry.Value, env)
			if err != nil {
				return val{}, err
			}
			obj[entry.Key] = v.v
		}
		return val{v: obj}, nil

	case *ast.Identifier:
		if v, addr, ok := env.lookup(x.Name); ok {
			return val{v: v, addr: addr}, nil
		}
		if x.Sym == ast.Global {
			return val{v: globalRef(x.QualifiedName())}, nil
		}
		return val{}, errors.Evaluation(op, "unbound identifier "+x.QualifiedName())

	case *ast.MemberAccess:
		base, err := s.evalExpr(ctx, x.X, env)
		if err != nil {
			return val{}, err
		}
		return s.member(base, x.Member)

	case *ast.KeyAccess:
		base, err := s.evalExpr(ctx, x.X, env)
		if err != nil {
			return val{}, err
		}
		key, err := s.evalExpr(ctx, x.Key, env)
		if err != nil {
			return val{}, err
		}
		return s.index(base, key.v)

	case *ast.BinaryExpr:
		return s.evalBinary(ctx, x, env)

	case *ast.UnaryExpr:
		v, err := s.evalExpr(ctx, x.X, env)
		if err != nil {
			return val{}, err
		}
		switch x.Op {
		case ast.OpNot:
			return val{v: !truthy(v.v)}, nil
		case ast.OpNeg:
			f, ok := toFloat(v.v)
			if !ok {
				return val{}, errors.Evaluation(op, "cannot negate a non-numeric value")
			}
			return val{v: -f}, nil
		default:
			return val{}, errors.Evaluation(op, "unknown unary operator "+string(x.Op))
		}

	case *ast.TernaryExpr:
		cond, err := s.evalExpr(ctx, x.Cond, env)
		if err != nil {
			return val{}, err
		}
		if truthy(cond.v) {
			return s.evalExpr(ctx, x.Then, env)
		}
		return s.evalExpr(ctx, x.Else, env)

	case *ast.FunctionCall:
		return s.evalCall(ctx, x, env)

	case *ast.SemanticPattern:
		return s.evalPattern(ctx, x, env)

	case *ast.ListComprehension:
		return s.evalComprehension(ctx, x, env)

	case *ast.Quantifier:
		outcome, err := s.evalQuantifier(ctx, x, env)
		if err != nil {
			return val{}, err
		}
		s.quantCount = outcome.count
		s.quantSeen = true
		if outcome.fired {
			s.marks = append(s.marks, outcome.addresses...)
		}
		return val{v: outcome.fired}, nil

	case *ast.SomeExpr:
		return val{}, errors.Evaluation(op, "non-deterministic choice is only valid as a declaration value")

	default:
		return val{}, errors.Evaluation(op, fmt.Sprintf("unsupported expression %T", e))
	}
}

// globalRef is a bare reference to a registered predicate.
type globalRef string

// member resolves `base.name`. Arena ids are dereferenced to their
// events first so navigation through back-references stays O(1).
func (s *search) member(base val, name string) (val, error) {
	v := base.v
	addr := childAddr(base.addr, name)

	if id, ok := v.(trace.ID); ok {
		ev, err := s.tr.Node(id)
		if err != nil {
			return val{}, err
		}
		v = ev
		addr = childAddr(ev.Address(), name)
	}

	switch b := v.(type) {
	case *trace.Event:
		got, err := b.Attr(name)
		if err != nil {
			return val{}, err
		}
		return val{v: got, addr: childAddr(b.Address(), name)}, nil
	case *trace.FunctionCall:
		got, err := b.Attr(name)
		if err != nil {
			return val{}, err
		}
		return val{v: got, addr: addr}, nil
	case map[string]any:
		got, ok := b[name]
		if !ok {
			return val{}, errors.Lookup("interp.member", "no key "+name)
		}
		return val{v: got, addr: addr}, nil
	default:
		return val{}, errors.Evaluation("interp.member", fmt.Sprintf("value of type %T has no members", v))
	}
}

// index resolves `base[key]`.
func (s *search) index(base val, key any) (val, error) {
	const op = "interp.index"
	switch b := base.v.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return val{}, errors.Evaluation(op, "mapping keys must be strings")
		}
		got, ok := b[k]
		if !ok {
			return val{}, errors.Lookup(op, "no key "+k)
		}
		return val{v: got, addr: childAddr(base.addr, k)}, nil
	case []any:
		i, ok := toFloat(key)
		if !ok {
			return val{}, errors.Evaluation(op, "list indices must be numbers")
		}
		idx := int(i)
		if idx < 0 || idx >= len(b) {
			return val{}, errors.Lookup(op, fmt.Sprintf("index %d out of range", idx))
		}
		return val{v: b[idx], addr: childAddr(base.addr, fmt.Sprintf("%d", idx))}, nil
	case []trace.ID:
		i, ok := toFloat(key)
		if !ok {
			return val{}, errors.Evaluation(op, "list indices must be numbers")
		}
		idx := int(i)
		if idx < 0 || idx >= len(b) {
			return val{}, errors.Lookup(op, fmt.Sprintf("index %d out of range", idx))
		}
		ev, err := s.tr.Node(b[idx])
		if err != nil {
			return val{}, err
		}
		return val{v: ev, addr: ev.Address()}, nil
	case string:
		i, ok := toFloat(key)
		if !ok {
			return val{}, errors.Evaluation(op, "string indices must be numbers")
		}
		idx := int(i)
		if idx < 0 || idx >= len(b) {
			return val{}, errors.Lookup(op, fmt.Sprintf("index %d out of range", idx))
		}
		return val{v: string(b[idx]), addr: base.addr}, nil
	default:
		return val{}, errors.Evaluation(op, fmt.Sprintf("value of type %T is not indexable", base.v))
	}
}

func (s *search) evalBinary(ctx context.Context, x *ast.BinaryExpr, env *bindingEnv) (val, error) {
	const op = "interp.evalBinary"

	// and/or short-circuit on truthiness.
	switch x.Op {
	case ast.OpAnd:
		left, err := s.evalExpr(ctx, x.Left, env)
		if err != nil {
			return val{}, err
		}
		if !truthy(left.v) {
			return val{v: false}, nil
		}
		right, err := s.evalExpr(ctx, x.Right, env)
		if err != nil {
			return val{}, err
		}
		return val{v: truthy(right.v)}, nil
	case ast.OpOr:
		left, err := s.evalExpr(ctx, x.Left, env)
		if err != nil {
			return val{}, err
		}
		if truthy(left.v) {
			return val{v: true}, nil
		}
		right, err := s.evalExpr(ctx, x.Right, env)
		if err != nil {
			return val{}, err
		}
		return val{v: truthy(right.v)}, nil
	}

	left, err := s.evalExpr(ctx, x.Left, env)
	if err != nil {
		return val{}, err
	}
	right, err := s.evalExpr(ctx, x.Right, env)
	if err != nil {
		return val{}, err
	}

	switch x.Op {
	case ast.OpEq:
		return val{v: equal(left.v, right.v)}, nil
	case ast.OpNe:
		return val{v: !equal(left.v, right.v)}, nil
	case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		return compare(x.Op, left.v, right.v)
	case ast.OpIn:
		ok, err := contains(right.v, left.v)
		if err != nil {
			return val{}, err
		}
		return val{v: ok}, nil
	case ast.OpContains:
		ok, err := contains(left.v, right.v)
		if err != nil {
			return val{}, err
		}
		return val{v: ok}, nil
	case ast.OpAdd:
		return add(left.v, right.v)
	case ast.OpFlow:
		return s.evalFlow(left, right)
	default:
		return val{}, errors.Evaluation(op, "unknown binary operator "+string(x.Op))
	}
}

// evalFlow answers `a -> b` through the dataflow graph. Unlike
// selector lookups, a dataflow query on an unregistered event is a
// misuse of the graph and fails the rule.
func (s *search) evalFlow(left, right val) (val, error) {
	a, err := eventID(left.v)
	if err != nil {
		return val{}, err
	}
	b, err := eventID(right.v)
	if err != nil {
		return val{}, err
	}
	ok, err := s.tr.HasFlow(a, b)
	if err != nil {
		return val{}, errors.EvaluationWrap(err, "interp.evalFlow", "dataflow query failed")
	}
	return val{v: ok}, nil
}

func eventID(v any) (trace.ID, error) {
	switch t := v.(type) {
	case *trace.Event:
		return t.ID(), nil
	case trace.ID:
		return t, nil
	default:
		return trace.None, errors.Evaluation("interp.evalFlow", fmt.Sprintf("dataflow operands must be events, got %T", v))
	}
}

func (s *search) evalPattern(ctx context.Context, x *ast.SemanticPattern, env *bindingEnv) (val, error) {
	name, err := s.patternToolName(ctx, x, env)
	if err != nil {
		return val{}, err
	}
	p := &toolPattern{tool: name}
	for _, a := range x.Args {
		obj, ok := a.(*ast.ObjectLit)
		if !ok {
			return val{}, errors.Evaluation("interp.evalPattern", "tool pattern arguments must be an object")
		}
		entries := make(map[string]any, len(obj.Entries))
		for _, entry := range obj.Entries {
			v, err := s.evalExpr(ctx, entry.Value, env)
			if err != nil {
				return val{}, err
			}
			entries[entry.Key] = v.v
		}
		p.args = append(p.args, entries)
	}
	return val{v: p}, nil
}

func (s *search) evalComprehension(ctx context.Context, x *ast.ListComprehension, env *bindingEnv) (val, error) {
	items, err := s.enumerate(ctx, x.Iterable, env)
	if err != nil {
		return val{}, err
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		inner := env.bind(x.Var, it.v, it.addr)
		if x.Cond != nil {
			cond, err := s.evalExpr(ctx, x.Cond, inner)
			if err != nil {
				if errors.IsKind(err, errors.KindLookup) {
					continue
				}
				return val{}, err
			}
			if !truthy(cond.v) {
				continue
			}
		}
		elem, err := s.evalExpr(ctx, x.Elem, inner)
		if err != nil {
			return val{}, err
		}
		out = append(out, elem.v)
	}
	return val{v: out}, nil
}

// truthy follows the language's truthiness rules: none and empty
// values are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []trace.ID:
		return len(t) > 0
	default:
		return true
	}
}

// equal is structural equality with pattern semantics: wildcards match
// anything, type references match events of that type, and tool
// patterns match tool calls by name and argument shape.
func equal(a, b any) bool {
	if _, ok := a.(wildcardVal); ok {
		return true
	}
	if _, ok := b.(wildcardVal); ok {
		return true
	}
	if p, ok := b.(*toolPattern); ok {
		return p.matches(a)
	}
	if p, ok := a.(*toolPattern); ok {
		return p.matches(b)
	}
	if t, ok := b.(typeRef); ok {
		return typeMatches(a, t)
	}
	if t, ok := a.(typeRef); ok {
		return typeMatches(b, t)
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if ae, ok := a.(*trace.Event); ok {
		if be, ok := b.(*trace.Event); ok {
			return ae.ID() == be.ID()
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func typeMatches(v any, t typeRef) bool {
	switch e := v.(type) {
	case *trace.Event:
		return e.TypeName() == string(t)
	case *trace.FunctionCall:
		return string(t) == "FunctionCall"
	default:
		return false
	}
}

func (p *toolPattern) matches(v any) bool {
	ev, ok := v.(*trace.Event)
	if !ok || ev.Kind != trace.KindToolCall {
		return false
	}
	if p.tool != "" && ev.Call.Function.Name != p.tool {
		return false
	}
	for _, args := range p.args {
		for key, want := range args {
			got, present := ev.Call.Function.Arguments[key]
			if !present || !equal(got, want) {
				return false
			}
		}
	}
	return true
}

func compare(op ast.BinaryOp, a, b any) (val, error) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return val{v: compareOrdered(op, af, bf)}, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return val{v: compareOrdered(op, as, bs)}, nil
		}
	}
	return val{}, errors.Evaluation("interp.compare",
		fmt.Sprintf("cannot order %T and %T", a, b))
}

func compareOrdered[T float64 | string](op ast.BinaryOp, a, b T) bool {
	switch op {
	case ast.OpLt:
		return a < b
	case ast.OpGt:
		return a > b
	case ast.OpLe:
		return a <= b
	default:
		return a >= b
	}
}

// contains answers both `x in coll` and `coll contains x`.
func contains(coll, item any) (bool, error) {
	switch c := coll.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, errors.Evaluation("interp.contains", "string membership requires a string")
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, el := range c {
			if equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := item.(string)
		if !ok {
			return false, errors.Evaluation("interp.contains", "mapping membership requires a string key")
		}
		_, present := c[k]
		return present, nil
	case nil:
		return false, nil
	default:
		return false, errors.Evaluation("interp.contains", fmt.Sprintf("value of type %T is not a collection", coll))
	}
}

func add(a, b any) (val, error) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return val{v: af + bf}, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return val{v: as + bs}, nil
		}
	}
	if al, ok := a.([]any); ok {
		if bl, ok := b.([]any); ok {
			out := make([]any, 0, len(al)+len(bl))
			out = append(out, al...)
			out = append(out, bl...)
			return val{v: out}, nil
		}
	}
	return val{}, errors.Evaluation("interp.add", fmt.Sprintf("cannot add %T and %T", a, b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}
