package interp

import (
	"context"
	"fmt"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/selector"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// bindingPair is one name bound by a candidate.
type bindingPair struct {
	name  string
	value any
	addr  string
}

// candidates enumerates the candidate bindings of one declaration in
// trace order. A constant declaration yields exactly one candidate; a
// typed declaration selects sub-values of its declared type; a
// SomeExpr value enumerates an explicit collection; destructuring
// targets bind several names per candidate.
func (s *search) candidates(ctx context.Context, d *ast.Declaration, env *bindingEnv) ([][]bindingPair, error) {
	switch target := d.Target.(type) {
	case *ast.Identifier:
		if some, ok := d.Value.(*ast.SomeExpr); ok {
			items, err := s.enumerate(ctx, some.Candidates, env)
			if err != nil {
				return nil, err
			}
			out := make([][]bindingPair, 0, len(items))
			for _, it := range items {
				out = append(out, []bindingPair{{name: target.Name, value: it.v, addr: it.addr}})
			}
			return out, nil
		}
		v, err := s.evalExpr(ctx, d.Value, env)
		if err != nil {
			return nil, err
		}
		return [][]bindingPair{{{name: target.Name, value: v.v, addr: v.addr}}}, nil

	case *ast.TypedIdentifier:
		matches, err := s.selectMatches(ctx, target.Type, d.Value, env)
		if err != nil {
			return nil, err
		}
		out := make([][]bindingPair, 0, len(matches))
		for _, m := range matches {
			out = append(out, []bindingPair{{name: target.Name, value: m.Value, addr: m.Addr}})
		}
		return out, nil

	case *ast.ArrayLit:
		return s.destructureArray(ctx, target, d.Value, env)

	case *ast.ObjectLit:
		v, err := s.evalExpr(ctx, d.Value, env)
		if err != nil {
			return nil, err
		}
		obj, ok := v.v.(map[string]any)
		if !ok {
			return nil, errors.Evaluation("interp.candidates", "object pattern requires a mapping value")
		}
		var pairs []bindingPair
		for _, entry := range target.Entries {
			id, ok := entry.Value.(*ast.Identifier)
			if !ok {
				return nil, errors.Evaluation("interp.candidates", "object pattern entries must bind identifiers")
			}
			ev, ok := obj[entry.Key]
			if !ok {
				// Missing key: the candidate does not match.
				return nil, nil
			}
			pairs = append(pairs, bindingPair{name: id.Name, value: ev, addr: childAddr(v.addr, entry.Key)})
		}
		return [][]bindingPair{pairs}, nil

	case *ast.SemanticPattern:
		return s.patternCandidates(ctx, target, env)

	default:
		return nil, errors.Evaluation("interp.candidates", fmt.Sprintf("unsupported declaration target %T", d.Target))
	}
}

// selectMatches runs the structural selector for a typed declaration:
// over the whole trace when the declaration has no value expression,
// within the evaluated value otherwise.
func (s *search) selectMatches(ctx context.Context, typeName string, value ast.Expr, env *bindingEnv) ([]selector.Match, error) {
	if value == nil {
		return s.sel.SelectAll(typeName), nil
	}
	v, err := s.evalExpr(ctx, value, env)
	if err != nil {
		return nil, err
	}
	return s.sel.Select(typeName, v.v, -1), nil
}

// enumerate yields the elements of a collection-valued expression for
// SomeExpr candidate choice.
func (s *search) enumerate(ctx context.Context, e ast.Expr, env *bindingEnv) ([]val, error) {
	v, err := s.evalExpr(ctx, e, env)
	if err != nil {
		return nil, err
	}
	switch coll := v.v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]val, 0, len(coll))
		for i, it := range coll {
			out = append(out, val{v: it, addr: childAddr(v.addr, fmt.Sprintf("%d", i))})
		}
		return out, nil
	case []trace.ID:
		out := make([]val, 0, len(coll))
		for _, id := range coll {
			ev, err := s.tr.Node(id)
			if err != nil {
				return nil, err
			}
			out = append(out, val{v: ev, addr: ev.Address()})
		}
		return out, nil
	case []*trace.Event:
		out := make([]val, 0, len(coll))
		for _, ev := range coll {
			out = append(out, val{v: ev, addr: ev.Address()})
		}
		return out, nil
	default:
		return nil, errors.Evaluation("interp.enumerate", fmt.Sprintf("value of type %T is not enumerable", v.v))
	}
}

// destructureArray binds an array pattern positionally. A SomeExpr
// value destructures each enumerated element; a plain value
// destructures once.
func (s *search) destructureArray(ctx context.Context, target *ast.ArrayLit, value ast.Expr, env *bindingEnv) ([][]bindingPair, error) {
	var items []val
	if some, ok := value.(*ast.SomeExpr); ok {
		enumerated, err := s.enumerate(ctx, some.Candidates, env)
		if err != nil {
			return nil, err
		}
		items = enumerated
	} else {
		v, err := s.evalExpr(ctx, value, env)
		if err != nil {
			return nil, err
		}
		items = []val{v}
	}

	var out [][]bindingPair
	for _, it := range items {
		elems, ok := it.v.([]any)
		if !ok || len(elems) != len(target.Elems) {
			continue
		}
		var pairs []bindingPair
		ok = true
		for i, pe := range target.Elems {
			switch pat := pe.(type) {
			case *ast.Identifier:
				pairs = append(pairs, bindingPair{name: pat.Name, value: elems[i], addr: childAddr(it.addr, fmt.Sprintf("%d", i))})
			case *ast.Wildcard:
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, pairs)
		}
	}
	return out, nil
}

// patternCandidates enumerates tool calls matching a semantic pattern
// target, binding the pattern's argument identifiers from each match.
func (s *search) patternCandidates(ctx context.Context, pattern *ast.SemanticPattern, env *bindingEnv) ([][]bindingPair, error) {
	toolName, err := s.patternToolName(ctx, pattern, env)
	if err != nil {
		return nil, err
	}

	var out [][]bindingPair
	for _, m := range s.sel.SelectAll("ToolCall") {
		ev, ok := m.Value.(*trace.Event)
		if !ok || ev.Kind != trace.KindToolCall {
			continue
		}
		if toolName != "" && ev.Call.Function.Name != toolName {
			continue
		}
		pairs, ok, err := s.bindPatternArgs(ctx, pattern, ev, m.Addr, env)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pairs)
		}
	}
	return out, nil
}

func (s *search) patternToolName(ctx context.Context, pattern *ast.SemanticPattern, env *bindingEnv) (string, error) {
	switch t := pattern.Tool.(type) {
	case nil:
		return "", nil
	case *ast.Identifier:
		return t.Name, nil
	case *ast.Wildcard:
		return "", nil
	default:
		v, err := s.evalExpr(ctx, pattern.Tool, env)
		if err != nil {
			return "", err
		}
		name, ok := v.v.(string)
		if !ok {
			return "", errors.Evaluation("interp.patternCandidates", "tool pattern name must be a string")
		}
		return name, nil
	}
}

// bindPatternArgs matches the pattern's argument object against a tool
// call's arguments: identifier entries bind, literal entries must be
// equal, wildcards match anything.
func (s *search) bindPatternArgs(ctx context.Context, pattern *ast.SemanticPattern, ev *trace.Event, addr string, env *bindingEnv) ([]bindingPair, bool, error) {
	var pairs []bindingPair
	args := ev.Call.Function.Arguments
	for _, a := range pattern.Args {
		obj, ok := a.(*ast.ObjectLit)
		if !ok {
			return nil, false, errors.Evaluation("interp.patternCandidates", "tool pattern arguments must be an object")
		}
		for _, entry := range obj.Entries {
			got, present := args[entry.Key]
			if !present {
				return nil, false, nil
			}
			entryAddr := childAddr(addr, "function.arguments."+entry.Key)
			switch pat := entry.Value.(type) {
			case *ast.Identifier:
				pairs = append(pairs, bindingPair{name: pat.Name, value: got, addr: entryAddr})
			case *ast.Wildcard:
			default:
				want, err := s.evalExpr(ctx, entry.Value, env)
				if err != nil {
					return nil, false, err
				}
				if !equal(got, want.v) {
					return nil, false, nil
				}
			}
		}
	}
	return pairs, true, nil
}

func childAddr(base, child string) string {
	if base == "" {
		return child
	}
	return base + "." + child
}
