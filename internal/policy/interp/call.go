package interp

import (
	"context"
	"fmt"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/cache"
	"github.com/invariantlabs-ai/invariant-go/internal/stdlib"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// evalCall invokes a registered predicate or a policy-defined
// function. Predicate invocation is a suspension point: the branch
// awaits the call's future before resuming. Ranges a predicate reports
// on a truthful result are turned into addresses against the inspected
// argument and joined to the branch marks.
func (s *search) evalCall(ctx context.Context, x *ast.FunctionCall, env *bindingEnv) (val, error) {
	const op = "interp.evalCall"
	name := x.Func.QualifiedName()

	if fv, _, ok := env.lookup(name); ok {
		fn, isFunc := fv.(*funcValue)
		if !isFunc {
			return val{}, errors.Evaluation(op, name+" is not callable")
		}
		return s.apply(ctx, fn, x, env)
	}

	p, ok := s.in.registry.Lookup(name)
	if !ok {
		p, ok = s.in.registry.Lookup(x.Func.Name)
	}
	if !ok {
		return val{}, errors.Evaluation(op, "unknown function "+name)
	}

	args := make([]any, 0, len(x.Args))
	firstAddr := ""
	for _, a := range x.Args {
		v, err := s.evalExpr(ctx, a, env)
		if err != nil {
			return val{}, err
		}
		args = append(args, v.v)
		if firstAddr == "" {
			firstAddr = v.addr
		}
	}
	var kwargs map[string]any
	if len(x.Kwargs) > 0 {
		kwargs = make(map[string]any, len(x.Kwargs))
		for _, kw := range x.Kwargs {
			v, err := s.evalExpr(ctx, kw.Value, env)
			if err != nil {
				return val{}, err
			}
			kwargs[kw.Name] = v.v
		}
	}

	res, err := s.in.invoke(ctx, p, args, kwargs).await(ctx)
	if err != nil {
		return val{}, err
	}

	if res.Truth && firstAddr != "" {
		for _, r := range res.Ranges {
			s.marks = append(s.marks, trace.FormatRange(firstAddr, r.Start, r.End))
		}
	}

	v := any(res.Truth)
	if res.Value != nil {
		v = res.Value
	}
	return val{v: v, excluded: !p.Cacheable}, nil
}

// apply evaluates a policy-defined function: parameters bind over the
// definition environment, constant declarations extend it, and the
// last expression statement is the return value.
func (s *search) apply(ctx context.Context, fn *funcValue, x *ast.FunctionCall, callerEnv *bindingEnv) (val, error) {
	const op = "interp.apply"
	if len(x.Args) != len(fn.def.Params) {
		return val{}, errors.Evaluation(op,
			fmt.Sprintf("%s expects %d arguments, got %d", fn.def.Name, len(fn.def.Params), len(x.Args)))
	}

	env := fn.env
	for i, a := range x.Args {
		v, err := s.evalExpr(ctx, a, callerEnv)
		if err != nil {
			return val{}, err
		}
		env = env.bind(fn.def.Params[i], v.v, v.addr)
	}

	var last val
	for _, st := range fn.def.Body {
		switch t := st.(type) {
		case *ast.Declaration:
			id, ok := t.Target.(*ast.Identifier)
			if !ok {
				return val{}, errors.Evaluation(op, "function bodies only support constant declarations")
			}
			v, err := s.evalExpr(ctx, t.Value, env)
			if err != nil {
				return val{}, err
			}
			env = env.bind(id.Name, v.v, v.addr)
		case *ast.ExprStmt:
			v, err := s.evalExpr(ctx, t.X, env)
			if err != nil {
				return val{}, err
			}
			last = v
		default:
			return val{}, errors.Evaluation(op, fmt.Sprintf("unsupported statement %T in function body", st))
		}
	}
	return last, nil
}

type callOutcome struct {
	res stdlib.Result
	err error
}

// future is the explicit await handle of one predicate invocation.
// Async predicates resolve it from their own goroutine; synchronous
// ones resolve it before invoke returns, so awaiting never blocks for
// them.
type future struct {
	ch chan callOutcome
}

func (f *future) await(ctx context.Context) (stdlib.Result, error) {
	select {
	case out := <-f.ch:
		return out.res, out.err
	case <-ctx.Done():
		return stdlib.Result{}, errors.Wrap(ctx.Err(), errors.KindCanceled, "interp.await", "evaluation abandoned at suspension point")
	}
}

// callPayload is the canonicalized argument record a cache key is
// derived from.
type callPayload struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// invoke runs a predicate, routing cacheable ones through the session
// cache so a key's computation happens at most once concurrently and
// failures are delivered to every waiter without being stored.
func (in *Interpreter) invoke(ctx context.Context, p stdlib.Predicate, args []any, kwargs map[string]any) *future {
	f := &future{ch: make(chan callOutcome, 1)}
	run := func() callOutcome {
		res, err := in.call(ctx, p, args, kwargs)
		if err != nil {
			if errors.IsKind(err, errors.KindCanceled) {
				return callOutcome{err: err}
			}
			return callOutcome{err: errors.EvaluationWrap(err, "interp.invoke", "predicate "+p.Name+" failed")}
		}
		return callOutcome{res: res}
	}
	if p.Async {
		go func() { f.ch <- run() }()
	} else {
		f.ch <- run()
	}
	return f
}

func (in *Interpreter) call(ctx context.Context, p stdlib.Predicate, args []any, kwargs map[string]any) (stdlib.Result, error) {
	if !p.Cacheable {
		return p.Fn(ctx, args, kwargs)
	}
	key, err := cache.NewKey(p.Name, callPayload{Args: args, Kwargs: kwargs})
	if err != nil {
		return stdlib.Result{}, err
	}
	v, err := in.cache.Do(ctx, key, func(cctx context.Context) (any, error) {
		res, err := p.Fn(cctx, args, kwargs)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return stdlib.Result{}, err
	}
	res, ok := v.(stdlib.Result)
	if !ok {
		return stdlib.Result{}, errors.Internal("interp.call", "unexpected cache entry type")
	}
	return res, nil
}
