// Package interp evaluates a validated policy document against a
// parsed trace. Each rule runs an independent depth-first,
// trace-ordered binding search; the only state shared between rules
// and sessions is the external-call cache.
package interp

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/cache"
	"github.com/invariantlabs-ai/invariant-go/internal/stdlib"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// Options configures an Interpreter.
type Options struct {
	// CollectAll keeps searching after the first satisfying binding
	// and reports every violation instead of short-circuiting.
	CollectAll bool

	// Cache is the external-call cache shared across evaluations.
	// A fresh session is created when nil.
	Cache *cache.Session

	Logger *slog.Logger
}

// Interpreter owns the lifecycle of policy evaluation: registry,
// call cache and logging are injected once and reused across
// evaluations. It is safe for concurrent use.
type Interpreter struct {
	registry   *stdlib.Registry
	cache      *cache.Session
	logger     *slog.Logger
	collectAll bool
}

// New creates an interpreter over the given predicate registry.
func New(registry *stdlib.Registry, opts Options) *Interpreter {
	if registry == nil {
		registry = stdlib.NewRegistry()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewSession()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Interpreter{
		registry:   registry,
		cache:      opts.Cache,
		logger:     opts.Logger,
		collectAll: opts.CollectAll,
	}
}

// Cache returns the interpreter's call cache.
func (in *Interpreter) Cache() *cache.Session { return in.cache }

// rule is one independently evaluable unit: a top-level raise or
// quantifier statement with the document's shared prelude clauses
// prepended, or the implicit rule formed by the prelude alone.
type rule struct {
	index int
	body  []ast.Stmt
	raise *ast.RaisePolicy
}

// splitRules partitions the document's top-level statements into
// rules. Declarations, filter expressions and function definitions at
// the top level form a shared prelude; every raise or quantifier
// statement becomes a rule with the prelude prepended to its body. A
// document holding only prelude clauses is itself one implicit rule.
func splitRules(root *ast.PolicyRoot) []rule {
	var prelude []ast.Stmt
	var rules []rule
	for i, st := range root.Stmts {
		switch s := st.(type) {
		case *ast.RaisePolicy:
			rules = append(rules, rule{index: i, raise: s})
		case *ast.Quantifier:
			rules = append(rules, rule{index: i, body: []ast.Stmt{s}})
		case *ast.Import, *ast.FunctionSignature:
			// Handled at resolution time.
		default:
			prelude = append(prelude, st)
		}
	}
	for i := range rules {
		body := rules[i].body
		if rules[i].raise != nil {
			body = rules[i].raise.Body
		}
		rules[i].body = append(append([]ast.Stmt{}, prelude...), body...)
	}
	if len(rules) == 0 && len(prelude) > 0 {
		rules = append(rules, rule{index: 0, body: prelude})
	}
	return rules
}

// Evaluate runs every rule of the document against the trace. Rules
// run concurrently; a rule that fails validation or evaluation is
// reported as StatusError without aborting its siblings.
func (in *Interpreter) Evaluate(ctx context.Context, root *ast.PolicyRoot, tr *trace.Trace) (*Report, error) {
	const op = "interp.Evaluate"
	if root == nil {
		return nil, errors.Validation(op, "nil policy document")
	}
	if tr == nil {
		return nil, errors.Validation(op, "nil trace")
	}

	rules := splitRules(root)
	report := &Report{TraceID: tr.TraceID, Rules: make([]RuleResult, len(rules))}

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range rules {
		g.Go(func() error {
			report.Rules[i] = in.evalRule(gctx, r, tr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits, misses := in.cache.Stats()
	in.logger.Debug("evaluation complete",
		"trace", tr.TraceID,
		"rules", len(rules),
		"fired", len(report.Fired()),
		"cache_hits", hits,
		"cache_misses", misses)
	return report, nil
}

// evalRule runs one rule through its state machine.
func (in *Interpreter) evalRule(ctx context.Context, r rule, tr *trace.Trace) RuleResult {
	res := RuleResult{Rule: r.index, Status: StatusError}

	m, err := newRuleMachine()
	if err != nil {
		res.Err = err
		return res
	}

	// A rule containing unresolved identifiers never starts searching;
	// sibling rules still run.
	if names := unresolvedIdents(r.body); len(names) > 0 {
		m.send(eventFail)
		res.Status = m.status()
		res.Err = errors.Binding("interp.evalRule", "unresolved identifiers: "+strings.Join(names, ", "))
		return res
	}

	m.send(eventStart)
	s := newSearch(in, tr)
	outcome, err := s.run(ctx, r)
	if err != nil {
		m.send(eventFail)
		res.Status = m.status()
		res.Err = err
		in.logger.Debug("rule errored", "rule", r.index, "error", err)
		return res
	}

	if outcome.fired {
		m.send(eventMatch)
	} else {
		m.send(eventNoMatch)
	}
	res.Status = m.status()
	res.Fired = outcome.fired
	res.Addresses = outcome.addresses
	res.Count = outcome.count
	res.Violations = outcome.violations
	res.Err = nil
	in.logger.Debug("rule evaluated",
		"rule", r.index,
		"status", res.Status.String(),
		"fired", res.Fired,
		"addresses", len(res.Addresses))
	return res
}
