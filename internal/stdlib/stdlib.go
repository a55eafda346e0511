// Package stdlib is the registry of external predicate functions the
// interpreter can call from policy expressions. Each predicate is a
// registration record carrying its callable together with its
// cacheability and asynchrony flags; the interpreter treats the
// callable as opaque.
package stdlib

import (
	"context"
	"sort"

	"github.com/invariantlabs-ai/invariant-go/internal/ai"
	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Range marks a character sub-range of a matched value as implicated
// in a violation.
type Range struct {
	Start int
	End   int
}

// Result is what a predicate call produces. Truth drives the rule's
// boolean semantics; Ranges localize the finding within the inspected
// text; Value carries the return value of non-boolean helpers.
type Result struct {
	Truth  bool
	Ranges []Range
	Value  any
}

// Func is the call signature of every registered predicate.
type Func func(ctx context.Context, args []any, kwargs map[string]any) (Result, error)

// Predicate is one registration record.
type Predicate struct {
	Name string
	Fn   Func

	// Cacheable predicates are memoized per session by argument
	// identity. Non-cacheable ones re-run on every binding attempt and
	// their truth is excluded from rule semantics.
	Cacheable bool

	// Async marks I/O-bound predicates whose invocation is a
	// suspension point for the search branch.
	Async bool
}

// Registry maps predicate names to their registration records. It
// implements the resolver's global-name check, so registered names
// resolve during validation and unregistered ones are binding errors.
type Registry struct {
	preds map[string]Predicate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{preds: make(map[string]Predicate)}
}

// Register adds or replaces a predicate.
func (r *Registry) Register(p Predicate) {
	r.preds[p.Name] = p
}

// Lookup returns the predicate registered under name.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	p, ok := r.preds[name]
	return p, ok
}

// HasGlobal reports whether name is a registered predicate.
func (r *Registry) HasGlobal(name string) bool {
	_, ok := r.preds[name]
	return ok
}

// Names returns the registered predicate names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.preds))
	for name := range r.preds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default builds the registry of built-in predicates. The classifier
// backs the llm predicate; pass nil to register it as unavailable.
func Default(classifier ai.Classifier) *Registry {
	r := NewRegistry()

	r.Register(Predicate{Name: "pii", Fn: piiFunc, Cacheable: true})
	r.Register(Predicate{Name: "secrets", Fn: secretsFunc, Cacheable: true})
	r.Register(Predicate{Name: "moderated", Fn: moderationFunc, Cacheable: true})
	r.Register(Predicate{Name: "prompt_injection", Fn: promptInjectionFunc, Cacheable: true})

	r.Register(Predicate{Name: "llm", Fn: llmFunc(classifier), Cacheable: true, Async: true})

	r.Register(Predicate{Name: "license_match", Fn: licenseMatchFunc, Cacheable: true})
	r.Register(Predicate{Name: "fuzzy_contains", Fn: fuzzyContainsFunc, Cacheable: true})

	// Pure helpers are registered cacheable: only non-cacheable
	// predicates are excluded from a rule's boolean semantics.
	r.Register(Predicate{Name: "len", Fn: lenFunc, Cacheable: true})
	r.Register(Predicate{Name: "match", Fn: matchFunc, Cacheable: true})
	r.Register(Predicate{Name: "text", Fn: textFunc, Cacheable: true})
	r.Register(Predicate{Name: "json_loads", Fn: jsonLoadsFunc, Cacheable: true})

	// print has observable side effects, so it is re-invoked per
	// attempt and filtered out of the rule's boolean result.
	r.Register(Predicate{Name: "print", Fn: printFunc, Cacheable: false})

	return r
}

// argString extracts the positional string argument at index i.
func argString(op string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", errors.Evaluation(op, "missing required argument")
	}
	s, ok := args[i].(string)
	if !ok {
		return "", errors.Evaluation(op, "argument must be a string")
	}
	return s, nil
}
