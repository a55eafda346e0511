package interp

// Status is the terminal state of one rule evaluation.
type Status uint8

const (
	// StatusSatisfied means the binding search found a match and the
	// rule fired.
	StatusSatisfied Status = iota
	// StatusExhausted means the candidate space was searched without a
	// match; the rule did not fire.
	StatusExhausted
	// StatusError means validation or evaluation failed for this rule.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "Satisfied"
	case StatusExhausted:
		return "Exhausted"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Violation is the raise descriptor of a fired rule: the configured
// exception-or-constructor value evaluated under the satisfying
// binding, plus that binding's addresses.
type Violation struct {
	Exception any
	Addresses []string
}

// RuleResult is the outcome of evaluating one rule against one trace.
type RuleResult struct {
	// Rule is the index of the rule within the policy document.
	Rule int

	Status Status

	// Fired reports whether the rule's combination semantics held: a
	// satisfying binding for existential rules, a counterexample for
	// forall, a count within bounds for count.
	Fired bool

	// Addresses locate the implicated sub-values, in search order.
	Addresses []string

	// Count is the quantifier's aggregate statistic: the number of
	// satisfying bindings found across the candidate space.
	Count int

	// Violations carries the raise descriptors of a fired raise rule.
	Violations []Violation

	// Err is set when Status is StatusError.
	Err error
}

// Report is the outcome of evaluating a policy document against one
// trace.
type Report struct {
	TraceID string
	Rules   []RuleResult
}

// Fired returns the results of rules that fired.
func (r *Report) Fired() []RuleResult {
	var out []RuleResult
	for _, rr := range r.Rules {
		if rr.Fired {
			out = append(out, rr)
		}
	}
	return out
}

// Errs returns the errors of rules that failed, in rule order.
func (r *Report) Errs() []error {
	var out []error
	for _, rr := range r.Rules {
		if rr.Err != nil {
			out = append(out, rr.Err)
		}
	}
	return out
}
