package ast

// Builder helpers for constructing policy documents programmatically.
// The upstream text parser is out of scope; tests, fixtures and
// embedding callers build documents through these constructors (or the
// JSON codec) instead.

// Number builds a numeric literal.
func Number(v float64) *NumberLit { return &NumberLit{Value: v} }

// Str builds a plain string literal.
func Str(v string) *StringLit { return &StringLit{Value: v} }

// Regex builds a regex-modified string literal.
func Regex(pattern string) *StringLit {
	return &StringLit{Value: pattern, Modifier: StringRegex}
}

// Format builds a format-modified string literal.
func Format(template string) *StringLit {
	return &StringLit{Value: template, Modifier: StringFormat}
}

// Bool builds a boolean literal.
func Bool(v bool) *BoolLit { return &BoolLit{Value: v} }

// None builds the absent-value literal.
func None() *NoneLit { return &NoneLit{} }

// Array builds a list literal.
func Array(elems ...Expr) *ArrayLit { return &ArrayLit{Elems: elems} }

// Entry builds one object-literal entry.
func Entry(key string, value Expr) ObjectEntry {
	return ObjectEntry{Key: key, Value: value}
}

// Object builds an object literal with ordered entries.
func Object(entries ...ObjectEntry) *ObjectLit { return &ObjectLit{Entries: entries} }

// Wild builds a wildcard pattern.
func Wild() *Wildcard { return &Wildcard{} }

// Ident builds an identifier reference.
func Ident(name string) *Identifier { return &Identifier{Name: name} }

// NSIdent builds a namespace-qualified identifier reference.
func NSIdent(namespace, name string) *Identifier {
	return &Identifier{Namespace: namespace, Name: name}
}

// Typed builds a typed identifier, declaring name with candidate type.
func Typed(name, typeName string) *TypedIdentifier {
	return &TypedIdentifier{Name: name, Type: typeName}
}

// Member builds `x.member`.
func Member(x Expr, member string) *MemberAccess {
	return &MemberAccess{X: x, Member: member}
}

// Key builds `x[key]`.
func Key(x, key Expr) *KeyAccess { return &KeyAccess{X: x, Key: key} }

// Bin builds a binary operation.
func Bin(left Expr, op BinaryOp, right Expr) *BinaryExpr {
	return &BinaryExpr{Left: left, Op: op, Right: right}
}

// Eq builds `left == right`.
func Eq(left, right Expr) *BinaryExpr { return Bin(left, OpEq, right) }

// Ne builds `left != right`.
func Ne(left, right Expr) *BinaryExpr { return Bin(left, OpNe, right) }

// And builds `left and right`.
func And(left, right Expr) *BinaryExpr { return Bin(left, OpAnd, right) }

// Flow builds the dataflow test `left -> right`.
func Flow(left, right Expr) *BinaryExpr { return Bin(left, OpFlow, right) }

// Not builds `not x`.
func Not(x Expr) *UnaryExpr { return &UnaryExpr{Op: OpNot, X: x} }

// Cond builds the ternary `then if cond else other`.
func Cond(then, cond, other Expr) *TernaryExpr {
	return &TernaryExpr{Then: then, Cond: cond, Else: other}
}

// Call builds a positional function call.
func Call(name string, args ...Expr) *FunctionCall {
	return &FunctionCall{Func: Ident(name), Args: args}
}

// CallKw adds named arguments to a call.
func CallKw(call *FunctionCall, name string, value Expr) *FunctionCall {
	call.Kwargs = append(call.Kwargs, Kwarg{Name: name, Value: value})
	return call
}

// ToolPattern builds a semantic pattern matching a tool invocation.
func ToolPattern(tool Expr, args ...Expr) *SemanticPattern {
	return &SemanticPattern{Tool: tool, Args: args}
}

// ValueRef builds a value-type reference, e.g. an entity class.
func ValueRef(typeName string) *ValueReference {
	return &ValueReference{TypeName: typeName}
}

// Some builds the non-deterministic choice of one element from a
// collection-valued expression.
func Some(candidates Expr) *SomeExpr { return &SomeExpr{Candidates: candidates} }

// Let builds a constant declaration `name := value`.
func Let(name string, value Expr) *Declaration {
	return &Declaration{Target: Ident(name), Value: value}
}

// Select builds a candidate declaration `(name: typeName)` enumerating
// matches from the whole input.
func Select(name, typeName string) *Declaration {
	return &Declaration{Target: Typed(name, typeName)}
}

// SelectFrom builds a candidate declaration enumerating matches of
// typeName within the value of `from`.
func SelectFrom(name, typeName string, from Expr) *Declaration {
	return &Declaration{Target: Typed(name, typeName), Value: from}
}

// Destructure builds a pattern declaration.
func Destructure(pattern Node, value Expr) *Declaration {
	return &Declaration{Target: pattern, Value: value}
}

// Filter wraps a boolean expression as a rule-body clause.
func Filter(x Expr) *ExprStmt { return &ExprStmt{X: x} }

// Forall builds a universal quantifier over the body's bindings.
func Forall(body ...Stmt) *Quantifier {
	return &Quantifier{Kind: QuantForall, Max: -1, Body: body}
}

// CountQ builds a cardinality quantifier; max < 0 means unbounded.
func CountQ(min, max int, body ...Stmt) *Quantifier {
	return &Quantifier{Kind: QuantCount, Min: min, Max: max, Body: body}
}

// Raise builds a rule that raises the given violation message when its
// body's binding search succeeds.
func Raise(exception Expr, body ...Stmt) *RaisePolicy {
	return &RaisePolicy{Exception: exception, Body: body}
}

// Doc assembles a policy document from top-level statements. Callers
// run Resolve before evaluating.
func Doc(source string, stmts ...Stmt) *PolicyRoot {
	return &PolicyRoot{Stmts: stmts, Source: source}
}
