// Package ast defines the typed node model for parsed policy
// documents, the lexical scope chain attached to scoping nodes, and
// the free-variable analysis the evaluator uses to order declarations.
//
// A PolicyRoot is built once per policy source (by the upstream parser,
// the builder in build.go, or the JSON codec in json.go) and reused
// across many trace evaluations. Nodes are read-only after
// construction except for the fields populated by the analysis passes:
// Identifier.Sym, per-node scopes, and PolicyRoot.Errors.
package ast

// Pos is a source position for error localization.
type Pos struct {
	Line   int
	Column int
}

// Node is the base interface for all AST nodes.
type Node interface {
	node()
	Position() Pos
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
}

// Stmt is the interface for statement nodes (rule body clauses and
// top-level statements).
type Stmt interface {
	Node
	stmt()
}

// StringModifier alters how a string literal is interpreted.
type StringModifier uint8

const (
	// StringPlain is an ordinary string literal.
	StringPlain StringModifier = iota
	// StringRaw disables escape processing.
	StringRaw
	// StringRegex marks the literal as a regular expression pattern.
	StringRegex
	// StringFormat marks the literal as a format template.
	StringFormat
)

// NumberLit is a numeric literal.
type NumberLit struct {
	Pos   Pos
	Value float64
}

// StringLit is a string literal with an optional modifier.
type StringLit struct {
	Pos      Pos
	Value    string
	Modifier StringModifier
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Pos   Pos
	Value bool
}

// NoneLit is the absent-value literal.
type NoneLit struct {
	Pos Pos
}

// ArrayLit is an ordered list literal.
type ArrayLit struct {
	Pos   Pos
	Elems []Expr
}

// ObjectEntry is one key/value pair of an object literal.
type ObjectEntry struct {
	Key   string
	Value Expr
}

// ObjectLit is an object literal with ordered entries.
type ObjectLit struct {
	Pos     Pos
	Entries []ObjectEntry
}

// Wildcard matches any value, untyped.
type Wildcard struct {
	Pos Pos
}

// SymbolID identifies a resolved declaration. The zero value means the
// identifier has not been resolved yet.
type SymbolID int

// Unresolved is the SymbolID of an identifier before resolution.
const Unresolved SymbolID = 0

// Identifier is a reference to a declared name or a registered
// global/predicate. Sym is assigned by the resolution pass.
type Identifier struct {
	Pos       Pos
	Name      string
	Namespace string
	Sym       SymbolID
}

// QualifiedName returns the namespace-qualified name of the identifier.
func (i *Identifier) QualifiedName() string {
	if i.Namespace == "" {
		return i.Name
	}
	return i.Namespace + "." + i.Name
}

// TypedIdentifier declares a name together with the type its candidate
// bindings are selected from, e.g. `(msg: Message)`.
type TypedIdentifier struct {
	Pos  Pos
	Name string
	Type string
}

// MemberAccess is `expr.member`.
type MemberAccess struct {
	Pos    Pos
	X      Expr
	Member string
}

// KeyAccess is `expr[key]`.
type KeyAccess struct {
	Pos Pos
	X   Expr
	Key Expr
}

// BinaryOp is a binary operator token.
type BinaryOp string

// Binary operators.
const (
	OpEq       BinaryOp = "=="
	OpNe       BinaryOp = "!="
	OpLt       BinaryOp = "<"
	OpGt       BinaryOp = ">"
	OpLe       BinaryOp = "<="
	OpGe       BinaryOp = ">="
	OpAnd      BinaryOp = "and"
	OpOr       BinaryOp = "or"
	OpIn       BinaryOp = "in"
	OpContains BinaryOp = "contains"
	OpAdd      BinaryOp = "+"
	// OpFlow is the dataflow operator: `a -> b` holds when event a
	// could have influenced event b.
	OpFlow BinaryOp = "->"
)

// BinaryExpr is a binary operation.
type BinaryExpr struct {
	Pos   Pos
	Left  Expr
	Op    BinaryOp
	Right Expr
}

// UnaryOp is a unary operator token.
type UnaryOp string

// Unary operators.
const (
	OpNot UnaryOp = "not"
	OpNeg UnaryOp = "-"
)

// UnaryExpr is a unary operation.
type UnaryExpr struct {
	Pos Pos
	Op  UnaryOp
	X   Expr
}

// TernaryExpr is `then if cond else other`.
type TernaryExpr struct {
	Pos  Pos
	Then Expr
	Cond Expr
	Else Expr
}

// Kwarg is a named argument of a function call.
type Kwarg struct {
	Name  string
	Value Expr
}

// FunctionCall invokes a registered predicate, a stdlib function, or a
// policy-defined function.
type FunctionCall struct {
	Pos    Pos
	Func   *Identifier
	Args   []Expr
	Kwargs []Kwarg
}

// FunctionSignature declares the formal parameters of an external
// function.
type FunctionSignature struct {
	Pos    Pos
	Name   string
	Params []string
}

// Import brings names from a module into the enclosing scope.
type Import struct {
	Pos    Pos
	Module string
	Names  []string
	Alias  string
}

// SemanticPattern matches a tool invocation by name and argument shape,
// e.g. `tool:search({q: "*"})`.
type SemanticPattern struct {
	Pos  Pos
	Tool Expr
	Args []Expr
}

// ValueReference names a value-type tag, e.g. an entity class detected
// in text.
type ValueReference struct {
	Pos      Pos
	TypeName string
}

// SomeExpr denotes non-deterministic choice of exactly one element from
// a collection-valued expression. It participates in the same
// backtracking search as a declaration's candidate enumeration.
type SomeExpr struct {
	Pos        Pos
	Candidates Expr
}

// Declaration binds a name (or destructures a pattern) to a value
// expression. A declaration is a lexical-scope node.
type Declaration struct {
	Pos Pos
	// Target is an *Identifier, a *TypedIdentifier, or a destructuring
	// pattern built from them.
	Target Node
	Value  Expr

	Scope *Scope
}

// IsConstant reports whether the declaration binds a plain identifier,
// i.e. its value is computed once rather than enumerated from
// candidates.
func (d *Declaration) IsConstant() bool {
	_, ok := d.Target.(*Identifier)
	return ok
}

// QuantKind discriminates quantifier call descriptors.
type QuantKind uint8

const (
	// QuantForall is universal quantification over the body's bindings.
	QuantForall QuantKind = iota
	// QuantCount is cardinality-bounded quantification.
	QuantCount
)

// Quantifier applies a combination rule (forall, count) over the
// bindings of its body. The body is a lexical scope.
type Quantifier struct {
	Pos  Pos
	Kind QuantKind
	// Min and Max bound the satisfying-binding count for QuantCount.
	// Max < 0 means unbounded above.
	Min  int
	Max  int
	Body []Stmt

	Scope *Scope
}

// RaisePolicy pairs a violation descriptor with a guarded body. The
// rule fires when the body's binding search succeeds.
type RaisePolicy struct {
	Pos Pos
	// Exception is the configured exception-or-constructor value
	// reported when the rule fires.
	Exception Expr
	Body      []Stmt

	Scope *Scope
}

// FunctionDef defines a policy-local function.
type FunctionDef struct {
	Pos    Pos
	Name   string
	Params []string
	Body   []Stmt

	Scope *Scope
}

// ListComprehension is `[expr for var in iterable if cond]`; Cond may
// be nil. The comprehension is a lexical scope introducing Var.
type ListComprehension struct {
	Pos      Pos
	Elem     Expr
	Var      string
	Iterable Expr
	Cond     Expr

	Scope *Scope
}

// ExprStmt is a bare expression used as a rule-body filter clause.
type ExprStmt struct {
	Pos Pos
	X   Expr
}

// PolicyRoot is the top-level lexical-scope node of one parsed policy
// document. Each top-level statement is an independent rule.
type PolicyRoot struct {
	Stmts []Stmt
	// Errors accumulates validation errors (unresolved identifiers,
	// cyclic declarations) found by the analysis passes.
	Errors []error
	// Source is a handle to the policy source document for error
	// localization.
	Source string

	Scope *Scope
}

// Valid reports whether the document passed validation.
func (p *PolicyRoot) Valid() bool { return len(p.Errors) == 0 }

func (n *NumberLit) node()         {}
func (n *StringLit) node()         {}
func (n *BoolLit) node()           {}
func (n *NoneLit) node()           {}
func (n *ArrayLit) node()          {}
func (n *ObjectLit) node()         {}
func (n *Wildcard) node()          {}
func (n *Identifier) node()        {}
func (n *TypedIdentifier) node()   {}
func (n *MemberAccess) node()      {}
func (n *KeyAccess) node()         {}
func (n *BinaryExpr) node()        {}
func (n *UnaryExpr) node()         {}
func (n *TernaryExpr) node()       {}
func (n *FunctionCall) node()      {}
func (n *FunctionSignature) node() {}
func (n *Import) node()            {}
func (n *SemanticPattern) node()   {}
func (n *ValueReference) node()    {}
func (n *SomeExpr) node()          {}
func (n *Declaration) node()       {}
func (n *Quantifier) node()        {}
func (n *RaisePolicy) node()       {}
func (n *FunctionDef) node()       {}
func (n *ListComprehension) node() {}
func (n *ExprStmt) node()          {}
func (n *PolicyRoot) node()        {}

func (n *NumberLit) expr()         {}
func (n *StringLit) expr()         {}
func (n *BoolLit) expr()           {}
func (n *NoneLit) expr()           {}
func (n *ArrayLit) expr()          {}
func (n *ObjectLit) expr()         {}
func (n *Wildcard) expr()          {}
func (n *Identifier) expr()        {}
func (n *TypedIdentifier) expr()   {}
func (n *MemberAccess) expr()      {}
func (n *KeyAccess) expr()         {}
func (n *BinaryExpr) expr()        {}
func (n *UnaryExpr) expr()         {}
func (n *TernaryExpr) expr()       {}
func (n *FunctionCall) expr()      {}
func (n *SemanticPattern) expr()   {}
func (n *ValueReference) expr()    {}
func (n *SomeExpr) expr()          {}
func (n *ListComprehension) expr() {}
func (n *Quantifier) expr()        {}

func (n *Import) stmt()            {}
func (n *FunctionSignature) stmt() {}
func (n *Declaration) stmt()       {}
func (n *Quantifier) stmt()        {}
func (n *RaisePolicy) stmt()       {}
func (n *FunctionDef) stmt()       {}
func (n *ExprStmt) stmt()          {}

func (n *NumberLit) Position() Pos         { return n.Pos }
func (n *StringLit) Position() Pos         { return n.Pos }
func (n *BoolLit) Position() Pos           { return n.Pos }
func (n *NoneLit) Position() Pos           { return n.Pos }
func (n *ArrayLit) Position() Pos          { return n.Pos }
func (n *ObjectLit) Position() Pos         { return n.Pos }
func (n *Wildcard) Position() Pos          { return n.Pos }
func (n *Identifier) Position() Pos        { return n.Pos }
func (n *TypedIdentifier) Position() Pos   { return n.Pos }
func (n *MemberAccess) Position() Pos      { return n.Pos }
func (n *KeyAccess) Position() Pos         { return n.Pos }
func (n *BinaryExpr) Position() Pos        { return n.Pos }
func (n *UnaryExpr) Position() Pos         { return n.Pos }
func (n *TernaryExpr) Position() Pos       { return n.Pos }
func (n *FunctionCall) Position() Pos      { return n.Pos }
func (n *FunctionSignature) Position() Pos { return n.Pos }
func (n *Import) Position() Pos            { return n.Pos }
func (n *SemanticPattern) Position() Pos   { return n.Pos }
func (n *ValueReference) Position() Pos    { return n.Pos }
func (n *SomeExpr) Position() Pos          { return n.Pos }
func (n *Declaration) Position() Pos       { return n.Pos }
func (n *Quantifier) Position() Pos        { return n.Pos }
func (n *RaisePolicy) Position() Pos       { return n.Pos }
func (n *FunctionDef) Position() Pos       { return n.Pos }
func (n *ListComprehension) Position() Pos { return n.Pos }
func (n *ExprStmt) Position() Pos          { return n.Pos }
func (n *PolicyRoot) Position() Pos        { return Pos{} }
