package ast

// Symbol is one declared name within a scope.
type Symbol struct {
	ID   SymbolID
	Name string
	// Decl is the node that introduced the name (Declaration target,
	// comprehension variable, function parameter, import).
	Decl Node
}

// Scope is the symbol table of one lexical-scope node. Lookup walks the
// enclosing-scope chain innermost first.
type Scope struct {
	parent  *Scope
	names   map[string]*Symbol
	ordered []*Symbol
}

// NewScope creates a scope nested in parent (nil for the root scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]*Symbol)}
}

// Parent returns the enclosing scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Declare registers a name in this scope. Re-declaring a name shadows
// the earlier symbol for subsequent lookups.
func (s *Scope) Declare(sym *Symbol) {
	s.names[sym.Name] = sym
	s.ordered = append(s.ordered, sym)
}

// Lookup resolves a name by walking outward through enclosing scopes.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.names[name]; ok {
			return sym
		}
	}
	return nil
}

// LookupLocal resolves a name in this scope only.
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.names[name]
}

// Symbols returns the symbols declared in this scope, in declaration
// order.
func (s *Scope) Symbols() []*Symbol { return s.ordered }
