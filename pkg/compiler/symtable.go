package compiler

import (
	"sort"
)

type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeLocal
)

type scope struct {
	vars  map[string]*Symbol
	types map[string]*Type
}

func newScope() *scope {
	return &scope{vars: make(map[string]*Symbol), types: make(map[string]*Type)}
}

// SymbolTable resolves variable and type names through a stack of scopes.
// Procedures live in a single global namespace.
type SymbolTable struct {
	scopes []*scope
	procs  map[string]*ProcDecl
}

func NewSymbolTable() *SymbolTable {
	global := newScope()
	for _, t := range []*Type{IntType, BoolType, StrType} {
		global.types[t.Name] = t
	}
	return &SymbolTable{
		scopes: []*scope{global},
		procs:  make(map[string]*ProcDecl),
	}
}

func (s *SymbolTable) EnterScope() {
	s.scopes = append(s.scopes, newScope())
}

func (s *SymbolTable) ExitScope() {
	if len(s.scopes) == 1 {
		panic("ExitScope called on the global scope")
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Scope reports whether declarations currently land in the global scope.
func (s *SymbolTable) Scope() ScopeType {
	if len(s.scopes) == 1 {
		return ScopeGlobal
	}
	return ScopeLocal
}

func (s *SymbolTable) top() *scope {
	return s.scopes[len(s.scopes)-1]
}

// DeclareVar adds sym to the innermost scope. It reports false when the
// name is already declared there.
func (s *SymbolTable) DeclareVar(sym *Symbol) bool {
	if _, exists := s.top().vars[sym.Name]; exists {
		return false
	}
	s.top().vars[sym.Name] = sym
	return true
}

func (s *SymbolTable) LookupVar(name string) (*Symbol, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if sym, ok := s.scopes[i].vars[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

func (s *SymbolTable) DeclareType(name string, t *Type) bool {
	if _, exists := s.top().types[name]; exists {
		return false
	}
	s.top().types[name] = t
	return true
}

func (s *SymbolTable) LookupType(name string) (*Type, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if t, ok := s.scopes[i].types[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (s *SymbolTable) DeclareProc(p *ProcDecl) {
	s.procs[p.Name] = p
}

func (s *SymbolTable) LookupProc(name string) (*ProcDecl, bool) {
	p, ok := s.procs[name]
	return p, ok
}

// Forwards lists procedures that were declared forward but never defined.
func (s *SymbolTable) Forwards() []*ProcDecl {
	var out []*ProcDecl
	for _, p := range s.procs {
		if p.Forward {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
