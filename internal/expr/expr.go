// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package expr defines the scrapscript syntax tree: expression nodes and the
// patterns that destructure values.
package expr

import (
	"math/big"

	"nickandperla.net/scrap/internal/token"
)

// Node is the interface all expression types implement. The set of nodes is
// closed; the unexported marker keeps other packages from adding kinds.
type Node interface {
	// String returns the source representation of the expression.
	String() string
	// Pos returns the position of the first token of the expression.
	Pos() token.Pos
	node()
}

// At records where a node began in the source.
type At struct {
	P token.Pos
}

func (a At) Pos() token.Pos { return a.P }
func (At) node()            {}

// Int is an arbitrary precision integer literal.
type Int struct {
	At
	Value *big.Int
}

// Float is a floating point literal.
type Float struct {
	At
	Value float64
}

// String is a text literal.
type String struct {
	At
	Value string
}

// Bytes is a byte-string literal.
type Bytes struct {
	At
	Value []byte
}

// Hole is the () placeholder.
type Hole struct {
	At
}

// Var references a name.
type Var struct {
	At
	Name string
}

// HashRef references a scrap by content hash.
type HashRef struct {
	At
	Digest [32]byte
}

// Variant constructs a tagged value. Payload is nil for a bare tag.
type Variant struct {
	At
	Tag     string
	Payload Node
}

// List constructs a list. Spread, when set, names a list whose elements
// follow the explicit ones.
type List struct {
	At
	Elems  []Node
	Spread *Var
}

// Field is one name = value entry of a record literal.
type Field struct {
	Name  string
	Value Node
}

// Record constructs a record. Spread, when set, names a record whose fields
// are copied first and then overridden by the explicit ones.
type Record struct {
	At
	Fields []Field
	Spread *Var
}

// Binop applies an infix operator.
type Binop struct {
	At
	Op    string
	Left  Node
	Right Node
}

// Apply applies a function to one argument.
type Apply struct {
	At
	Func Node
	Arg  Node
}

// Function is a single-parameter closure literal.
type Function struct {
	At
	Param Pattern
	Body  Node
}

// Case is one clause of a Match.
type Case struct {
	Pattern Pattern
	Guard   Node // nil when the clause has no guard
	Body    Node
}

// Match dispatches on the value of Scrutinee.
type Match struct {
	At
	Scrutinee Node
	Cases     []Case
}

// Binding is one pattern = value entry of a where-group.
type Binding struct {
	Pattern Pattern
	Value   Node
}

// Where evaluates Body in a scope where every binding of the group is
// visible to every other binding.
type Where struct {
	At
	Body     Node
	Bindings []Binding
}

// Assign is a top-level definition.
type Assign struct {
	At
	Pattern Pattern
	Value   Node
}

// Access selects a record field or list element.
type Access struct {
	At
	Target Node
	Key    Node
}

// Assert yields Value after checking that Cond is #true.
type Assert struct {
	At
	Value Node
	Cond  Node
}

// ArgName is the parameter name of match functions. It cannot be written in
// source, so user code never captures it.
const ArgName = "#arg"

// NewMatchFunction builds the closure literal for | p -> b | ... syntax.
func NewMatchFunction(pos token.Pos, cases []Case) *Function {
	return &Function{
		At:    At{pos},
		Param: &Bind{Name: ArgName},
		Body: &Match{
			At:        At{pos},
			Scrutinee: &Var{At: At{pos}, Name: ArgName},
			Cases:     cases,
		},
	}
}

// MatchCases returns the clauses of fn if it was built by NewMatchFunction.
func MatchCases(fn *Function) ([]Case, bool) {
	b, ok := fn.Param.(*Bind)
	if !ok || b.Name != ArgName {
		return nil, false
	}
	m, ok := fn.Body.(*Match)
	if !ok {
		return nil, false
	}
	if v, ok := m.Scrutinee.(*Var); !ok || v.Name != ArgName {
		return nil, false
	}
	return m.Cases, true
}

// NewInt builds an integer literal from an int64.
func NewInt(v int64) *Int {
	return &Int{Value: big.NewInt(v)}
}

// IsBuiltinName reports whether name refers to a native function.
func IsBuiltinName(name string) bool {
	return len(name) > 2 && name[0] == '$' && name[1] == '$'
}
