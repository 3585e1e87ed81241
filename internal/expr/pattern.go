// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

// Pattern is the interface all pattern types implement.
type Pattern interface {
	String() string
	pattern()
}

// Wildcard matches anything and binds nothing.
type Wildcard struct{}

// Bind matches anything and binds it to Name.
type Bind struct {
	Name string
}

// Literal matches a value equal to an Int, Float, String, Bytes, or Hole node.
type Literal struct {
	Value Node
}

// Rest captures the unmatched remainder of a list or record. An empty Name
// discards it.
type Rest struct {
	Name string
}

// ListPattern matches a list element by element.
type ListPattern struct {
	Elems []Pattern
	Rest  *Rest
}

// FieldPattern matches one named record field.
type FieldPattern struct {
	Name    string
	Pattern Pattern
}

// RecordPattern matches a record containing at least the named fields.
type RecordPattern struct {
	Fields []FieldPattern
	Rest   *Rest
}

// VariantPattern matches a variant by tag. Payload is nil for a bare tag.
type VariantPattern struct {
	Tag     string
	Payload Pattern
}

func (*Wildcard) pattern()       {}
func (*Bind) pattern()           {}
func (*Literal) pattern()        {}
func (*ListPattern) pattern()    {}
func (*RecordPattern) pattern()  {}
func (*VariantPattern) pattern() {}

// Names returns the names p binds, in left-to-right order.
func Names(p Pattern) []string {
	var names []string
	var walk func(Pattern)
	walk = func(p Pattern) {
		switch p := p.(type) {
		case *Bind:
			names = append(names, p.Name)
		case *ListPattern:
			for _, e := range p.Elems {
				walk(e)
			}
			if p.Rest != nil && p.Rest.Name != "" {
				names = append(names, p.Rest.Name)
			}
		case *RecordPattern:
			for _, f := range p.Fields {
				walk(f.Pattern)
			}
			if p.Rest != nil && p.Rest.Name != "" {
				names = append(names, p.Rest.Name)
			}
		case *VariantPattern:
			if p.Payload != nil {
				walk(p.Payload)
			}
		}
	}
	walk(p)
	return names
}
