// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package value defines the runtime values of scrapscript and the scope
// chains that bind names to them.
package value

import (
	"bytes"
	"context"
	"math/big"

	"nickandperla.net/scrap/internal/expr"
)

// Kind identifies the shape of a value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBytes
	KindList
	KindRecord
	KindVariant
	KindClosure
	KindNative
	KindHole
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "text"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	case KindVariant:
		return "variant"
	case KindClosure, KindNative:
		return "function"
	case KindHole:
		return "hole"
	}
	return "unknown"
}

// Value is the interface all runtime values implement.
type Value interface {
	Kind() Kind
	String() string
	value()
}

type Int struct{ V *big.Int }

type Float struct{ V float64 }

type String struct{ V string }

type Bytes struct{ V []byte }

// List is an immutable sequence of values.
type List struct{ Elems []Value }

// Record maps field names to values. Keys keeps the construction order
// for printing; equality ignores it.
type Record struct {
	Keys   []string
	Fields map[string]Value
}

// Variant is a tagged value. Payload is nil for a bare tag.
type Variant struct {
	Tag     string
	Payload Value
}

// Closure is a function value. Env is shared with the defining scope.
type Closure struct {
	Param  expr.Pattern
	Body   expr.Node
	Env    *Env
	Source *expr.Function
}

// NativeFunc implements a builtin.
type NativeFunc func(ctx context.Context, arg Value) (Value, error)

// Native is a builtin function value.
type Native struct {
	Name string
	Fn   NativeFunc
}

// Hole is the value of ().
type Hole struct{}

func (*Int) Kind() Kind     { return KindInt }
func (*Float) Kind() Kind   { return KindFloat }
func (*String) Kind() Kind  { return KindString }
func (*Bytes) Kind() Kind   { return KindBytes }
func (*List) Kind() Kind    { return KindList }
func (*Record) Kind() Kind  { return KindRecord }
func (*Variant) Kind() Kind { return KindVariant }
func (*Closure) Kind() Kind { return KindClosure }
func (*Native) Kind() Kind  { return KindNative }
func (*Hole) Kind() Kind    { return KindHole }

func (*Int) value()     {}
func (*Float) value()   {}
func (*String) value()  {}
func (*Bytes) value()   {}
func (*List) value()    {}
func (*Record) value()  {}
func (*Variant) value() {}
func (*Closure) value() {}
func (*Native) value()  {}
func (*Hole) value()    {}

// NewInt wraps an int64.
func NewInt(v int64) *Int { return &Int{V: big.NewInt(v)} }

// NewRecord builds an empty record ready for Set.
func NewRecord() *Record {
	return &Record{Fields: map[string]Value{}}
}

// Set adds or replaces a field. Only used while a record is being built.
func (r *Record) Set(name string, v Value) {
	if _, ok := r.Fields[name]; !ok {
		r.Keys = append(r.Keys, name)
	}
	r.Fields[name] = v
}

// Get returns the named field.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

var (
	True  = &Variant{Tag: "true", Payload: &Hole{}}
	False = &Variant{Tag: "false", Payload: &Hole{}}
)

// Bool converts a Go bool to #true () or #false ().
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// AsBool reports the truth of v and whether v is a boolean at all.
func AsBool(v Value) (truth, ok bool) {
	vr, isVariant := v.(*Variant)
	if !isVariant {
		return false, false
	}
	if _, hole := vr.Payload.(*Hole); !hole {
		return false, false
	}
	switch vr.Tag {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// Equal reports structural equality. Functions are equal only to
// themselves.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case *Int:
		b, ok := b.(*Int)
		return ok && a.V.Cmp(b.V) == 0
	case *Float:
		b, ok := b.(*Float)
		return ok && a.V == b.V
	case *String:
		b, ok := b.(*String)
		return ok && a.V == b.V
	case *Bytes:
		b, ok := b.(*Bytes)
		return ok && bytes.Equal(a.V, b.V)
	case *Hole:
		_, ok := b.(*Hole)
		return ok
	case *List:
		b, ok := b.(*List)
		if !ok || len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case *Record:
		b, ok := b.(*Record)
		if !ok || len(a.Fields) != len(b.Fields) {
			return false
		}
		for k, av := range a.Fields {
			bv, ok := b.Fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case *Variant:
		b, ok := b.(*Variant)
		if !ok || a.Tag != b.Tag {
			return false
		}
		if a.Payload == nil || b.Payload == nil {
			return a.Payload == nil && b.Payload == nil
		}
		return Equal(a.Payload, b.Payload)
	case *Closure:
		b, ok := b.(*Closure)
		return ok && a == b
	case *Native:
		b, ok := b.(*Native)
		return ok && a.Name == b.Name
	}
	return false
}
