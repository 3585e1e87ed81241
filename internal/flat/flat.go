// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package flat implements the compact binary encoding of scraps used by
// $$serialize, the object store, and the remote protocol.
//
// Every term starts with a one byte tag. Integers, lengths, and counts are
// zigzag varints; integers outside 64 bits are a digit count followed by
// little-endian 64-bit digits. Lists carry the reference flag so that a later
// occurrence of the same list can be written as a back reference.
package flat

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"nickandperla.net/scrap/internal/expr"
)

const (
	TagShort      byte = 'i'
	TagLong       byte = 'l'
	TagFloat      byte = 'd'
	TagString     byte = 's'
	TagRef        byte = 'r'
	TagList       byte = '['
	TagRecord     byte = '{'
	TagVariant    byte = '#'
	TagVar        byte = 'v'
	TagFunction   byte = 'f'
	TagMatchFn    byte = 'm'
	TagClosure    byte = 'c'
	TagBytes      byte = 'b'
	TagHole       byte = '('
	TagAssign     byte = '='
	TagBinop      byte = '+'
	TagApply      byte = ' '
	TagWhere      byte = '.'
	TagAccess     byte = '@'
	TagSpread     byte = 'S'
	TagNamedRest  byte = 'R'
	TagWhereGroup byte = 'W'
	TagGuardedFn  byte = 'M'
	TagBareTag    byte = 'n'
	TagHashRef    byte = 'h'
	TagAssert     byte = '?'

	// FlagRef marks a term that later back references may point at.
	FlagRef byte = 0x80
)

// spreadKey is the record key that carries a record spread.
const spreadKey = "..."

// Encode returns the flat encoding of n.
func Encode(n expr.Node) ([]byte, error) {
	e := &encoder{}
	if err := e.node(n); err != nil {
		return nil, err
	}
	return e.out, nil
}

type encoder struct {
	out  []byte
	refs []*expr.List
}

func (e *encoder) byte(b byte) { e.out = append(e.out, b) }

func (e *encoder) short(v int64) {
	e.out = binary.AppendUvarint(e.out, zigzag(v))
}

func (e *encoder) string(s string) {
	e.short(int64(len(s)))
	e.out = append(e.out, s...)
}

func zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func (e *encoder) int(v *big.Int) {
	if v.IsInt64() {
		e.byte(TagShort)
		e.short(v.Int64())
		return
	}
	// zigzag on a bignum: 2v for v >= 0, -2v-1 otherwise.
	z := new(big.Int).Lsh(v, 1)
	if v.Sign() < 0 {
		z.Neg(z)
		z.Sub(z, big.NewInt(1))
	}
	var digits [][8]byte
	mask := new(big.Int).SetUint64(math.MaxUint64)
	for z.Sign() > 0 {
		var d [8]byte
		binary.LittleEndian.PutUint64(d[:], new(big.Int).And(z, mask).Uint64())
		digits = append(digits, d)
		z.Rsh(z, 64)
	}
	e.byte(TagLong)
	e.short(int64(len(digits)))
	for _, d := range digits {
		e.out = append(e.out, d[:]...)
	}
}

func (e *encoder) node(n expr.Node) error {
	switch n := n.(type) {
	case *expr.Int:
		e.int(n.Value)
	case *expr.Float:
		e.byte(TagFloat)
		e.out = binary.LittleEndian.AppendUint64(e.out, math.Float64bits(n.Value))
	case *expr.String:
		e.byte(TagString)
		e.string(n.Value)
	case *expr.Bytes:
		e.byte(TagBytes)
		e.short(int64(len(n.Value)))
		e.out = append(e.out, n.Value...)
	case *expr.Hole:
		e.byte(TagHole)
	case *expr.Var:
		e.byte(TagVar)
		e.string(n.Name)
	case *expr.HashRef:
		e.byte(TagHashRef)
		e.out = append(e.out, n.Digest[:]...)
	case *expr.Variant:
		if n.Payload == nil {
			e.byte(TagBareTag)
			e.string(n.Tag)
			return nil
		}
		e.byte(TagVariant)
		e.string(n.Tag)
		return e.node(n.Payload)
	case *expr.List:
		for i, r := range e.refs {
			if r == n {
				e.byte(TagRef)
				e.short(int64(i))
				return nil
			}
		}
		e.refs = append(e.refs, n)
		e.byte(TagList | FlagRef)
		count := len(n.Elems)
		if n.Spread != nil {
			count++
		}
		e.short(int64(count))
		for _, elem := range n.Elems {
			if err := e.node(elem); err != nil {
				return err
			}
		}
		if n.Spread != nil {
			e.spread(n.Spread.Name)
		}
	case *expr.Record:
		e.byte(TagRecord)
		count := len(n.Fields)
		if n.Spread != nil {
			count++
		}
		e.short(int64(count))
		for _, f := range n.Fields {
			e.string(f.Name)
			if err := e.node(f.Value); err != nil {
				return err
			}
		}
		if n.Spread != nil {
			e.string(spreadKey)
			e.spread(n.Spread.Name)
		}
	case *expr.Binop:
		e.byte(TagBinop)
		e.string(n.Op)
		if err := e.node(n.Left); err != nil {
			return err
		}
		return e.node(n.Right)
	case *expr.Apply:
		e.byte(TagApply)
		if err := e.node(n.Func); err != nil {
			return err
		}
		return e.node(n.Arg)
	case *expr.Function:
		if cases, ok := expr.MatchCases(n); ok {
			return e.cases(cases)
		}
		e.byte(TagFunction)
		if err := e.pattern(n.Param); err != nil {
			return err
		}
		return e.node(n.Body)
	case *expr.Match:
		// A match on an arbitrary scrutinee is the application of a match
		// function to it.
		e.byte(TagApply)
		if err := e.cases(n.Cases); err != nil {
			return err
		}
		return e.node(n.Scrutinee)
	case *expr.Where:
		if len(n.Bindings) == 1 {
			e.byte(TagWhere)
			if err := e.node(n.Body); err != nil {
				return err
			}
			e.byte(TagAssign)
			if err := e.pattern(n.Bindings[0].Pattern); err != nil {
				return err
			}
			return e.node(n.Bindings[0].Value)
		}
		e.byte(TagWhereGroup)
		if err := e.node(n.Body); err != nil {
			return err
		}
		e.short(int64(len(n.Bindings)))
		for _, b := range n.Bindings {
			if err := e.pattern(b.Pattern); err != nil {
				return err
			}
			if err := e.node(b.Value); err != nil {
				return err
			}
		}
	case *expr.Assign:
		e.byte(TagAssign)
		if err := e.pattern(n.Pattern); err != nil {
			return err
		}
		return e.node(n.Value)
	case *expr.Access:
		e.byte(TagAccess)
		if err := e.node(n.Target); err != nil {
			return err
		}
		return e.node(n.Key)
	case *expr.Assert:
		e.byte(TagAssert)
		if err := e.node(n.Value); err != nil {
			return err
		}
		return e.node(n.Cond)
	default:
		return fmt.Errorf("flat: cannot encode %T", n)
	}
	return nil
}

func (e *encoder) cases(cases []expr.Case) error {
	guarded := false
	for _, c := range cases {
		if c.Guard != nil {
			guarded = true
		}
	}
	if guarded {
		e.byte(TagGuardedFn)
	} else {
		e.byte(TagMatchFn)
	}
	e.short(int64(len(cases)))
	for _, c := range cases {
		if err := e.pattern(c.Pattern); err != nil {
			return err
		}
		if guarded {
			if c.Guard == nil {
				e.byte(0)
			} else {
				e.byte(1)
				if err := e.node(c.Guard); err != nil {
					return err
				}
			}
		}
		if err := e.node(c.Body); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) spread(name string) {
	if name == "" || name == "_" {
		e.byte(TagSpread)
		return
	}
	e.byte(TagNamedRest)
	e.string(name)
}

// pattern writes p in the expression form it was parsed from.
func (e *encoder) pattern(p expr.Pattern) error {
	switch p := p.(type) {
	case *expr.Wildcard:
		e.byte(TagVar)
		e.string("_")
	case *expr.Bind:
		e.byte(TagVar)
		e.string(p.Name)
	case *expr.Literal:
		return e.node(p.Value)
	case *expr.ListPattern:
		e.byte(TagList | FlagRef)
		// Pattern lists take a slot in the reference table like any list.
		e.refs = append(e.refs, nil)
		count := len(p.Elems)
		if p.Rest != nil {
			count++
		}
		e.short(int64(count))
		for _, sub := range p.Elems {
			if err := e.pattern(sub); err != nil {
				return err
			}
		}
		if p.Rest != nil {
			e.spread(p.Rest.Name)
		}
	case *expr.RecordPattern:
		e.byte(TagRecord)
		count := len(p.Fields)
		if p.Rest != nil {
			count++
		}
		e.short(int64(count))
		for _, f := range p.Fields {
			e.string(f.Name)
			if err := e.pattern(f.Pattern); err != nil {
				return err
			}
		}
		if p.Rest != nil {
			e.string(spreadKey)
			e.spread(p.Rest.Name)
		}
	case *expr.VariantPattern:
		if p.Payload == nil {
			e.byte(TagBareTag)
			e.string(p.Tag)
			return nil
		}
		e.byte(TagVariant)
		e.string(p.Tag)
		return e.pattern(p.Payload)
	default:
		return fmt.Errorf("flat: cannot encode pattern %T", p)
	}
	return nil
}
