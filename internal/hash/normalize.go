// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package hash

import (
	"sort"

	"nickandperla.net/scrap/internal/expr"
)

// ---------------------------------------------------------------------------
// Normalization: syntax tree -> canonical bytes
//
// Variables bound by functions, match cases, and where-groups are written
// as (scope depth, slot) pairs, so the serialization does not depend on the
// names chosen for them. Free names are written as global references by name
// and hash references as the digest they name. Record fields are sorted.
// ---------------------------------------------------------------------------

// scope tracks the variables bound by one binder.
type scope struct {
	vars map[string]uint16 // variable name -> slot index
}

type normalizer struct {
	serializer
	scopes []scope // innermost last
}

// Serialize returns the canonical serialization of n.
func Serialize(n expr.Node) []byte {
	s := &normalizer{serializer: serializer{buf: make([]byte, 0, 256)}}
	s.writeByte(HashVersion)
	s.node(n)
	return s.buf
}

func (s *normalizer) push(names []string) {
	vars := make(map[string]uint16, len(names))
	for i, name := range names {
		vars[name] = uint16(i)
	}
	s.scopes = append(s.scopes, scope{vars: vars})
}

func (s *normalizer) pop() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *normalizer) lookup(name string) (depth, slot uint16, ok bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if slot, ok := s.scopes[i].vars[name]; ok {
			return uint16(len(s.scopes) - 1 - i), slot, true
		}
	}
	return 0, 0, false
}

func (s *normalizer) ref(name string) {
	if expr.IsBuiltinName(name) {
		s.writeByte(TagBuiltin)
		s.writeString(name)
		return
	}
	if depth, slot, ok := s.lookup(name); ok {
		s.writeByte(TagLocalRef)
		s.writeUint16(depth)
		s.writeUint16(slot)
		return
	}
	s.writeByte(TagGlobalRef)
	s.writeString(name)
}

// slot writes the slot a pattern variable occupies in the innermost scope.
func (s *normalizer) slot(name string) {
	s.writeUint16(s.scopes[len(s.scopes)-1].vars[name])
}

func (s *normalizer) node(n expr.Node) {
	switch n := n.(type) {
	case *expr.Int:
		s.writeByte(TagInt)
		s.writeBigInt(n.Value)

	case *expr.Float:
		s.writeByte(TagFloat)
		s.writeFloat64(n.Value)

	case *expr.String:
		s.writeByte(TagString)
		s.writeString(n.Value)

	case *expr.Bytes:
		s.writeByte(TagBytes)
		s.writeBytes(n.Value)

	case *expr.Hole:
		s.writeByte(TagHole)

	case *expr.Var:
		s.ref(n.Name)

	case *expr.HashRef:
		s.writeByte(TagHashRef)
		s.buf = append(s.buf, n.Digest[:]...)

	case *expr.Variant:
		if n.Payload == nil {
			s.writeByte(TagBareTag)
			s.writeString(n.Tag)
			return
		}
		s.writeByte(TagVariant)
		s.writeString(n.Tag)
		s.node(n.Payload)

	case *expr.List:
		s.writeByte(TagList)
		s.writeUint32(uint32(len(n.Elems)))
		for _, e := range n.Elems {
			s.node(e)
		}
		s.spread(n.Spread)

	case *expr.Record:
		fields := append([]expr.Field(nil), n.Fields...)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		s.writeByte(TagRecord)
		s.writeUint32(uint32(len(fields)))
		for _, f := range fields {
			s.writeString(f.Name)
			s.node(f.Value)
		}
		s.spread(n.Spread)

	case *expr.Binop:
		s.writeByte(TagBinop)
		s.writeString(n.Op)
		s.node(n.Left)
		s.node(n.Right)

	case *expr.Apply:
		s.writeByte(TagApply)
		s.node(n.Func)
		s.node(n.Arg)

	case *expr.Function:
		if cases, ok := expr.MatchCases(n); ok {
			s.writeByte(TagMatchFn)
			s.cases(cases)
			return
		}
		s.writeByte(TagFunction)
		s.push(expr.Names(n.Param))
		s.pattern(n.Param)
		s.node(n.Body)
		s.pop()

	case *expr.Match:
		s.writeByte(TagMatch)
		s.node(n.Scrutinee)
		s.cases(n.Cases)

	case *expr.Where:
		var names []string
		for _, b := range n.Bindings {
			names = append(names, expr.Names(b.Pattern)...)
		}
		s.writeByte(TagWhere)
		s.push(names)
		s.writeUint32(uint32(len(n.Bindings)))
		for _, b := range n.Bindings {
			s.pattern(b.Pattern)
			s.node(b.Value)
		}
		s.node(n.Body)
		s.pop()

	case *expr.Assign:
		s.writeByte(TagAssign)
		s.push(expr.Names(n.Pattern))
		s.pattern(n.Pattern)
		s.node(n.Value)
		s.pop()

	case *expr.Access:
		if v, ok := n.Key.(*expr.Var); ok {
			// A bare name is a field name for records and a variable for
			// lists, so both readings go into the hash.
			s.writeByte(TagAccessName)
			s.node(n.Target)
			s.writeString(v.Name)
			if depth, slot, ok := s.lookup(v.Name); ok {
				s.writeByte(TagLocalRef)
				s.writeUint16(depth)
				s.writeUint16(slot)
			} else {
				s.writeByte(TagNone)
			}
			return
		}
		s.writeByte(TagAccess)
		s.node(n.Target)
		s.node(n.Key)

	case *expr.Assert:
		s.writeByte(TagAssert)
		s.node(n.Value)
		s.node(n.Cond)

	default:
		s.writeByte(TagReservedZero)
	}
}

func (s *normalizer) spread(v *expr.Var) {
	switch {
	case v == nil:
		s.writeByte(TagNone)
	case v.Name == "_":
		s.writeByte(TagSpread)
	default:
		s.writeByte(TagRest)
		s.ref(v.Name)
	}
}

func (s *normalizer) cases(cases []expr.Case) {
	s.writeUint32(uint32(len(cases)))
	for _, c := range cases {
		s.push(expr.Names(c.Pattern))
		s.pattern(c.Pattern)
		if c.Guard == nil {
			s.writeByte(TagNone)
		} else {
			s.node(c.Guard)
		}
		s.node(c.Body)
		s.pop()
	}
}

func (s *normalizer) rest(r *expr.Rest) {
	switch {
	case r == nil:
		s.writeByte(TagNone)
	case r.Name == "":
		s.writeByte(TagSpread)
	default:
		s.writeByte(TagRest)
		s.slot(r.Name)
	}
}

func (s *normalizer) pattern(p expr.Pattern) {
	switch p := p.(type) {
	case *expr.Wildcard:
		s.writeByte(TagPatWildcard)

	case *expr.Bind:
		s.writeByte(TagPatBind)
		s.slot(p.Name)

	case *expr.Literal:
		s.writeByte(TagPatLiteral)
		s.node(p.Value)

	case *expr.ListPattern:
		s.writeByte(TagPatList)
		s.writeUint32(uint32(len(p.Elems)))
		for _, e := range p.Elems {
			s.pattern(e)
		}
		s.rest(p.Rest)

	case *expr.RecordPattern:
		fields := append([]expr.FieldPattern(nil), p.Fields...)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		s.writeByte(TagPatRecord)
		s.writeUint32(uint32(len(fields)))
		for _, f := range fields {
			s.writeString(f.Name)
			s.pattern(f.Pattern)
		}
		s.rest(p.Rest)

	case *expr.VariantPattern:
		if p.Payload == nil {
			s.writeByte(TagPatBareTag)
			s.writeString(p.Tag)
			return
		}
		s.writeByte(TagPatVariant)
		s.writeString(p.Tag)
		s.pattern(p.Payload)

	default:
		s.writeByte(TagReservedZero)
	}
}
