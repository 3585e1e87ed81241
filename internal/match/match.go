// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package match implements structural pattern matching of values.
package match

import (
	"bytes"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/value"
)

// Bindings maps the names a pattern bound to the values they matched.
type Bindings map[string]value.Value

// Match reports whether v matches p. Bindings are only returned when the
// whole pattern matched.
func Match(p expr.Pattern, v value.Value) (Bindings, bool) {
	b := Bindings{}
	if !match(p, v, b) {
		return nil, false
	}
	return b, true
}

func match(p expr.Pattern, v value.Value, b Bindings) bool {
	switch p := p.(type) {
	case *expr.Wildcard:
		return true
	case *expr.Bind:
		b[p.Name] = v
		return true
	case *expr.Literal:
		return literal(p.Value, v)
	case *expr.ListPattern:
		lv, ok := v.(*value.List)
		if !ok {
			return false
		}
		n := len(p.Elems)
		if p.Rest == nil && len(lv.Elems) != n {
			return false
		}
		if len(lv.Elems) < n {
			return false
		}
		for i, sub := range p.Elems {
			if !match(sub, lv.Elems[i], b) {
				return false
			}
		}
		if p.Rest != nil && p.Rest.Name != "" {
			rest := make([]value.Value, len(lv.Elems)-n)
			copy(rest, lv.Elems[n:])
			b[p.Rest.Name] = &value.List{Elems: rest}
		}
		return true
	case *expr.RecordPattern:
		rv, ok := v.(*value.Record)
		if !ok {
			return false
		}
		named := make(map[string]bool, len(p.Fields))
		for _, f := range p.Fields {
			fv, ok := rv.Get(f.Name)
			if !ok || !match(f.Pattern, fv, b) {
				return false
			}
			named[f.Name] = true
		}
		if p.Rest != nil && p.Rest.Name != "" {
			rest := value.NewRecord()
			for _, k := range rv.Keys {
				if !named[k] {
					rest.Set(k, rv.Fields[k])
				}
			}
			b[p.Rest.Name] = rest
		}
		return true
	case *expr.VariantPattern:
		vv, ok := v.(*value.Variant)
		if !ok || vv.Tag != p.Tag {
			return false
		}
		if p.Payload == nil || vv.Payload == nil {
			return p.Payload == nil && vv.Payload == nil
		}
		return match(p.Payload, vv.Payload, b)
	}
	return false
}

func literal(n expr.Node, v value.Value) bool {
	switch n := n.(type) {
	case *expr.Int:
		iv, ok := v.(*value.Int)
		return ok && iv.V.Cmp(n.Value) == 0
	case *expr.Float:
		fv, ok := v.(*value.Float)
		return ok && fv.V == n.Value
	case *expr.String:
		sv, ok := v.(*value.String)
		return ok && sv.V == n.Value
	case *expr.Bytes:
		bv, ok := v.(*value.Bytes)
		return ok && bytes.Equal(bv.V, n.Value)
	case *expr.Hole:
		_, ok := v.(*value.Hole)
		return ok
	}
	return false
}
