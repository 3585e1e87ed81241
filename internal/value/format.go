// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package value

import (
	"encoding/base64"
	"strings"

	"nickandperla.net/scrap/internal/expr"
)

func (v *Int) String() string    { return v.V.String() }
func (v *Float) String() string  { return expr.FormatFloat(v.V) }
func (v *String) String() string { return expr.Quote(v.V) }
func (v *Bytes) String() string  { return "~~" + base64.StdEncoding.EncodeToString(v.V) }
func (*Hole) String() string     { return "()" }

func (v *List) String() string {
	parts := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (v *Record) String() string {
	parts := make([]string, len(v.Keys))
	for i, k := range v.Keys {
		parts[i] = k + " = " + v.Fields[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (v *Variant) String() string {
	if v.Payload == nil {
		return "#" + v.Tag
	}
	p := v.Payload.String()
	if needsParens(v.Payload) {
		p = "(" + p + ")"
	}
	return "#" + v.Tag + " " + p
}

func needsParens(v Value) bool {
	switch v := v.(type) {
	case *Int:
		return v.V.Sign() < 0
	case *Float:
		return strings.HasPrefix(v.String(), "-")
	case *Variant:
		return v.Payload != nil
	case *Closure:
		return true
	}
	return false
}

func (v *Closure) String() string {
	if v.Source != nil {
		return v.Source.String()
	}
	return (&expr.Function{Param: v.Param, Body: v.Body}).String()
}

func (v *Native) String() string { return v.Name }
