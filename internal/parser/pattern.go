// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package parser

import (
	"fmt"

	"nickandperla.net/scrap/internal/expr"
)

// ToPattern reinterprets an expression parsed in binding position.
func ToPattern(n expr.Node) (expr.Pattern, error) {
	pat, err := convertPattern(n)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, name := range expr.Names(pat) {
		if seen[name] {
			return nil, &Error{Pos: n.Pos(), Msg: fmt.Sprintf("name %q bound more than once in pattern", name)}
		}
		seen[name] = true
	}
	return pat, nil
}

func convertPattern(n expr.Node) (expr.Pattern, error) {
	switch n := n.(type) {
	case *expr.Var:
		if n.Name == "_" {
			return &expr.Wildcard{}, nil
		}
		if expr.IsBuiltinName(n.Name) {
			return nil, &Error{Pos: n.Pos(), Msg: fmt.Sprintf("cannot bind builtin name %q", n.Name)}
		}
		return &expr.Bind{Name: n.Name}, nil

	case *expr.Int, *expr.Float, *expr.String, *expr.Bytes, *expr.Hole:
		return &expr.Literal{Value: n}, nil

	case *expr.List:
		lp := &expr.ListPattern{}
		for _, e := range n.Elems {
			sub, err := convertPattern(e)
			if err != nil {
				return nil, err
			}
			lp.Elems = append(lp.Elems, sub)
		}
		if n.Spread != nil {
			lp.Rest = &expr.Rest{Name: restName(n.Spread)}
		}
		return lp, nil

	case *expr.Record:
		rp := &expr.RecordPattern{}
		seen := map[string]bool{}
		for _, f := range n.Fields {
			if seen[f.Name] {
				return nil, &Error{Pos: n.Pos(), Msg: fmt.Sprintf("duplicate field %q in record pattern", f.Name)}
			}
			seen[f.Name] = true
			sub, err := convertPattern(f.Value)
			if err != nil {
				return nil, err
			}
			rp.Fields = append(rp.Fields, expr.FieldPattern{Name: f.Name, Pattern: sub})
		}
		if n.Spread != nil {
			rp.Rest = &expr.Rest{Name: restName(n.Spread)}
		}
		return rp, nil

	case *expr.Variant:
		vp := &expr.VariantPattern{Tag: n.Tag}
		if n.Payload != nil {
			sub, err := convertPattern(n.Payload)
			if err != nil {
				return nil, err
			}
			vp.Payload = sub
		}
		return vp, nil
	}
	return nil, &Error{Pos: n.Pos(), Msg: fmt.Sprintf("invalid pattern %s", n)}
}

func restName(v *expr.Var) string {
	if v.Name == "_" {
		return ""
	}
	return v.Name
}

// check rejects forms that only make sense in binding position or at the
// top level of a program.
func check(n expr.Node, top bool) error {
	switch n := n.(type) {
	case *expr.Assign:
		if !top {
			return &Error{Pos: n.Pos(), Msg: "assignment outside of a where-clause"}
		}
		return check(n.Value, false)
	case *expr.Where:
		if err := check(n.Body, top); err != nil {
			return err
		}
		for _, b := range n.Bindings {
			if err := check(b.Value, false); err != nil {
				return err
			}
		}
	case *expr.List:
		if n.Spread != nil && restName(n.Spread) == "" {
			return &Error{Pos: n.Spread.Pos(), Msg: "spread in list literal needs a name"}
		}
		for _, e := range n.Elems {
			if err := check(e, false); err != nil {
				return err
			}
		}
	case *expr.Record:
		if n.Spread != nil && restName(n.Spread) == "" {
			return &Error{Pos: n.Spread.Pos(), Msg: "spread in record literal needs a name"}
		}
		for _, f := range n.Fields {
			if err := check(f.Value, false); err != nil {
				return err
			}
		}
	case *expr.Variant:
		if n.Payload != nil {
			return check(n.Payload, false)
		}
	case *expr.Binop:
		if err := check(n.Left, false); err != nil {
			return err
		}
		return check(n.Right, false)
	case *expr.Apply:
		if err := check(n.Func, false); err != nil {
			return err
		}
		return check(n.Arg, false)
	case *expr.Function:
		return check(n.Body, false)
	case *expr.Match:
		if err := check(n.Scrutinee, false); err != nil {
			return err
		}
		for _, c := range n.Cases {
			if c.Guard != nil {
				if err := check(c.Guard, false); err != nil {
					return err
				}
			}
			if err := check(c.Body, false); err != nil {
				return err
			}
		}
	case *expr.Access:
		if err := check(n.Target, false); err != nil {
			return err
		}
		return check(n.Key, false)
	case *expr.Assert:
		if err := check(n.Value, false); err != nil {
			return err
		}
		return check(n.Cond, false)
	}
	return nil
}
